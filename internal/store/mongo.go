package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"greendrake/estate/internal/apperr"
	"greendrake/estate/internal/db"
	"greendrake/estate/internal/models"
	"greendrake/estate/internal/workflow"
)

// MongoStore implements Store on MongoDB. Uniqueness and sequencing rely on the
// indexes created by db.EnsureIndexes.
type MongoStore struct {
	db   *mongo.Database
	opts Options
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore wraps database.
func NewMongoStore(database *mongo.Database, opts Options) *MongoStore {
	return &MongoStore{db: database, opts: opts.withDefaults()}
}

func (s *MongoStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.Timeout)
}

func (s *MongoStore) coll(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// --- conversations ---

func (s *MongoStore) GetOrCreateConversation(ctx context.Context, agentID, clientID, propertyID string) (*models.Conversation, bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	filter := bson.M{"agent_id": agentID, "client_id": clientID, "property_id": propertyID}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var (
		conv    models.Conversation
		created bool
	)
	// Two concurrent upserts can both miss and race on the unique index; the loser
	// retries and finds the winner's document.
	err := db.WithRetries(ctx, func() error {
		id := models.NewID()
		now := time.Now().UTC()
		update := bson.M{"$setOnInsert": bson.M{
			"_id":              id,
			"last_seq":         int64(0),
			"created_at":       now,
			"last_activity_at": now,
		}}
		if err := s.coll(db.ConversationsCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&conv); err != nil {
			return err
		}
		created = conv.ID == id
		return nil
	}, db.DefaultMaxRetries, func(err error) bool {
		return db.IsDuplicateKeyOn(err, db.IndexConversationTriple)
	})
	if err != nil {
		return nil, false, classify(err, "get_or_create_conversation")
	}
	return &conv, created, nil
}

func (s *MongoStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var conv models.Conversation
	if err := s.coll(db.ConversationsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&conv); err != nil {
		return nil, classify(err, "get_conversation")
	}
	return &conv, nil
}

func (s *MongoStore) ListConversationsForUser(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	filter := bson.M{"$or": bson.A{bson.M{"agent_id": userID}, bson.M{"client_id": userID}}}
	opts := options.Find().
		SetSort(bson.D{{Key: "last_activity_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(clampLimit(limit, defaultListLimit, maxListLimit)))

	cursor, err := s.coll(db.ConversationsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err, "list_conversations")
	}
	convs := []models.Conversation{}
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, classify(err, "list_conversations")
	}
	return convs, nil
}

// --- messages ---

var errTokenTaken = errors.New("client token already used")

func (s *MongoStore) AppendMessage(ctx context.Context, in NewMessage) (*models.Message, bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if in.ClientToken != "" {
		existing, err := s.findByToken(ctx, in.ConversationID, in.ClientToken)
		if err == nil {
			return existing, true, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, classify(err, "append_message")
		}
	}

	var msg *models.Message
	err := db.WithRetries(ctx, func() error {
		last, err := s.lastSequence(ctx, in.ConversationID)
		if err != nil {
			return err
		}
		m := &models.Message{
			ID:             models.NewID(),
			ConversationID: in.ConversationID,
			SenderID:       in.SenderID,
			Body:           in.Body,
			Sequence:       last + 1,
			ClientToken:    in.ClientToken,
			CreatedAt:      time.Now().UTC(),
		}
		if _, err := s.coll(db.MessagesCollection).InsertOne(ctx, m); err != nil {
			if db.IsDuplicateKeyOn(err, db.IndexMessageClientToken) {
				return errTokenTaken
			}
			return err
		}
		msg = m
		return nil
	}, s.opts.AppendMaxRetries, func(err error) bool {
		return db.IsDuplicateKeyOn(err, db.IndexMessageSequence)
	})

	switch {
	case errors.Is(err, errTokenTaken):
		// A concurrent send with the same token won the insert.
		existing, ferr := s.findByToken(ctx, in.ConversationID, in.ClientToken)
		if ferr != nil {
			return nil, false, classify(ferr, "append_message")
		}
		return existing, true, nil
	case errors.Is(err, db.ErrRetriesExhausted):
		return nil, false, apperr.Wrap(apperr.KindStoreUnavailable, err, "")
	case err != nil:
		return nil, false, classify(err, "append_message")
	}

	s.touchConversation(ctx, msg)
	return msg, false, nil
}

// touchConversation advances the conversation summary to msg. $max keeps it
// monotonic under racing appends. The message is already durable, so a failure
// is logged and only affects list ordering.
func (s *MongoStore) touchConversation(ctx context.Context, msg *models.Message) {
	_, err := s.coll(db.ConversationsCollection).UpdateOne(ctx,
		bson.M{"_id": msg.ConversationID},
		bson.M{"$max": bson.M{
			"last_seq":         msg.Sequence,
			"last_message_at":  msg.CreatedAt,
			"last_activity_at": msg.CreatedAt,
		}},
	)
	if err != nil {
		s.opts.Logger.Warn("conversation summary update failed",
			zap.String("conversation_id", msg.ConversationID),
			zap.Int64("sequence", msg.Sequence),
			zap.Error(err))
	}
}

func (s *MongoStore) lastSequence(ctx context.Context, conversationID string) (int64, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "seq", Value: -1}}).
		SetProjection(bson.M{"seq": 1})
	var last struct {
		Sequence int64 `bson:"seq"`
	}
	err := s.coll(db.MessagesCollection).FindOne(ctx, bson.M{"conversation_id": conversationID}, opts).Decode(&last)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return last.Sequence, nil
}

func (s *MongoStore) findByToken(ctx context.Context, conversationID, token string) (*models.Message, error) {
	var m models.Message
	err := s.coll(db.MessagesCollection).FindOne(ctx, bson.M{"conversation_id": conversationID, "client_token": token}).Decode(&m)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MongoStore) ListMessagesSince(ctx context.Context, conversationID string, after int64, limit int) ([]models.Message, bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	n := clampLimit(limit, maxMessagePage, maxMessagePage)
	filter := bson.M{"conversation_id": conversationID, "seq": bson.M{"$gt": after}}
	// One extra row tells whether another page follows.
	opts := options.Find().
		SetSort(bson.D{{Key: "seq", Value: 1}}).
		SetLimit(int64(n + 1))

	cursor, err := s.coll(db.MessagesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, false, classify(err, "list_messages")
	}
	msgs := []models.Message{}
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, false, classify(err, "list_messages")
	}
	if len(msgs) > n {
		return msgs[:n], true, nil
	}
	return msgs, false, nil
}

// --- inquiries ---

func (s *MongoStore) InsertInquiry(ctx context.Context, inq *models.Inquiry) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if inq.ID == "" {
		inq.ID = models.NewID()
	}
	err := db.Try(ctx, func() error {
		_, err := s.coll(db.InquiriesCollection).InsertOne(ctx, inq)
		if db.IsMongoDuplicateKeyError(err) {
			inq.ID = models.NewID()
		}
		return err
	})
	return classify(err, "insert_inquiry")
}

func (s *MongoStore) GetInquiry(ctx context.Context, id string) (*models.Inquiry, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var inq models.Inquiry
	if err := s.coll(db.InquiriesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&inq); err != nil {
		return nil, classify(err, "get_inquiry")
	}
	return &inq, nil
}

func (s *MongoStore) UpdateInquiryStatus(ctx context.Context, change StatusChange) (*models.Inquiry, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	filter := bson.M{"_id": change.InquiryID, "status": change.From}
	update := bson.M{"$set": bson.M{"status": change.To, "updated_at": change.At}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var inq models.Inquiry
	err := s.coll(db.InquiriesCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&inq)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, gerr := s.GetInquiry(ctx, change.InquiryID); gerr != nil {
			return nil, gerr
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, classify(err, "update_inquiry_status")
	}
	return &inq, nil
}

func (s *MongoStore) SetInquiryConversation(ctx context.Context, inquiryID, conversationID string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.coll(db.InquiriesCollection).UpdateOne(ctx,
		bson.M{"_id": inquiryID},
		bson.M{"$set": bson.M{"conversation_id": conversationID}},
	)
	if err != nil {
		return classify(err, "set_inquiry_conversation")
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound
	}
	return nil
}

func (s *MongoStore) ListInquiries(ctx context.Context, filter models.InquiryFilter) ([]models.Inquiry, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := bson.M{}
	if filter.AgentID != "" {
		query["agent_id"] = filter.AgentID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(clampLimit(filter.Limit, defaultListLimit, maxListLimit)))

	cursor, err := s.coll(db.InquiriesCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, classify(err, "list_inquiries")
	}
	out := []models.Inquiry{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, classify(err, "list_inquiries")
	}
	return out, nil
}

// --- verifications ---

func (s *MongoStore) InsertVerification(ctx context.Context, v *models.AgentVerification) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if v.ID == "" {
		v.ID = models.NewID()
	}
	_, err := s.coll(db.AgentVerificationsCollection).InsertOne(ctx, v)
	if db.IsDuplicateKeyOn(err, db.IndexVerificationPending) {
		return apperr.DuplicatePending
	}
	return classify(err, "insert_verification")
}

func (s *MongoStore) GetVerification(ctx context.Context, id string) (*models.AgentVerification, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var v models.AgentVerification
	if err := s.coll(db.AgentVerificationsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&v); err != nil {
		return nil, classify(err, "get_verification")
	}
	return &v, nil
}

func (s *MongoStore) DecideVerification(ctx context.Context, d Decision) (*models.AgentVerification, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	filter := bson.M{"_id": d.VerificationID, "verification_status": workflow.VerificationPending}
	update := bson.M{"$set": bson.M{
		"verification_status": d.Status,
		"decided_by":          d.AdminID,
		"decided_at":          d.At,
		"updated_at":          d.At,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var v models.AgentVerification
	err := s.coll(db.AgentVerificationsCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, gerr := s.GetVerification(ctx, d.VerificationID); gerr != nil {
			return nil, gerr
		}
		return nil, apperr.New(apperr.KindInvalidTransition, "verification has already been decided")
	}
	if err != nil {
		return nil, classify(err, "decide_verification")
	}
	return &v, nil
}

func (s *MongoStore) ListVerifications(ctx context.Context, filter VerificationFilter) ([]models.AgentVerification, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := bson.M{}
	if filter.AgentID != "" {
		query["agent_id"] = filter.AgentID
	}
	if filter.Status != "" {
		query["verification_status"] = filter.Status
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(clampLimit(filter.Limit, defaultListLimit, maxListLimit)))

	cursor, err := s.coll(db.AgentVerificationsCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, classify(err, "list_verifications")
	}
	out := []models.AgentVerification{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, classify(err, "list_verifications")
	}
	return out, nil
}

// --- directory ---

func (s *MongoStore) FindProperty(ctx context.Context, id string) (*models.Property, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var p models.Property
	filter := bson.M{"_id": id, "deleted": bson.M{"$ne": true}}
	if err := s.coll(db.PropertiesCollection).FindOne(ctx, filter).Decode(&p); err != nil {
		return nil, classify(err, "find_property")
	}
	return &p, nil
}

func (s *MongoStore) FindUser(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var u models.User
	if err := s.coll(db.UsersCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, classify(err, "find_user")
	}
	return &u, nil
}

func (s *MongoStore) FindEmailTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var t models.EmailTemplate
	filter := bson.M{"template_id": templateID, "locale": locale}
	if err := s.coll(db.EmailTemplatesCollection).FindOne(ctx, filter).Decode(&t); err != nil {
		return nil, classify(err, "find_email_template")
	}
	return &t, nil
}

func (s *MongoStore) SaveEmailTemplate(ctx context.Context, tmpl *models.EmailTemplate) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	filter := bson.M{"template_id": tmpl.TemplateID, "locale": tmpl.Locale}
	update := bson.M{
		"$set":         bson.M{"subject": tmpl.Subject, "body": tmpl.Body},
		"$setOnInsert": bson.M{"_id": models.NewID()},
	}
	_, err := s.coll(db.EmailTemplatesCollection).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return classify(err, "save_email_template")
}

func classify(err error, op string) error {
	return db.Classify(err, op)
}
