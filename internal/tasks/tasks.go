package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"greendrake/estate/internal/apperr"
	"greendrake/estate/internal/config"
	"greendrake/estate/internal/email"
	"greendrake/estate/internal/logger"
	"greendrake/estate/internal/models"
	"greendrake/estate/internal/services"
	"greendrake/estate/internal/workflow"
)

// TaskType defines the type of a background task.
const (
	TypeEmailDelivery      = "email:deliver"
	TypeInquiryNotify      = "inquiry:notify"
	TypeVerificationNotify = "verification:notify"
)

const notifyMaxRetry = 5

// IAsynqClient is the subset of *asynq.Client used to enqueue work.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Records is what the notification handlers read. Both store backends satisfy it.
type Records interface {
	GetInquiry(ctx context.Context, id string) (*models.Inquiry, error)
	GetVerification(ctx context.Context, id string) (*models.AgentVerification, error)
	FindProperty(ctx context.Context, id string) (*models.Property, error)
}

// --- Task Client (Enqueuing tasks) ---

func redisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	o := rdb.Options()
	return asynq.RedisClientOpt{Addr: o.Addr, Password: o.Password, DB: o.DB}
}

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(redisOpt(rdb))
}

// NotifyPayload identifies the record a notification is about.
type NotifyPayload struct {
	ID string `json:"id"`
}

// Enqueuer schedules notification tasks. It implements services.INotifier.
type Enqueuer struct {
	client IAsynqClient
}

// NewEnqueuer wraps an asynq client.
func NewEnqueuer(client IAsynqClient) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) enqueue(ctx context.Context, taskType, id string) error {
	payload, err := json.Marshal(NotifyPayload{ID: id})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, asynq.NewTask(taskType, payload), asynq.MaxRetry(notifyMaxRetry))
	return err
}

func (e *Enqueuer) InquirySubmitted(ctx context.Context, inquiryID string) error {
	return e.enqueue(ctx, TypeInquiryNotify, inquiryID)
}

func (e *Enqueuer) VerificationDecided(ctx context.Context, verificationID string) error {
	return e.enqueue(ctx, TypeVerificationNotify, verificationID)
}

var _ services.INotifier = (*Enqueuer)(nil)

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg                  *config.Config
	emailSender          email.Sender
	emailTemplateService services.IEmailTemplateService
	userService          services.IUserService
	records              Records
	taskClient           IAsynqClient
	log                  *logger.Logger
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	emailTemplateService services.IEmailTemplateService,
	userService services.IUserService,
	records Records,
	taskClient IAsynqClient,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:                  cfg,
		emailSender:          emailSender,
		emailTemplateService: emailTemplateService,
		userService:          userService,
		records:              records,
		taskClient:           taskClient,
		log:                  logger.Global().Named("tasks"),
	}
}

// SetupServer configures an Asynq server and the mux of notification handlers.
// The caller starts and stops the server.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	log := processor.log
	srv := asynq.NewServer(
		redisOpt(rdb),
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error("task failed",
					zap.String("type", task.Type()), zap.ByteString("payload", task.Payload()), zap.Error(err))
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
	mux.HandleFunc(TypeInquiryNotify, processor.HandleInquiryNotifyTask)
	mux.HandleFunc(TypeVerificationNotify, processor.HandleVerificationNotifyTask)
	log.Info("registered background task handlers")
	return srv, mux
}

// --- Task Handlers ---

// EmailTaskPayload is the payload of TypeEmailDelivery.
type EmailTaskPayload struct {
	To         string                 `json:"to"`
	TemplateID string                 `json:"template_id"`
	Locale     string                 `json:"locale,omitempty"`
	Data       map[string]interface{} `json:"data"`
}

// HandleEmailDeliveryTask renders a template and sends it.
func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}

	locale := payload.Locale
	if locale == "" {
		locale = services.DefaultLocale
	}

	tmpl, err := p.emailTemplateService.GetTemplate(ctx, payload.TemplateID, locale)
	if err != nil {
		p.log.Error("email template lookup failed",
			zap.String("template_id", payload.TemplateID), zap.String("locale", locale), zap.Error(err))
		return fmt.Errorf("email template not found: %w", asynq.SkipRetry)
	}

	subject := render(tmpl.Subject, payload.Data)
	body := render(tmpl.Body, payload.Data)

	from := p.cfg.SmtpFromAddress
	if from == "" {
		from = "noreply@example.com"
		p.log.Warn("SMTP from address not configured, using fallback", zap.String("from", from))
	}

	raw := buildMessage(from, payload.To, subject, body, time.Now())
	if err := p.emailSender.Send(ctx, []string{payload.To}, subject, raw); err != nil {
		p.log.Warn("email sending failed", zap.String("template_id", payload.TemplateID), zap.Error(err))
		return err
	}

	p.log.Info("email sent", zap.String("to", payload.To), zap.String("template_id", payload.TemplateID))
	return nil
}

// render replaces {{.key}} placeholders.
func render(text string, data map[string]interface{}) string {
	for key, val := range data {
		text = strings.ReplaceAll(text, fmt.Sprintf("{{.%s}}", key), fmt.Sprintf("%v", val))
	}
	return text
}

func buildMessage(from, to, subject, body string, at time.Time) []byte {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", to))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", from))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString("Date: " + at.Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")
	return []byte(sb.String())
}

func decodeNotify(t *asynq.Task) (NotifyPayload, error) {
	var payload NotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if payload.ID == "" {
		return payload, fmt.Errorf("%s payload has no id: %w", t.Type(), asynq.SkipRetry)
	}
	return payload, nil
}

// recipient loads the user to notify. A nil user with nil error means skip.
func (p *TaskProcessor) recipient(ctx context.Context, userID string, wants func(*models.User) bool) (*models.User, error) {
	user, err := p.userService.FindByID(ctx, userID)
	if errors.Is(err, apperr.NotFound) {
		p.log.Info("notification recipient has no profile", zap.String("user_id", userID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if user.Email == "" || !wants(user) {
		return nil, nil
	}
	return user, nil
}

func (p *TaskProcessor) enqueueEmail(ctx context.Context, payload EmailTaskPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email payload: %v: %w", err, asynq.SkipRetry)
	}
	info, err := p.taskClient.EnqueueContext(ctx, asynq.NewTask(TypeEmailDelivery, data), asynq.MaxRetry(notifyMaxRetry))
	if err != nil {
		return err
	}
	p.log.Debug("email task enqueued", zap.String("task_id", info.ID), zap.String("template_id", payload.TemplateID))
	return nil
}

// HandleInquiryNotifyTask emails the listing agent about a new inquiry.
func (p *TaskProcessor) HandleInquiryNotifyTask(ctx context.Context, t *asynq.Task) error {
	payload, err := decodeNotify(t)
	if err != nil {
		return err
	}

	inq, err := p.records.GetInquiry(ctx, payload.ID)
	if errors.Is(err, apperr.NotFound) {
		return fmt.Errorf("inquiry %s not found: %w", payload.ID, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}

	agent, err := p.recipient(ctx, inq.AgentID, (*models.User).WantsInquiryEmails)
	if err != nil || agent == nil {
		return err
	}

	title := inq.PropertyID
	if prop, err := p.records.FindProperty(ctx, inq.PropertyID); err == nil && prop.Title != "" {
		title = prop.Title
	}

	return p.enqueueEmail(ctx, EmailTaskPayload{
		To:         agent.Email,
		TemplateID: services.TemplateNewInquiry,
		Data: map[string]interface{}{
			"agent_name":      agent.FullName,
			"inquirer_name":   inq.Name,
			"inquirer_email":  inq.Email,
			"inquiry_type":    string(inq.InquiryType),
			"property_title":  title,
			"message":         inq.Message,
			"conversation_id": inq.ConversationID,
			"app_name":        p.cfg.AppName,
		},
	})
}

// HandleVerificationNotifyTask emails the agent the outcome of their verification.
func (p *TaskProcessor) HandleVerificationNotifyTask(ctx context.Context, t *asynq.Task) error {
	payload, err := decodeNotify(t)
	if err != nil {
		return err
	}

	v, err := p.records.GetVerification(ctx, payload.ID)
	if errors.Is(err, apperr.NotFound) {
		return fmt.Errorf("verification %s not found: %w", payload.ID, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}

	var templateID string
	switch v.VerificationStatus {
	case workflow.VerificationApproved:
		templateID = services.TemplateVerificationApproved
	case workflow.VerificationRejected:
		templateID = services.TemplateVerificationRejected
	default:
		p.log.Warn("verification not decided, nothing to send", zap.String("verification_id", v.ID))
		return nil
	}

	agent, err := p.recipient(ctx, v.AgentID, (*models.User).WantsVerificationEmails)
	if err != nil || agent == nil {
		return err
	}

	name := v.AgentName
	if name == "" {
		name = agent.FullName
	}
	return p.enqueueEmail(ctx, EmailTaskPayload{
		To:         agent.Email,
		TemplateID: templateID,
		Data: map[string]interface{}{
			"agent_name":   name,
			"company_name": v.CompanyName,
			"app_name":     p.cfg.AppName,
		},
	})
}
