package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"greendrake/estate/internal/logger"
	"greendrake/estate/internal/models"
)

func TestMongoStore_SummaryUpdateFailureIsLogged(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Nothing listens here, so every operation fails server selection.
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI("mongodb://127.0.0.1:1").
		SetServerSelectionTimeout(100*time.Millisecond))
	require.NoError(t, err)
	defer func() { _ = client.Disconnect(context.Background()) }()

	core, logs := observer.New(zapcore.WarnLevel)
	s := NewMongoStore(client.Database("estate_test"), Options{
		Timeout: 500 * time.Millisecond,
		Logger:  &logger.Logger{Logger: zap.New(core)},
	})

	s.touchConversation(ctx, &models.Message{ConversationID: "conv-1", Sequence: 7, CreatedAt: time.Now()})

	entries := logs.FilterMessage("conversation summary update failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "conv-1", fields["conversation_id"])
	assert.EqualValues(t, 7, fields["sequence"])
	assert.NotEmpty(t, fields["error"])
}
