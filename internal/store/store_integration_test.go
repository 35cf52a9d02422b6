//go:build integration

package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-chat-parser/internal/domain"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL, 2)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))

	t.Cleanup(s.Close)
	return s
}

func TestIntegration_SaveAndLoadChat(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	hash := "integration-" + uuid.NewString()

	result := &domain.ChatResult{
		Hash:   hash,
		Source: "chat.txt",
		Chat: &domain.ParsedChat{
			Participants: []string{"Ann", "Bob"},
			Messages: []domain.Message{
				{Date: "1/1/24", Time: "10:00", Sender: "Ann", Text: "hi"},
				{Date: "1/1/24", Time: "10:01", Sender: "Bob", Media: &domain.MediaReference{Type: domain.MediaImage, Name: "a.jpg"}},
			},
		},
		Unresolved: []string{"a.jpg"},
		Stats:      domain.ChatStats{TotalMessages: 2, ParticipantCount: 2},
		Gallery:    domain.Gallery{Media: []domain.MediaReference{{Type: domain.MediaImage, Name: "a.jpg"}}, Docs: []domain.MediaReference{}, Links: []string{}},
	}

	require.NoError(t, s.SaveChat(ctx, result))
	// Saving twice replaces the messages instead of duplicating them.
	require.NoError(t, s.SaveChat(ctx, result))

	loaded, err := s.LoadChat(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, result.Chat.Messages, loaded.Chat.Messages)
	assert.Equal(t, result.Chat.Participants, loaded.Chat.Participants)
	assert.Equal(t, result.Unresolved, loaded.Unresolved)
	assert.Equal(t, 2, loaded.Stats.TotalMessages)
	assert.Equal(t, result.Gallery, loaded.Gallery)

	missing, err := s.LoadChat(ctx, "missing-"+uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
