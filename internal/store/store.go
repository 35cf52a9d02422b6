// Package store persists processed chats in PostgreSQL.
package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"whatsapp-chat-parser/internal/domain"
)

//go:embed schema.sql
var schema string

var messageColumns = []string{
	"chat_hash", "seq", "date", "time", "sender", "text", "media_type", "media_name", "edited", "pinned",
}

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// SaveChat replaces any previous copy of the chat with the same hash.
// Resolved media is not stored: its bytes live in the uploaded archive.
func (s *Store) SaveChat(ctx context.Context, result *domain.ChatResult) error {
	if result == nil || result.Chat == nil {
		return errors.New("save chat: empty result")
	}

	stats, err := json.Marshal(result.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	gallery, err := json.Marshal(result.Gallery)
	if err != nil {
		return fmt.Errorf("marshal gallery: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO chats (hash, source, participants, unresolved, stats, gallery, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (hash) DO UPDATE SET
			source = EXCLUDED.source,
			participants = EXCLUDED.participants,
			unresolved = EXCLUDED.unresolved,
			stats = EXCLUDED.stats,
			gallery = EXCLUDED.gallery`,
		result.Hash, result.Source, nonNil(result.Chat.Participants), nonNil(result.Unresolved), stats, gallery,
	)
	if err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chat_messages WHERE chat_hash = $1`, result.Hash); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"chat_messages"}, messageColumns,
		pgx.CopyFromRows(messageRows(result.Hash, result.Chat.Messages)))
	if err != nil {
		return fmt.Errorf("copy messages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadChat returns nil without an error when no chat has the given hash.
func (s *Store) LoadChat(ctx context.Context, hash string) (*domain.ChatResult, error) {
	var (
		result         = &domain.ChatResult{Hash: hash, Chat: &domain.ParsedChat{}, Media: domain.ResolvedMediaMap{}}
		stats, gallery []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT source, participants, unresolved, stats, gallery
		FROM chats WHERE hash = $1`, hash,
	).Scan(&result.Source, &result.Chat.Participants, &result.Unresolved, &stats, &gallery)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select chat: %w", err)
	}
	if err := json.Unmarshal(stats, &result.Stats); err != nil {
		return nil, fmt.Errorf("unmarshal stats: %w", err)
	}
	if err := json.Unmarshal(gallery, &result.Gallery); err != nil {
		return nil, fmt.Errorf("unmarshal gallery: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT date, time, sender, text, media_type, media_name, edited, pinned
		FROM chat_messages WHERE chat_hash = $1 ORDER BY seq`, hash)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msg                  domain.Message
			mediaType, mediaName *string
		)
		if err := rows.Scan(&msg.Date, &msg.Time, &msg.Sender, &msg.Text, &mediaType, &mediaName, &msg.Edited, &msg.Pinned); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Media = mediaFromColumns(mediaType, mediaName)
		result.Chat.Messages = append(result.Chat.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return result, nil
}

func messageRows(hash string, messages []domain.Message) [][]any {
	rows := make([][]any, len(messages))
	for i, msg := range messages {
		var mediaType, mediaName *string
		if msg.Media != nil {
			t, n := string(msg.Media.Type), msg.Media.Name
			mediaType, mediaName = &t, &n
		}
		rows[i] = []any{hash, i, msg.Date, msg.Time, msg.Sender, msg.Text, mediaType, mediaName, msg.Edited, msg.Pinned}
	}
	return rows
}

func mediaFromColumns(mediaType, mediaName *string) *domain.MediaReference {
	if mediaType == nil || mediaName == nil {
		return nil
	}
	return &domain.MediaReference{Type: domain.MediaType(*mediaType), Name: *mediaName}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
