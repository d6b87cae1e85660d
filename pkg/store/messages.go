package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/vango-go/resilios/pkg/core/types"
)

const messageColumns = `id, role, content, attachment_mime, attachment_data, grounding, sticker, live_transcription, created_at`

// Add inserts msg for userID and returns its id.
func (s *Store) Add(ctx context.Context, userID string, msg types.Message) (int64, error) {
	created := msg.Timestamp
	if created.IsZero() {
		created = s.now()
	}

	var mime, data sql.NullString
	if msg.Attachment != nil {
		mime = sql.NullString{String: msg.Attachment.MIMEType, Valid: true}
		data = sql.NullString{String: msg.Attachment.Data, Valid: true}
	}
	var grounding []byte
	if len(msg.GroundingChunks) > 0 {
		b, err := json.Marshal(msg.GroundingChunks)
		if err != nil {
			return 0, fmt.Errorf("encode grounding: %w", err)
		}
		grounding = b
	}
	sticker := sql.NullString{String: msg.Sticker, Valid: msg.Sticker != ""}

	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (user_id, role, content, attachment_mime, attachment_data, grounding, sticker, live_transcription, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		userID, string(msg.Role), msg.Text, mime, data, grounding, sticker, msg.IsLiveTranscription, created.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return id, nil
}

// History returns the latest limit messages of userID, newest last.
func (s *Store) History(ctx context.Context, userID string, limit int) ([]types.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE user_id = $1 ORDER BY id DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

func scanMessage(rows *sql.Rows) (types.Message, error) {
	var (
		msg       types.Message
		role      string
		mime      sql.NullString
		data      sql.NullString
		grounding []byte
		sticker   sql.NullString
	)
	if err := rows.Scan(&msg.ID, &role, &msg.Text, &mime, &data, &grounding, &sticker, &msg.IsLiveTranscription, &msg.Timestamp); err != nil {
		return types.Message{}, fmt.Errorf("scan message: %w", err)
	}
	msg.Role = types.Role(role)
	if mime.Valid {
		msg.Attachment = &types.Attachment{MIMEType: mime.String, Data: data.String}
	}
	if len(grounding) > 0 {
		if err := json.Unmarshal(grounding, &msg.GroundingChunks); err != nil {
			return types.Message{}, fmt.Errorf("decode grounding: %w", err)
		}
	}
	msg.Sticker = sticker.String
	return msg, nil
}

// Delete removes a message by id. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// CountSince counts messages of userID created at or after since.
func (s *Store) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE user_id = $1 AND created_at >= $2`,
		userID, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// ExportRecord is one line of a history export.
type ExportRecord struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Sticker   string    `json:"sticker,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ExportJSONL writes every message, oldest first, one JSON object per line.
func (s *Store) ExportJSONL(ctx context.Context, w io.Writer) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, role, content, sticker, created_at FROM messages ORDER BY id ASC`)
	if err != nil {
		return 0, fmt.Errorf("query export: %w", err)
	}
	defer rows.Close()

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	n := 0
	for rows.Next() {
		var (
			rec     ExportRecord
			sticker sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Role, &rec.Content, &sticker, &rec.CreatedAt); err != nil {
			return n, fmt.Errorf("scan export: %w", err)
		}
		rec.Sticker = sticker.String
		if err := enc.Encode(rec); err != nil {
			return n, fmt.Errorf("write export: %w", err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("iterate export: %w", err)
	}
	return n, nil
}
