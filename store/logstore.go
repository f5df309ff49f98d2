package store

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// CreateStore attaches the log partition for channelID. It is not idempotent:
// a second call for the same id returns ErrStoreExists.
func (p *Postgres) CreateStore(ctx context.Context, channelID string) error {
	if !ValidChannelID(channelID) {
		return errors.Wrapf(ErrInvalidChannelID, "%q", channelID)
	}
	return createStore(ctx, p.db, channelID)
}

func createStore(ctx context.Context, ex execer, channelID string) error {
	// partition bounds cannot be bound parameters; channelID is digits only at this point
	q := fmt.Sprintf(`CREATE TABLE %s PARTITION OF chat_logs FOR VALUES IN ('%s')`, partitionName(channelID), channelID)
	_, err := ex.ExecContext(ctx, q)
	if isPgCode(err, pgDuplicateTable) {
		return errors.Wrapf(ErrStoreExists, "channel %s", channelID)
	}
	return errors.Wrap(err, "create log store")
}

// AppendMessage inserts a chat message into the channel log.
func (p *Postgres) AppendMessage(ctx context.Context, channelID string, msg Message) error {
	emotes, err := marshalOptional(msg.Emotes)
	if err != nil {
		return errors.Wrap(err, "encode emotes")
	}
	badges, err := marshalOptional(msg.Badges)
	if err != nil {
		return errors.Wrap(err, "encode badges")
	}
	const q = `INSERT INTO chat_logs (channel_id, sender_id, name, message, emotes, color, badges, kind)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = p.db.ExecContext(ctx, q, channelID, nullIfEmpty(msg.SenderID), msg.Name, msg.Text,
		emotes, nullIfEmpty(msg.Color), badges, string(KindMessage))
	return errors.Wrap(err, "insert message")
}

// AppendModeration inserts a synthesized row describing a timeout or ban of targetName.
// durationSeconds is ignored for bans.
func (p *Postgres) AppendModeration(ctx context.Context, channelID, targetID, targetName string, kind ModerationKind, durationSeconds int) error {
	if kind != KindTimeout && kind != KindBan {
		return errors.Errorf("unsupported moderation kind %q", kind)
	}
	const q = `INSERT INTO chat_logs (channel_id, sender_id, name, message, kind) VALUES ($1, $2, $3, $4, $5)`
	_, err := p.db.ExecContext(ctx, q, channelID, nullIfEmpty(targetID), targetName,
		ModerationText(kind, targetName, durationSeconds), string(kind))
	return errors.Wrap(err, "insert moderation event")
}

// MarkDeleted flags every row of the channel sent by senderID with exactly text.
// Rows are never removed; it returns how many rows were newly flagged.
func (p *Postgres) MarkDeleted(ctx context.Context, channelID, senderID, text string) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE chat_logs SET is_deleted = TRUE
		 WHERE channel_id = $1 AND sender_id = $2 AND message = $3 AND is_deleted = FALSE`,
		channelID, senderID, text)
	if err != nil {
		return 0, errors.Wrap(err, "mark deleted")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "mark deleted rows affected")
}

// CountEntries returns the number of rows logged for channelID.
func (p *Postgres) CountEntries(ctx context.Context, channelID string) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_logs WHERE channel_id = $1`, channelID).Scan(&n)
	return n, errors.Wrap(err, "count entries")
}

// Entries returns the log of channelID in insertion order.
func (p *Postgres) Entries(ctx context.Context, channelID string, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, channel_id, sender_id, name, message, emotes, badges, color, kind, created_at, is_deleted
		 FROM chat_logs WHERE channel_id = $1 ORDER BY id LIMIT $2`, channelID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list entries")
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var (
			e    LogEntry
			kind string
		)
		if err := rows.Scan(&e.ID, &e.ChannelID, &e.SenderID, &e.Name, &e.Message, &e.Emotes, &e.Badges,
			&e.Color, &kind, &e.CreatedAt, &e.IsDeleted); err != nil {
			return nil, errors.Wrap(err, "scan entry")
		}
		e.Kind = ModerationKind(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate entries")
	}
	return out, nil
}
