package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// Lookup returns the directory record for channelID, or nil when the channel is unknown.
func (p *Postgres) Lookup(ctx context.Context, channelID string) (*ChannelRecord, error) {
	var rec ChannelRecord
	err := p.db.QueryRowContext(ctx,
		`SELECT channel_id, name, registered_at, available FROM channels WHERE channel_id = $1`, channelID,
	).Scan(&rec.ChannelID, &rec.Name, &rec.RegisteredAt, &rec.Available)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "lookup channel")
	}
	return &rec, nil
}

// Register inserts a new available channel. A duplicate id yields ErrChannelExists.
func (p *Postgres) Register(ctx context.Context, channelID, name string) error {
	return register(ctx, p.db, channelID, name)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func register(ctx context.Context, ex execer, channelID, name string) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO channels (channel_id, name, registered_at, available) VALUES ($1, $2, NOW(), TRUE)`,
		channelID, name)
	if isPgCode(err, pgUniqueViolation) {
		return errors.Wrapf(ErrChannelExists, "channel %s", channelID)
	}
	return errors.Wrap(err, "register channel")
}

// SetAvailability flips the available flag. Updating to the current value is a no-op.
func (p *Postgres) SetAvailability(ctx context.Context, channelID string, available bool) error {
	_, err := p.db.ExecContext(ctx, `UPDATE channels SET available = $1 WHERE channel_id = $2`, available, channelID)
	return errors.Wrap(err, "set channel availability")
}

// ListActive returns available channels except the one named exclude, oldest first.
func (p *Postgres) ListActive(ctx context.Context, exclude string) ([]ChannelRecord, error) {
	return p.list(ctx,
		`SELECT channel_id, name, registered_at, available FROM channels
		 WHERE available = TRUE AND name <> $1 ORDER BY registered_at`, exclude)
}

// ListAll returns the whole directory, oldest first.
func (p *Postgres) ListAll(ctx context.Context) ([]ChannelRecord, error) {
	return p.list(ctx, `SELECT channel_id, name, registered_at, available FROM channels ORDER BY registered_at`)
}

func (p *Postgres) list(ctx context.Context, query string, args ...any) ([]ChannelRecord, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list channels")
	}
	defer rows.Close()

	var out []ChannelRecord
	for rows.Next() {
		var rec ChannelRecord
		if err := rows.Scan(&rec.ChannelID, &rec.Name, &rec.RegisteredAt, &rec.Available); err != nil {
			return nil, errors.Wrap(err, "scan channel")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate channels")
	}
	return out, nil
}

// Provision registers the channel and creates its log store in one transaction,
// so a failure leaves neither a directory row without a partition nor the reverse.
func (p *Postgres) Provision(ctx context.Context, channelID, name string) error {
	if !ValidChannelID(channelID) {
		return errors.Wrapf(ErrInvalidChannelID, "%q", channelID)
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin provision")
	}
	if err := register(ctx, tx, channelID, name); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := createStore(ctx, tx, channelID); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit provision")
}
