// Package store persists the channel directory and the per-channel chat logs in Postgres.
//
// The directory is the channels table. Chat logs live in one list-partitioned
// table, chat_logs, where every logged channel owns exactly one partition
// (chat_logs_<channel id>) attached the first time the channel is joined.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

var (
	// ErrChannelExists is returned by Register when the channel id is already in the directory.
	ErrChannelExists = errors.New("channel already registered")
	// ErrStoreExists is returned by CreateStore when the channel already has a log partition.
	ErrStoreExists = errors.New("channel log store already exists")
	// ErrInvalidChannelID rejects ids that are not Twitch numeric user ids.
	ErrInvalidChannelID = errors.New("invalid channel id")
)

// Postgres error codes handled explicitly.
const (
	pgUniqueViolation = "23505"
	pgDuplicateTable  = "42P07"
)

var channelIDPattern = regexp.MustCompile(`^[0-9]{1,20}$`)

// ChannelRecord is one row of the channel directory.
type ChannelRecord struct {
	ChannelID    string    `json:"channel_id"`
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
	Available    bool      `json:"available"`
}

// ModerationKind identifies a synthesized moderation row.
type ModerationKind string

const (
	KindMessage ModerationKind = "message"
	KindTimeout ModerationKind = "timeout"
	KindBan     ModerationKind = "ban"
)

// Message is a chat message to append to a channel log.
type Message struct {
	SenderID string
	Name     string
	Text     string
	Emotes   any // serialized as JSON when non-empty
	Badges   any // serialized as JSON when non-empty
	Color    string
}

// LogEntry is one row of a channel log.
type LogEntry struct {
	ID        int64
	ChannelID string
	SenderID  sql.NullString
	Name      string
	Message   sql.NullString
	Emotes    sql.NullString
	Badges    sql.NullString
	Color     sql.NullString
	Kind      ModerationKind
	CreatedAt time.Time
	IsDeleted bool
}

// Postgres implements the directory and the log store on a *sql.DB opened with the pgx driver.
type Postgres struct {
	db *sql.DB
}

// New returns a Postgres store over db. The schema must already be migrated.
func New(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// ValidChannelID reports whether id can name a log partition.
func ValidChannelID(id string) bool {
	return channelIDPattern.MatchString(id)
}

func partitionName(channelID string) string {
	return pgx.Identifier{"chat_logs_" + channelID}.Sanitize()
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// marshalOptional returns NULL for empty collections and their JSON text otherwise.
func marshalOptional(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	switch string(b) {
	case "null", "[]", "{}", `""`:
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ModerationText renders the synthesized message stored for a timeout or ban.
func ModerationText(kind ModerationKind, targetName string, durationSeconds int) string {
	switch kind {
	case KindTimeout:
		return fmt.Sprintf("%s has been timed out for %d seconds", targetName, durationSeconds)
	case KindBan:
		return fmt.Sprintf("%s has been banned", targetName)
	default:
		return targetName
	}
}
