package server

import (
	"context"
	"database/sql"

	"github.com/onnwee/ttvlog/chat"
	dbpkg "github.com/onnwee/ttvlog/db"
	"github.com/onnwee/ttvlog/store"
)

// StatusProvider reports the running bot's state.
type StatusProvider interface {
	Status() chat.Status
}

// ChannelLister lists the channel directory.
type ChannelLister interface {
	ListAll(ctx context.Context) ([]store.ChannelRecord, error)
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db       *sql.DB
	bot      StatusProvider
	channels ChannelLister

	schemaVersion func(context.Context, *sql.DB) (uint, bool, error)
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(db *sql.DB, bot StatusProvider, channels ChannelLister) *Handlers {
	return &Handlers{
		db:            db,
		bot:           bot,
		channels:      channels,
		schemaVersion: dbpkg.GetMigrationVersion,
	}
}
