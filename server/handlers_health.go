package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const readyCheckTimeout = 5 * time.Second

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once the database answers, the schema is migrated
// and the bot has channels to log.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(ctx) }},
		{"schema", func() error {
			version, dirty, err := h.schemaVersion(ctx, h.db)
			if err != nil {
				return err
			}
			if dirty {
				return fmt.Errorf("migration %d is dirty", version)
			}
			if version == 0 {
				return errors.New("no migrations applied")
			}
			return nil
		}},
		{"chat", func() error {
			if h.bot == nil || len(h.bot.Status().JoinedChannels) == 0 {
				return errors.New("no channels joined")
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
