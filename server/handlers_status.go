package server

import (
	"log/slog"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/onnwee/ttvlog/store"
	"github.com/onnwee/ttvlog/telemetry"
)

// HandleStatus returns uptime, the logged message count and the joined channels.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.bot == nil {
		http.Error(w, "bot not running", http.StatusServiceUnavailable)
		return
	}
	st := h.bot.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"started_at":              st.StartedAt,
		"uptime":                  st.Uptime,
		"messages_logged":         st.MessagesLogged,
		"messages_logged_display": humanize.Comma(st.MessagesLogged),
		"joined_channels":         st.JoinedChannels,
	})
}

// HandleChannels lists the channel directory. ?available=true|false filters by availability.
func (h *Handlers) HandleChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	filter, err := parseBoolQuery(r, "available")
	if err != nil {
		http.Error(w, "invalid available parameter", http.StatusBadRequest)
		return
	}

	all, err := h.channels.ListAll(r.Context())
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("list channels", slog.Any("err", err), slog.String("component", "http"))
		http.Error(w, "failed to list channels", http.StatusInternalServerError)
		return
	}
	out := make([]store.ChannelRecord, 0, len(all))
	for _, rec := range all {
		if filter == nil || rec.Available == *filter {
			out = append(out, rec)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": out, "count": len(out)})
}
