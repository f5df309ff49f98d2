package chat

import (
	"context"
	"log/slog"
	"strings"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/ttvlog/store"
	"github.com/onnwee/ttvlog/telemetry"
)

type emote struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func emotesOf(in []*twitch.Emote) []emote {
	if len(in) == 0 {
		return nil
	}
	out := make([]emote, 0, len(in))
	for _, e := range in {
		if e != nil {
			out = append(out, emote{ID: e.ID, Name: e.Name, Count: e.Count})
		}
	}
	return out
}

func (b *Bot) isIgnored(login string) bool {
	_, ok := b.ignored[strings.ToLower(login)]
	return ok
}

func (b *Bot) isAdmin(login string) bool {
	_, ok := b.admins[strings.ToLower(login)]
	return ok
}

// handlePrivateMessage logs msg into its channel store, then hands commands to the dispatcher.
// The insert runs inline so rows of one channel keep their arrival order.
func (b *Bot) handlePrivateMessage(msg twitch.PrivateMessage) {
	if b.isIgnored(msg.User.Name) {
		telemetry.IncMessagesIgnored()
		return
	}
	b.logged.Add(1)

	if msg.RoomID == "" {
		slog.Warn("[LOGGING] message without room id", slog.String("component", "chat"), slog.String("channel", msg.Channel))
	} else {
		name := msg.User.DisplayName
		if name == "" {
			name = msg.User.Name
		}
		ctx, cancel := b.storeCtx(b.baseCtx)
		err := b.logs.AppendMessage(ctx, msg.RoomID, store.Message{
			SenderID: msg.User.ID,
			Name:     name,
			Text:     msg.Message,
			Emotes:   emotesOf(msg.Emotes),
			Badges:   msg.User.Badges,
			Color:    msg.User.Color,
		})
		cancel()
		if err != nil {
			telemetry.IncStoreFailure("append_message")
			slog.Warn("[LOGGING] failed to store message", slog.String("component", "chat"),
				slog.String("channel", msg.Channel), slog.String("channel_id", msg.RoomID), slog.Any("err", err))
		} else {
			telemetry.IncMessagesLogged()
		}
	}

	if strings.HasPrefix(msg.Message, b.opts.Prefix) {
		b.async(func(ctx context.Context) { b.dispatch(ctx, msg) })
	}
}

// handleClearChat logs a timeout (positive duration) or a ban. Full chat clears carry
// no target and are not logged.
func (b *Bot) handleClearChat(msg twitch.ClearChatMessage) {
	if msg.TargetUsername == "" {
		slog.Debug("chat cleared", slog.String("component", "chat"), slog.String("channel", msg.Channel))
		return
	}
	kind := store.KindBan
	if msg.BanDuration > 0 {
		kind = store.KindTimeout
	}

	ctx, cancel := b.storeCtx(b.baseCtx)
	defer cancel()
	if err := b.logs.AppendModeration(ctx, msg.RoomID, msg.TargetUserID, msg.TargetUsername, kind, msg.BanDuration); err != nil {
		telemetry.IncStoreFailure("append_moderation")
		slog.Warn("[LOGGING] failed to store moderation event", slog.String("component", "chat"),
			slog.String("channel", msg.Channel), slog.String("target", msg.TargetUsername), slog.String("kind", string(kind)), slog.Any("err", err))
		return
	}
	telemetry.IncModeration(string(kind))
}

// handleClearMessage flags every row of the sender with the deleted text as deleted.
// CLEARMSG carries logins only, so both ids come from Helix.
func (b *Bot) handleClearMessage(ctx context.Context, msg twitch.ClearMessage) {
	logger := slog.With(slog.String("component", "chat"), slog.String("channel", msg.Channel), slog.String("sender", msg.Login))

	channel, err := b.users.UserByLogin(ctx, msg.Channel)
	if err != nil {
		logger.Warn("[LOGGING] clearmsg channel lookup failed", slog.Any("err", err))
		return
	}
	sender, err := b.users.UserByLogin(ctx, msg.Login)
	if err != nil {
		logger.Warn("[LOGGING] clearmsg sender lookup failed", slog.Any("err", err))
		return
	}

	sctx, cancel := b.storeCtx(ctx)
	defer cancel()
	n, err := b.logs.MarkDeleted(sctx, channel.ID, sender.ID, msg.Message)
	if err != nil {
		telemetry.IncStoreFailure("mark_deleted")
		logger.Warn("[LOGGING] failed to mark message deleted", slog.Any("err", err))
		return
	}
	telemetry.AddDeletionsMarked(n)
	logger.Debug("marked messages deleted", slog.Int64("rows", n))
}
