package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/ttvlog/telemetry"
	"github.com/onnwee/ttvlog/twitchapi"
)

const (
	replyNoChannel   = "You did not specify the name of the channel"
	replyFailed      = "Error while executing FeelsDankMan"
	replyUnknownLeft = "Specified channel does not exist in the database"
	replyNotAdmin    = `So you call these things "chips"? Instead of crispity crunchy munchie crackerjack snackernibbler snap crack n pop westpool chestershire queens lovely jubily delights? Thats rather a bit cringe, innit bruv.`
)

// Command is a parsed "<prefix><mention> <name> [arg]" chat command.
type Command struct {
	Name string
	Arg  string
}

// chatterino appends this tag to repeated messages so Twitch accepts them
const duplicateBypass = "\U000E0000"

// ParseCommand reports whether text addresses the bot as "<prefix><mention> <name> [arg]".
// The mention is matched case-insensitively; the name is lowercased and unknown names are
// returned as-is for the caller to ignore.
func ParseCommand(prefix, mention, text string) (Command, bool) {
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return Command{}, false
	}
	text = strings.ReplaceAll(text[len(prefix):], duplicateBypass, "")
	fields := strings.Fields(text)
	if len(fields) < 2 || !strings.EqualFold(fields[0], mention) {
		return Command{}, false
	}
	cmd := Command{Name: strings.ToLower(fields[1])}
	if len(fields) > 2 {
		cmd.Arg = fields[2]
	}
	return cmd, true
}

// splitChannels splits a comma separated channel list, dropping empty entries.
func splitChannels(arg string, lower bool) []string {
	var out []string
	for _, p := range strings.Split(arg, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if lower {
			p = strings.ToLower(p)
		}
		out = append(out, p)
	}
	return out
}

func (b *Bot) reply(msg twitch.PrivateMessage, text string) {
	who := msg.User.DisplayName
	if who == "" {
		who = msg.User.Name
	}
	b.conn.Say(msg.Channel, fmt.Sprintf("@%s, %s", who, text))
}

// dispatch runs one chat command. Every command gets a correlation id for logs and spans.
func (b *Bot) dispatch(ctx context.Context, msg twitch.PrivateMessage) {
	cmd, ok := ParseCommand(b.opts.Prefix, b.opts.MentionName, msg.Message)
	if !ok {
		return
	}
	switch cmd.Name {
	case "join", "leave", "ping":
	default:
		return
	}

	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, "chat", "command."+cmd.Name,
		attribute.String("chat.channel", msg.Channel), attribute.String("chat.sender", msg.User.Name))
	defer span.End()
	logger := telemetry.LoggerWithCorr(ctx).With("component", "chat", "command", cmd.Name, "sender", msg.User.Name, "channel", msg.Channel)

	var outcome string
	telemetry.TimeFunc(telemetry.CommandDuration, func() {
		switch cmd.Name {
		case "join":
			outcome = b.cmdJoin(ctx, msg, cmd.Arg)
		case "leave":
			outcome = b.cmdLeave(ctx, msg, cmd.Arg)
		case "ping":
			outcome = b.cmdPing(msg)
		}
	})
	span.SetAttributes(attribute.String("chat.outcome", outcome))
	telemetry.IncCommand(cmd.Name, outcome)
	logger.Info("command handled", "outcome", outcome)
}

func (b *Bot) cmdPing(msg twitch.PrivateMessage) string {
	b.reply(msg, fmt.Sprintf("Pong! Uptime: %s, Logged: %s messages.",
		FormatUptime(b.now().Sub(b.startedAt)), strconv.FormatInt(b.logged.Load(), 10)))
	return "ok"
}

func (b *Bot) cmdJoin(ctx context.Context, msg twitch.PrivateMessage, arg string) string {
	if !b.isAdmin(msg.User.Name) {
		b.reply(msg, replyNotAdmin)
		return "denied"
	}
	names := splitChannels(arg, true)
	if len(names) == 0 {
		b.reply(msg, replyNoChannel)
		return "invalid"
	}
	outcome := "ok"
	for _, name := range names {
		if err := b.joinOne(ctx, msg, name); err != nil {
			outcome = "error"
		}
	}
	return outcome
}

// joinOne registers and joins one channel. A returned error has already been answered in chat.
func (b *Bot) joinOne(ctx context.Context, msg twitch.PrivateMessage, name string) error {
	logger := telemetry.LoggerWithCorr(ctx).With("component", "chat", "target", name)

	user, ok := b.resolve(ctx, msg, name)
	if !ok {
		return nil
	}

	sctx, cancel := b.storeCtx(ctx)
	defer cancel()
	rec, err := b.dir.Lookup(sctx, user.ID)
	if err != nil {
		logger.Error("channel lookup failed", "err", err)
		telemetry.IncStoreFailure("lookup")
		b.reply(msg, replyFailed)
		return err
	}

	switch {
	case rec == nil:
		if err := b.dir.Provision(sctx, user.ID, name); err != nil {
			logger.Error("channel provisioning failed", "channel_id", user.ID, "err", err)
			telemetry.IncStoreFailure("provision")
			b.reply(msg, replyFailed)
			return err
		}
		b.joinChannels(name)
		logger.Info("channel registered", "channel_id", user.ID)
		b.reply(msg, fmt.Sprintf("Successfully joined %s", name))
	case !rec.Available:
		if err := b.dir.SetAvailability(sctx, user.ID, true); err != nil {
			logger.Error("channel reactivation failed", "channel_id", user.ID, "err", err)
			telemetry.IncStoreFailure("set_availability")
			b.reply(msg, replyFailed)
			return err
		}
		b.joinChannels(name)
		logger.Info("channel reactivated", "channel_id", user.ID)
		b.reply(msg, fmt.Sprintf("Successfully joined %s (after leaving)", name))
	default:
		b.reply(msg, fmt.Sprintf("Channel %s is already in logs", name))
	}
	return nil
}

func (b *Bot) cmdLeave(ctx context.Context, msg twitch.PrivateMessage, arg string) string {
	if !b.isAdmin(msg.User.Name) {
		b.reply(msg, replyNotAdmin)
		return "denied"
	}
	names := splitChannels(arg, false)
	if len(names) == 0 {
		b.reply(msg, replyNoChannel)
		return "invalid"
	}
	outcome := "ok"
	for _, name := range names {
		if err := b.leaveOne(ctx, msg, name); err != nil {
			outcome = "error"
		}
	}
	return outcome
}

// leaveOne marks one channel unavailable and parts it. Its log store is kept.
func (b *Bot) leaveOne(ctx context.Context, msg twitch.PrivateMessage, name string) error {
	logger := telemetry.LoggerWithCorr(ctx).With("component", "chat", "target", name)

	user, ok := b.resolve(ctx, msg, name)
	if !ok {
		return nil
	}

	sctx, cancel := b.storeCtx(ctx)
	defer cancel()
	rec, err := b.dir.Lookup(sctx, user.ID)
	if err != nil {
		logger.Error("channel lookup failed", "err", err)
		telemetry.IncStoreFailure("lookup")
		b.reply(msg, replyFailed)
		return err
	}
	if rec == nil {
		b.reply(msg, replyUnknownLeft)
		return nil
	}
	if err := b.dir.SetAvailability(sctx, user.ID, false); err != nil {
		logger.Error("channel deactivation failed", "channel_id", user.ID, "err", err)
		telemetry.IncStoreFailure("set_availability")
		b.reply(msg, replyFailed)
		return err
	}
	b.departChannel(name)
	logger.Info("channel left", "channel_id", user.ID)
	b.reply(msg, fmt.Sprintf("Successfully parted from %s", name))
	return nil
}

// resolve looks name up on Helix and answers in chat when it does not exist.
func (b *Bot) resolve(ctx context.Context, msg twitch.PrivateMessage, name string) (*twitchapi.User, bool) {
	user, err := b.users.UserByLogin(ctx, name)
	if err != nil {
		if !errors.Is(err, twitchapi.ErrUserNotFound) {
			telemetry.LoggerWithCorr(ctx).Warn("helix lookup failed", "component", "chat", "target", name, "err", err)
		}
		b.reply(msg, fmt.Sprintf("User: %s does not exist", name))
		return nil, false
	}
	return user, true
}
