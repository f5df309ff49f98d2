package chat

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/ttvlog/store"
	"github.com/onnwee/ttvlog/telemetry"
	"github.com/onnwee/ttvlog/twitchapi"
)

// ChatClient is the outbound half of the chat connection.
type ChatClient interface {
	Say(channel, text string)
	Join(channels ...string)
	Depart(channel string)
}

// Conn is the subset of *twitch.Client the bot drives.
type Conn interface {
	ChatClient
	OnPrivateMessage(func(twitch.PrivateMessage))
	OnClearChatMessage(func(twitch.ClearChatMessage))
	OnClearMessage(func(twitch.ClearMessage))
	OnNoticeMessage(func(twitch.NoticeMessage))
	OnReconnectMessage(func(twitch.ReconnectMessage))
	OnConnect(func())
	Connect() error
	Disconnect() error
}

// Directory is the channel registry.
type Directory interface {
	Lookup(ctx context.Context, channelID string) (*store.ChannelRecord, error)
	Provision(ctx context.Context, channelID, name string) error
	SetAvailability(ctx context.Context, channelID string, available bool) error
	ListActive(ctx context.Context, exclude string) ([]store.ChannelRecord, error)
}

// LogStore receives the rows produced from chat events.
type LogStore interface {
	AppendMessage(ctx context.Context, channelID string, msg store.Message) error
	AppendModeration(ctx context.Context, channelID, targetID, targetName string, kind store.ModerationKind, durationSeconds int) error
	MarkDeleted(ctx context.Context, channelID, senderID, text string) (int64, error)
}

// UserLookup resolves Twitch users through Helix.
type UserLookup interface {
	UserByLogin(ctx context.Context, login string) (*twitchapi.User, error)
	UserByID(ctx context.Context, id string) (*twitchapi.User, error)
}

// Options configures a Bot.
type Options struct {
	Prefix          string
	MentionName     string
	Admins          []string
	IgnoredSenders  []string
	DefaultChannel  string
	ReservedChannel string
	// StoreTimeout bounds each storage call; zero disables the bound.
	StoreTimeout time.Duration
}

// Bot logs chat for every joined channel and serves admin commands.
type Bot struct {
	opts    Options
	admins  map[string]struct{}
	ignored map[string]struct{}

	conn  Conn
	dir   Directory
	logs  LogStore
	users UserLookup

	now       func() time.Time
	startedAt time.Time
	logged    atomic.Int64

	mu     sync.Mutex
	joined map[string]struct{}

	baseCtx context.Context
	wg      sync.WaitGroup
}

// New wires a Bot. Handlers are registered on conn immediately; nothing is joined until Run.
func New(opts Options, conn Conn, dir Directory, logs LogStore, users UserLookup) *Bot {
	b := &Bot{
		opts:    opts,
		admins:  toSet(opts.Admins),
		ignored: toSet(opts.IgnoredSenders),
		conn:    conn,
		dir:     dir,
		logs:    logs,
		users:   users,
		now:     time.Now,
		joined:  make(map[string]struct{}),
		baseCtx: context.Background(),
	}
	b.startedAt = b.now()

	conn.OnPrivateMessage(b.handlePrivateMessage)
	conn.OnClearChatMessage(b.handleClearChat)
	conn.OnClearMessage(func(m twitch.ClearMessage) {
		b.async(func(ctx context.Context) { b.handleClearMessage(ctx, m) })
	})
	conn.OnNoticeMessage(func(m twitch.NoticeMessage) {
		slog.Info("twitch notice", slog.String("component", "chat"), slog.String("channel", m.Channel),
			slog.String("msg_id", m.MsgID), slog.String("message", m.Message))
	})
	conn.OnReconnectMessage(func(twitch.ReconnectMessage) {
		slog.Warn("twitch requested reconnect", slog.String("component", "chat"))
	})
	conn.OnConnect(func() {
		slog.Info("connected to twitch chat", slog.String("component", "chat"), slog.Int("channels", len(b.JoinedChannels())))
	})
	return b
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it = strings.ToLower(strings.TrimSpace(it)); it != "" {
			set[it] = struct{}{}
		}
	}
	return set
}

// Run joins the default channel plus every active channel from the directory and
// blocks on the chat connection until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.baseCtx = ctx

	channels := b.startupChannels(ctx)
	b.joinChannels(channels...)
	slog.Info("joining channels", slog.String("component", "chat"), slog.Any("channels", channels))

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if err := b.conn.Disconnect(); err != nil {
				slog.Debug("twitch disconnect", slog.String("component", "chat"), slog.Any("err", err))
			}
		case <-done:
		}
	}()

	err := b.conn.Connect()
	close(done)
	b.wg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// startupChannels resolves the logins to join at startup. Storage and lookup failures
// are logged and skipped; the default channel is always joined.
func (b *Bot) startupChannels(ctx context.Context) []string {
	logger := slog.With(slog.String("component", "chat"))
	out := []string{}
	seen := map[string]bool{}
	add := func(login string) {
		login = strings.ToLower(login)
		if login != "" && !seen[login] {
			seen[login] = true
			out = append(out, login)
		}
	}

	if b.opts.DefaultChannel != "" {
		add(b.opts.DefaultChannel)
		if err := b.ensureRegistered(ctx, b.opts.DefaultChannel); err != nil {
			logger.Error("default channel not provisioned", slog.String("channel", b.opts.DefaultChannel), slog.Any("err", err))
		}
	}

	sctx, cancel := b.storeCtx(ctx)
	active, err := b.dir.ListActive(sctx, b.opts.ReservedChannel)
	cancel()
	if err != nil {
		logger.Error("error while selecting the list of channels", slog.Any("err", err))
		return out
	}
	for _, rec := range active {
		user, err := b.users.UserByID(ctx, rec.ChannelID)
		if err != nil {
			// renamed or unreachable: the registered name is the best guess
			logger.Warn("channel id lookup failed, using registered name",
				slog.String("channel_id", rec.ChannelID), slog.String("channel", rec.Name), slog.Any("err", err))
			add(rec.Name)
			continue
		}
		add(user.Login)
	}
	return out
}

// ensureRegistered provisions login when its channel id is not in the directory yet.
func (b *Bot) ensureRegistered(ctx context.Context, login string) error {
	user, err := b.users.UserByLogin(ctx, login)
	if err != nil {
		return err
	}
	sctx, cancel := b.storeCtx(ctx)
	defer cancel()
	rec, err := b.dir.Lookup(sctx, user.ID)
	if err != nil || rec != nil {
		return err
	}
	if err := b.dir.Provision(sctx, user.ID, login); err != nil {
		return err
	}
	slog.Info("provisioned default channel", slog.String("component", "chat"), slog.String("channel", login), slog.String("channel_id", user.ID))
	return nil
}

func (b *Bot) storeCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if b.opts.StoreTimeout > 0 {
		return context.WithTimeout(parent, b.opts.StoreTimeout)
	}
	return context.WithCancel(parent)
}

// async runs fn off the IRC reader goroutine; Run waits for it before returning.
func (b *Bot) async(fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(b.baseCtx)
	}()
}

func (b *Bot) joinChannels(logins ...string) {
	var fresh []string
	b.mu.Lock()
	for _, l := range logins {
		l = strings.ToLower(l)
		if _, ok := b.joined[l]; !ok {
			b.joined[l] = struct{}{}
			fresh = append(fresh, l)
		}
	}
	n := len(b.joined)
	b.mu.Unlock()
	if len(fresh) > 0 {
		b.conn.Join(fresh...)
	}
	telemetry.SetJoinedChannels(n)
}

func (b *Bot) departChannel(login string) {
	login = strings.ToLower(login)
	b.mu.Lock()
	delete(b.joined, login)
	n := len(b.joined)
	b.mu.Unlock()
	b.conn.Depart(login)
	telemetry.SetJoinedChannels(n)
}

// JoinedChannels returns the logins currently joined, sorted.
func (b *Bot) JoinedChannels() []string {
	b.mu.Lock()
	out := make([]string, 0, len(b.joined))
	for c := range b.joined {
		out = append(out, c)
	}
	b.mu.Unlock()
	sort.Strings(out)
	return out
}

// Status is a point-in-time view of the bot for the HTTP status endpoint.
type Status struct {
	StartedAt      time.Time `json:"started_at"`
	Uptime         string    `json:"uptime"`
	MessagesLogged int64     `json:"messages_logged"`
	JoinedChannels []string  `json:"joined_channels"`
}

// Status reports uptime, the logged message counter and joined channels.
func (b *Bot) Status() Status {
	return Status{
		StartedAt:      b.startedAt,
		Uptime:         FormatUptime(b.now().Sub(b.startedAt)),
		MessagesLogged: b.logged.Load(),
		JoinedChannels: b.JoinedChannels(),
	}
}
