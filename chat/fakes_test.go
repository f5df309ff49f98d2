package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/ttvlog/store"
	"github.com/onnwee/ttvlog/twitchapi"
)

type fakeConn struct {
	mu      sync.Mutex
	said    []string
	joins   []string
	departs []string

	stop chan struct{}
	once sync.Once
}

func newFakeConn() *fakeConn { return &fakeConn{stop: make(chan struct{})} }

func (c *fakeConn) Say(channel, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.said = append(c.said, channel+": "+text)
}

func (c *fakeConn) Join(channels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joins = append(c.joins, channels...)
}

func (c *fakeConn) Depart(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.departs = append(c.departs, channel)
}

func (c *fakeConn) OnPrivateMessage(func(twitch.PrivateMessage))     {}
func (c *fakeConn) OnClearChatMessage(func(twitch.ClearChatMessage)) {}
func (c *fakeConn) OnClearMessage(func(twitch.ClearMessage))         {}
func (c *fakeConn) OnNoticeMessage(func(twitch.NoticeMessage))       {}
func (c *fakeConn) OnReconnectMessage(func(twitch.ReconnectMessage)) {}
func (c *fakeConn) OnConnect(func())                                 {}

func (c *fakeConn) Connect() error {
	<-c.stop
	return errors.New("client called Disconnect()")
}

func (c *fakeConn) Disconnect() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

func (c *fakeConn) replies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.said...)
}

func (c *fakeConn) joined() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.joins...)
}

func (c *fakeConn) departed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.departs...)
}

// fakeDirectory is an in-memory channel directory.
type fakeDirectory struct {
	mu          sync.Mutex
	channels    map[string]*store.ChannelRecord
	provisioned []string
	calls       int

	lookupErr    error
	provisionErr error
	setErr       error
	listErr      error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{channels: map[string]*store.ChannelRecord{}}
}

func (d *fakeDirectory) add(id, name string, available bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[id] = &store.ChannelRecord{ChannelID: id, Name: name, Available: available, RegisteredAt: time.Now()}
}

func (d *fakeDirectory) get(id string) *store.ChannelRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.channels[id]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

func (d *fakeDirectory) Lookup(_ context.Context, id string) (*store.ChannelRecord, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.lookupErr != nil {
		return nil, d.lookupErr
	}
	return d.get(id), nil
}

func (d *fakeDirectory) Provision(_ context.Context, id, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.provisionErr != nil {
		return d.provisionErr
	}
	if _, ok := d.channels[id]; ok {
		return store.ErrChannelExists
	}
	d.channels[id] = &store.ChannelRecord{ChannelID: id, Name: name, Available: true, RegisteredAt: time.Now()}
	d.provisioned = append(d.provisioned, id)
	return nil
}

func (d *fakeDirectory) SetAvailability(_ context.Context, id string, available bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.setErr != nil {
		return d.setErr
	}
	if rec, ok := d.channels[id]; ok {
		rec.Available = available
	}
	return nil
}

func (d *fakeDirectory) ListActive(_ context.Context, exclude string) ([]store.ChannelRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listErr != nil {
		return nil, d.listErr
	}
	var out []store.ChannelRecord
	for _, rec := range d.channels {
		if rec.Available && rec.Name != exclude {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (d *fakeDirectory) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type appendedMessage struct {
	channelID string
	msg       store.Message
}

type appendedModeration struct {
	channelID, targetID, targetName string
	kind                            store.ModerationKind
	duration                        int
}

type markCall struct {
	channelID, senderID, text string
}

type fakeLogs struct {
	mu         sync.Mutex
	messages   []appendedMessage
	moderation []appendedModeration
	marks      []markCall
	appendErr  error
}

func (l *fakeLogs) AppendMessage(_ context.Context, channelID string, msg store.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.appendErr != nil {
		return l.appendErr
	}
	l.messages = append(l.messages, appendedMessage{channelID, msg})
	return nil
}

func (l *fakeLogs) AppendModeration(_ context.Context, channelID, targetID, targetName string, kind store.ModerationKind, dur int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.moderation = append(l.moderation, appendedModeration{channelID, targetID, targetName, kind, dur})
	return nil
}

func (l *fakeLogs) MarkDeleted(_ context.Context, channelID, senderID, text string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.marks = append(l.marks, markCall{channelID, senderID, text})
	return 1, nil
}

// fakeUsers answers Helix lookups from two maps; logins are matched case-insensitively.
type fakeUsers struct {
	byLogin map[string]twitchapi.User
	byID    map[string]twitchapi.User
	err     error
}

func (u *fakeUsers) UserByLogin(_ context.Context, login string) (*twitchapi.User, error) {
	if u.err != nil {
		return nil, u.err
	}
	user, ok := u.byLogin[strings.ToLower(login)]
	if !ok {
		return nil, twitchapi.ErrUserNotFound
	}
	return &user, nil
}

func (u *fakeUsers) UserByID(_ context.Context, id string) (*twitchapi.User, error) {
	if u.err != nil {
		return nil, u.err
	}
	user, ok := u.byID[id]
	if !ok {
		return nil, twitchapi.ErrUserNotFound
	}
	return &user, nil
}

func (u *fakeUsers) put(id, login string) {
	user := twitchapi.User{ID: id, Login: login, DisplayName: login}
	u.byLogin[login] = user
	u.byID[id] = user
}

type harness struct {
	bot   *Bot
	conn  *fakeConn
	dir   *fakeDirectory
	logs  *fakeLogs
	users *fakeUsers
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		conn:  newFakeConn(),
		dir:   newFakeDirectory(),
		logs:  &fakeLogs{},
		users: &fakeUsers{byLogin: map[string]twitchapi.User{}, byID: map[string]twitchapi.User{}},
	}
	h.users.put("100", "home")
	h.bot = New(Options{
		Prefix:          "!",
		MentionName:     "ttvlog",
		Admins:          []string{"Admin"},
		IgnoredSenders:  []string{"nightbot", "supibot"},
		DefaultChannel:  "home",
		ReservedChannel: "home",
		StoreTimeout:    time.Second,
	}, h.conn, h.dir, h.logs, h.users)
	return h
}

func privmsg(sender, text string) twitch.PrivateMessage {
	return twitch.PrivateMessage{
		User:    twitch.User{ID: "1" + sender, Name: sender, DisplayName: sender, Color: "#FF0000", Badges: map[string]int{"subscriber": 12}},
		Message: text,
		Channel: "home",
		RoomID:  "100",
	}
}
