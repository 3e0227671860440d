package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/go-mud/go-mud-portal/lib/metrics"
	"github.com/go-mud/go-mud-portal/lib/util"
)

// DefaultHistoryLimit bounds the in-memory and persisted chat history.
const DefaultHistoryLimit = 300

// Outbound frame prefixes. Everything after the prefix is JSON.
const (
	FrameChat    = "portal.chat "
	FrameChatlog = "portal.chatlog "
)

// Member is a session the bus can deliver chat frames to.
//
// DeliverFrame must be safe for concurrent use and must not call back into
// the Bus synchronously: the bus holds its lock across a broadcast so that
// every member sees posts in append order, and a re-entrant call would
// deadlock. A member that fails to write should schedule its own teardown
// asynchronously.
type Member interface {
	// DeliverFrame writes one text frame to the member's browser.
	DeliverFrame(frame string)

	// ChatIdentity returns the member's display name ("" when unset) and
	// upstream host ("" when no upstream is connected). Used for the
	// online-users listing.
	ChatIdentity() (name, host string)
}

// Roster enumerates every live session, on the bus or not, for the
// online-users listing.
type Roster interface {
	Sessions() []Member
}

// Bus is the process-wide chat channel. Opted-in sessions receive every
// post; the bounded history is rewritten to disk after each append.
type Bus struct {
	mu      sync.Mutex
	members map[Member]struct{}
	history []Entry

	path   string
	limit  int
	roster Roster
	log    *logrus.Logger
}

// New loads the persisted history (tolerantly) and returns a ready bus.
// limit <= 0 selects DefaultHistoryLimit.
func New(path string, limit int, roster Roster, log *logrus.Logger) *Bus {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	history := Load(path)
	if len(history) > limit {
		history = append([]Entry(nil), history[len(history)-limit:]...)
	}
	return &Bus{
		members: make(map[Member]struct{}),
		history: history,
		path:    path,
		limit:   limit,
		roster:  roster,
		log:     log,
	}
}

// Join marks m as on the bus. Joining is idempotent and delivers nothing by
// itself; callers follow up with Update so everyone sees the new listing.
func (b *Bus) Join(m Member) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.members[m] = struct{}{}
}

// Leave drops m from the bus. Safe to call for non-members.
func (b *Bus) Leave(m Member) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.members, m)
}

// OnBus reports whether m currently receives posts.
func (b *Bus) OnBus(m Member) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.members[m]
	return ok
}

// Post sanitizes the payload's msg, appends an entry to the history,
// broadcasts portal.chat to every member including the sender, and rewrites
// the history file. Appending and broadcasting happen under one lock so
// posts reach every member in append order. Disk errors are logged and do
// not disturb the in-memory history.
func (b *Bus) Post(from Member, payload map[string]any) {
	if payload == nil {
		return
	}
	if msg, ok := payload["msg"].(string); ok {
		payload["msg"] = Cleanup(msg)
	}
	delete(payload, "chat")

	entry := Entry{Date: util.ISOTime(time.Now()), Data: payload}
	frame := FrameChat + util.EncodeJSON(payload)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.history = append(b.history, entry)
	if len(b.history) > b.limit {
		b.history = append([]Entry(nil), b.history[len(b.history)-b.limit:]...)
	}
	for m := range b.members {
		m.DeliverFrame(frame)
	}
	if err := Save(b.path, b.history); err != nil {
		b.log.WithError(err).Warn("chat history not persisted")
	}
	metrics.ChatPosts.Inc()
}

// Op sends m the chat log frame: the bounded history plus a synthetic
// status entry listing who is online. Op never writes to disk.
func (b *Bus) Op(m Member) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m.DeliverFrame(b.chatlogFrameLocked())
}

// Update delivers the chat log to every member. Invoked whenever the
// session set changes so listings stay current.
func (b *Bus) Update() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.members) == 0 {
		return
	}
	frame := b.chatlogFrameLocked()
	for m := range b.members {
		m.DeliverFrame(frame)
	}
}

// History returns a copy of the current entries, oldest first.
func (b *Bus) History() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Entry(nil), b.history...)
}

func (b *Bus) chatlogFrameLocked() string {
	items := make([]any, 0, len(b.history)+1)
	for _, e := range b.history {
		items = append(items, e)
	}
	items = append(items, map[string]any{
		"channel": "status",
		"name":    "online:",
		"msg":     b.userListLocked(),
	})
	return FrameChatlog + util.EncodeJSON(items)
}

// userListLocked formats the online listing: name-or-Guest at upstream host,
// or at "chat" for sessions without an upstream. Unnamed sessions without an
// upstream are invisible; duplicates collapse.
func (b *Bus) userListLocked() string {
	var sessions []Member
	if b.roster != nil {
		sessions = b.roster.Sessions()
	}

	seen := make(map[string]struct{})
	var users []string
	for _, m := range sessions {
		name, host := m.ChatIdentity()
		if name == "" && host == "" {
			continue
		}
		if name == "" {
			name = "Guest"
		}
		loc := host
		if loc == "" {
			loc = "chat"
		}
		u := name + "@" + loc
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		users = append(users, u)
	}
	return strings.Join(users, ", ")
}
