package presence

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FAKUBA08/HaySquare-Back/internal/domain"
	"github.com/FAKUBA08/HaySquare-Back/internal/metrics"
)

// Entry is the presence state of one visitor.
type Entry struct {
	VisitorID   string `json:"visitorId"`
	Handle      string `json:"-"`
	Active      bool   `json:"active"`
	LastMessage string `json:"lastMessage"`
	Typing      bool   `json:"typing"`
}

// Broadcaster delivers server events. Implementations must not block and
// must not call back into the Registry.
type Broadcaster interface {
	ToAdmins(event string, payload any)
	ToVisitor(visitorID, event string, payload any)
}

// Mirror receives a copy of every entry change. Calls must not block.
type Mirror interface {
	Upsert(e Entry)
	Remove(visitorID string)
}

type entry struct {
	Entry
	typingGen   uint64
	typingTimer *time.Timer
}

// Registry is the process-local source of truth for visitor presence.
// Every mutation pushes a fresh roster to the admin group.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	quiet   time.Duration
	out     Broadcaster
	mirror  Mirror
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
}

type Option func(*Registry)

func WithMirror(m Mirror) Option { return func(r *Registry) { r.mirror = m } }

func WithMetrics(m *metrics.Metrics) Option { return func(r *Registry) { r.metrics = m } }

func NewRegistry(out Broadcaster, typingQuiet time.Duration, log *zap.SugaredLogger, opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		quiet:   typingQuiet,
		out:     out,
		log:     log,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register binds visitorID to handle, superseding any previous handle. The
// previous lastMessage is kept.
func (r *Registry) Register(visitorID, handle string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[visitorID]
	if !ok {
		e = &entry{Entry: Entry{VisitorID: visitorID}}
		r.entries[visitorID] = e
	}
	r.stopTypingLocked(e)
	e.Handle = handle
	e.Active = true
	e.Typing = false

	r.log.Debugw("visitor registered", "visitor", visitorID, "handle", handle, "rebound", ok)
	r.mirrorLocked(e)
	return r.publishLocked()
}

// MarkInactive flips the entry owned by handle to inactive. A handle that no
// longer owns an entry (admin, or superseded) is ignored.
func (r *Registry) MarkInactive(handle string) ([]Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.Handle != handle {
			continue
		}
		e.Active = false
		r.mirrorLocked(e)
		return r.publishLocked(), true
	}
	return nil, false
}

// Remove drops the visitor entirely and tells its connection it was removed.
func (r *Registry) Remove(visitorID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[visitorID]
	if !ok {
		return false
	}
	r.stopTypingLocked(e)
	delete(r.entries, visitorID)
	if r.mirror != nil {
		r.mirror.Remove(visitorID)
	}
	r.out.ToVisitor(visitorID, domain.EventUserRemoved, domain.VisitorRef{VisitorID: visitorID})
	r.publishLocked()
	return true
}

// SetTyping sets the typing flag. A true value clears itself after the quiet
// period unless refreshed; each call supersedes the pending reset.
func (r *Registry) SetTyping(visitorID string, typing bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[visitorID]
	if !ok {
		return false
	}
	r.stopTypingLocked(e)
	e.Typing = typing
	if typing {
		gen := e.typingGen
		e.typingTimer = time.AfterFunc(r.quiet, func() { r.expireTyping(visitorID, gen) })
	}
	r.publishLocked()
	return true
}

func (r *Registry) expireTyping(visitorID string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[visitorID]
	if !ok || e.typingGen != gen || !e.Typing {
		return
	}
	e.Typing = false
	e.typingTimer = nil
	r.publishLocked()
}

// SetLastMessage records the latest message preview for a known visitor.
func (r *Registry) SetLastMessage(visitorID, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[visitorID]
	if !ok {
		return false
	}
	e.LastMessage = text
	r.mirrorLocked(e)
	r.publishLocked()
	return true
}

// Roster returns a snapshot sorted by visitor id.
func (r *Registry) Roster() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) Get(visitorID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[visitorID]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}

func (r *Registry) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VisitorID < out[j].VisitorID })
	return out
}

func (r *Registry) publishLocked() []Entry {
	roster := r.snapshotLocked()
	r.metrics.SetRoster(len(roster))
	r.out.ToAdmins(domain.EventUserList, roster)
	return roster
}

// bumping the generation invalidates a timer that already fired but has not
// taken the lock yet
func (r *Registry) stopTypingLocked(e *entry) {
	e.typingGen++
	if e.typingTimer != nil {
		e.typingTimer.Stop()
		e.typingTimer = nil
	}
}

func (r *Registry) mirrorLocked(e *entry) {
	if r.mirror != nil {
		r.mirror.Upsert(e.Entry)
	}
}
