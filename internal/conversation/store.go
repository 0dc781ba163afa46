// Package conversation owns the chat tabs and drives each send through the
// streaming executor and the follow-up tuner request.
package conversation

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"recipe-chat/internal/history"
	"recipe-chat/internal/logger"
)

// Sender runs one streaming turn against a tab.
type Sender interface {
	Execute(ctx context.Context, tab TabHandle, prompt string) (Result, error)
}

// TunerFetcher returns suggestions for a finalized history, nil on failure.
type TunerFetcher interface {
	Fetch(ctx context.Context, hist []history.Entry, previous []string) []string
}

// Store holds the tabs, the active tab and the per-tab send status. Sends
// are serialized per tab; different tabs stream concurrently.
type Store struct {
	mu          sync.RWMutex
	tabs        []Tab
	active      int
	status      map[int]Status
	cancels     map[int]context.CancelFunc
	subscribers []func(Tab)

	sender Sender
	tuners TunerFetcher
	log    *log.Logger
}

// NewStore creates a store with one empty, active tab. A nil fetcher
// disables suggestions; a nil logger uses the "store" component logger.
func NewStore(sender Sender, tuners TunerFetcher, l *log.Logger) *Store {
	if l == nil {
		l = logger.For("store")
	}
	return &Store{
		tabs:    []Tab{{ID: 0}},
		status:  map[int]Status{0: StatusIdle},
		cancels: make(map[int]context.CancelFunc),
		sender:  sender,
		tuners:  tuners,
		log:     l,
	}
}

// Subscribe registers fn to receive every published tab snapshot. Calls for
// one tab arrive in mutation order, outside the store lock.
func (s *Store) Subscribe(fn func(Tab)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Tabs returns all tabs in creation order.
func (s *Store) Tabs() []Tab {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.tabs)
}

// Tab returns the tab with the given id.
func (s *Store) Tab(id int) (Tab, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.exists(id) {
		return Tab{}, false
	}
	return s.tabs[id], true
}

// ActiveTabID returns the id of the active tab.
func (s *Store) ActiveTabID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// ActiveTab returns the active tab.
func (s *Store) ActiveTab() Tab {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tabs[s.active]
}

// AddTab appends a new empty tab and returns it. The active tab is not
// changed.
func (s *Store) AddTab() Tab {
	s.mu.Lock()
	tab := Tab{ID: len(s.tabs)}
	s.tabs = append(s.tabs, tab)
	s.status[tab.ID] = StatusIdle
	subs := slices.Clone(s.subscribers)
	s.mu.Unlock()

	s.log.Debug("tab added", "tab", tab.ID)
	for _, fn := range subs {
		fn(tab)
	}
	return tab
}

// SwitchTab makes id the active tab.
func (s *Store) SwitchTab(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists(id) {
		return ErrUnknownTab
	}
	s.active = id
	return nil
}

// Status returns the send-cycle status of a tab.
func (s *Store) Status(id int) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.status[id]; ok {
		return st
	}
	return StatusIdle
}

// Loading reports whether tab id is sending or streaming.
func (s *Store) Loading(id int) bool {
	return s.Status(id).Loading()
}

// Tuners returns the active tab's current suggestions; nil while they are
// being computed or when none could be fetched.
func (s *Store) Tuners() []string {
	return s.ActiveTab().Tuners.Current
}

// Cancel aborts the in-flight send on tab id. It reports whether there was
// one.
func (s *Store) Cancel(id int) bool {
	s.mu.RLock()
	cancel, ok := s.cancels[id]
	s.mu.RUnlock()
	if ok {
		s.log.Info("cancelling send", "tab", id)
		cancel()
	}
	return ok
}

// SendMessage sends text on the tab that is active when it is called.
func (s *Store) SendMessage(ctx context.Context, text string) error {
	return s.SendMessageTo(ctx, s.ActiveTabID(), text)
}

// SendMessageTo runs a full send cycle on tab id and blocks until the tuner
// request has resolved. Blank text is ignored without any state change. A
// failed stream restores the tab's suggestions to what was live before the
// send and returns the *TransportError or *ProtocolError.
func (s *Store) SendMessageTo(ctx context.Context, id int, text string) error {
	if strings.TrimSpace(text) == "" {
		s.log.Debug("ignoring empty prompt", "tab", id)
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if !s.exists(id) {
		s.mu.Unlock()
		return ErrUnknownTab
	}
	if st := s.status[id]; st != StatusIdle {
		s.mu.Unlock()
		s.log.Warn("send rejected", "tab", id, "status", st)
		return ErrTabBusy
	}
	s.status[id] = StatusSending
	s.cancels[id] = cancel
	s.mu.Unlock()
	defer s.finish(id)

	var before TunerState
	s.update(id, func(t *Tab) {
		before = t.Tuners
		t.Tuners = TunerState{Current: nil, Previous: before.Current}
	})

	result, err := s.sender.Execute(ctx, &tabHandle{store: s, id: id}, text)
	if err != nil {
		s.setStatus(id, StatusErrorRecovery)
		s.update(id, func(t *Tab) {
			t.Tuners = before
		})
		if errors.Is(err, ErrEmptyPrompt) {
			return nil
		}
		return err
	}

	s.setStatus(id, StatusFinalized)
	if s.tuners == nil {
		return nil
	}

	s.setStatus(id, StatusFetchingTuners)
	suggestions := s.tuners.Fetch(ctx, result.History, before.Current)
	s.update(id, func(t *Tab) {
		t.Tuners.Current = suggestions
	})
	return nil
}

func (s *Store) finish(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[id] = StatusIdle
	delete(s.cancels, id)
}

func (s *Store) setStatus(id int, st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[id] = st
}

// update replaces tab id with a modified copy and notifies subscribers.
func (s *Store) update(id int, fn func(*Tab)) {
	s.mu.Lock()
	if !s.exists(id) {
		s.mu.Unlock()
		return
	}
	tab := s.tabs[id].clone()
	fn(&tab)
	s.tabs[id] = tab
	subs := slices.Clone(s.subscribers)
	s.mu.Unlock()

	for _, sub := range subs {
		sub(tab)
	}
}

// exists must be called with the lock held. Tabs are never removed, so ids
// are indexes.
func (s *Store) exists(id int) bool {
	return id >= 0 && id < len(s.tabs)
}

type tabHandle struct {
	store *Store
	id    int
}

func (h *tabHandle) Snapshot() Tab {
	t, _ := h.store.Tab(h.id)
	return t
}

func (h *tabHandle) Update(fn func(*Tab)) {
	h.store.update(h.id, fn)
}

func (h *tabHandle) SetStatus(st Status) {
	h.store.setStatus(h.id, st)
}
