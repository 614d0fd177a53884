package realtime

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/notification/domain"
	"github.com/smallbiznis/procura/pkg/errs"
)

const (
	EventNotification = "notification"
	EventReset        = "reset"
)

const DefaultSessionBuffer = 32

var ErrSessionNotFound = errs.New(errs.ErrNotFound, "session_not_found")

// Event is what a live session receives. A reset tells the client to reload
// counts and lists for OrgID.
type Event struct {
	Type         string                `json:"type"`
	OrgID        string                `json:"org_id"`
	Notification *domain.Notification `json:"notification,omitempty"`
}

func NotificationEvent(n domain.Notification) Event {
	return Event{Type: EventNotification, OrgID: n.OrgID.String(), Notification: &n}
}

// Publisher delivers an event to the live sessions of userID that have orgID selected.
type Publisher interface {
	Publish(ctx context.Context, orgID, userID snowflake.ID, event Event) (int, error)
}

// Hub fans events out to the live sessions of each user in this process.
type Hub struct {
	mu       sync.RWMutex
	sessions map[snowflake.ID]map[uint64]*Session
	nextID   uint64
	buffer   int
}

type Session struct {
	hub    *Hub
	id     uint64
	userID snowflake.ID

	mu          sync.Mutex
	selectedOrg snowflake.ID
	ch          chan Event
	once        sync.Once
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[snowflake.ID]map[uint64]*Session),
		buffer:   DefaultSessionBuffer,
	}
}

// Subscribe opens a session for userID with orgID selected. orgID may be zero,
// in which case the session receives nothing until an organization is selected.
func (h *Hub) Subscribe(userID, orgID snowflake.ID) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	session := &Session{
		hub:         h,
		id:          h.nextID,
		userID:      userID,
		selectedOrg: orgID,
		ch:          make(chan Event, h.buffer),
	}
	byID := h.sessions[userID]
	if byID == nil {
		byID = make(map[uint64]*Session)
		h.sessions[userID] = byID
	}
	byID[session.id] = session
	return session
}

// Publish never blocks. A session whose buffer is full misses the event.
func (h *Hub) Publish(_ context.Context, orgID, userID snowflake.ID, event Event) (int, error) {
	if h == nil || orgID == 0 || userID == 0 {
		return 0, nil
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions[userID]))
	for _, session := range h.sessions[userID] {
		targets = append(targets, session)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, session := range targets {
		if session.offer(orgID, event) {
			delivered++
		}
	}
	return delivered, nil
}

// SwitchOrg changes the organization a live session of userID is viewing.
func (h *Hub) SwitchOrg(userID snowflake.ID, sessionID uint64, orgID snowflake.ID) error {
	h.mu.RLock()
	session := h.sessions[userID][sessionID]
	h.mu.RUnlock()
	if session == nil {
		return ErrSessionNotFound
	}
	session.SwitchOrg(orgID)
	return nil
}

// Sessions returns the number of live sessions of userID.
func (h *Hub) Sessions(userID snowflake.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

func (h *Hub) remove(session *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	byID := h.sessions[session.userID]
	delete(byID, session.id)
	if len(byID) == 0 {
		delete(h.sessions, session.userID)
	}
}

func (s *Session) ID() uint64 { return s.id }

func (s *Session) Events() <-chan Event { return s.ch }

func (s *Session) SelectedOrg() snowflake.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedOrg
}

// Current reports whether event belongs to the organization the session has
// selected now. An event dequeued before a switch is no longer current.
func (s *Session) Current(event Event) bool {
	selected := s.SelectedOrg()
	return selected != 0 && event.OrgID == selected.String()
}

// SwitchOrg drops queued events of the previous organization and queues a reset
// for the new one.
func (s *Session) SwitchOrg(orgID snowflake.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selectedOrg = orgID
	for drained := false; !drained; {
		select {
		case <-s.ch:
		default:
			drained = true
		}
	}
	if orgID != 0 {
		s.ch <- Event{Type: EventReset, OrgID: orgID.String()}
	}
}

func (s *Session) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

func (s *Session) offer(orgID snowflake.ID, event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectedOrg == 0 || s.selectedOrg != orgID {
		return false
	}
	select {
	case s.ch <- event:
		return true
	default:
		return false
	}
}
