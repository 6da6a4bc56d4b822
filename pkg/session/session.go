// Package session manages in-memory research sessions: the ordered event
// queue a producer goroutine fills and a single stream consumer drains.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	cherr "github.com/chronolab/chrono/pkg/errors"
	"github.com/chronolab/chrono/pkg/types"
)

// Status is the lifecycle state of a session. A session is created ready,
// moves to executing when its stream is claimed and the run starts, and
// ends completed or failed.
type Status string

const (
	StatusReady     Status = "ready"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Event is one typed message on a session's stream.
type Event struct {
	Type    types.EventType `json:"type"`
	Payload any             `json:"payload"`
}

// Sink receives a best-effort mirror of every pushed event. Implementations
// must not block the producer for long.
type Sink interface {
	Publish(ctx context.Context, sessionID string, evt Event)
}

// Session buffers events from one pipeline run for one stream consumer.
// Events pushed before the consumer attaches are retained and delivered in
// order; pushes after the session closes are dropped.
type Session struct {
	ID       string
	Topic    string
	Language string
	Proposal types.Proposal

	// Stored is set when the run will be replayed from persistence
	// instead of executed.
	Stored *types.StoredRun

	mu     sync.Mutex
	status Status
	queue  []Event
	closed bool
	notify chan struct{}
	sink   Sink
}

func newSession(topic, language string, proposal types.Proposal, sink Sink) *Session {
	return &Session{
		ID:       uuid.New().String(),
		Topic:    topic,
		Language: language,
		Proposal: proposal,
		status:   StatusReady,
		notify:   make(chan struct{}, 1),
		sink:     sink,
	}
}

// Status returns the session's current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Push appends an event to the queue. It is a no-op once the session has
// closed.
func (s *Session) Push(evt Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, evt)
	s.mu.Unlock()
	s.signal()

	if s.sink != nil {
		s.sink.Publish(context.Background(), s.ID, evt)
	}
}

// Close transitions the session to a terminal status. Further pushes are
// dropped; the consumer drains the remaining queue and then observes the
// end of stream. Closing twice keeps the first status.
func (s *Session) Close(status Status) {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.status = status
	}
	s.mu.Unlock()
	s.signal()
}

// Claim reserves the stream for a single consumer and moves the session to
// executing. Only a ready session can be claimed, so a second consumer and a
// stream on an already-started or finished session both fail.
func (s *Session) Claim() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusReady {
		return cherr.New(cherr.ErrSessionState, "session is not ready: "+string(s.status))
	}
	s.status = StatusExecuting
	return nil
}

// Next returns the next queued event. When the queue is empty it waits up
// to timeout for a push; a timeout yields ok=false so the caller can emit a
// keepalive. done=true means the queue is drained and the session closed.
func (s *Session) Next(ctx context.Context, timeout time.Duration) (evt Event, ok bool, done bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			evt = s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return evt, true, false
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return Event{}, false, true
		}

		select {
		case <-s.notify:
		case <-deadline.C:
			return Event{}, false, false
		case <-ctx.Done():
			return Event{}, false, true
		}
	}
}

func (s *Session) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Manager tracks live sessions by id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	sink     Sink
}

// NewManager creates a session manager. sink may be nil.
func NewManager(sink Sink) *Manager {
	return &Manager{sessions: make(map[string]*Session), sink: sink}
}

// Create registers a new ready session.
func (m *Manager) Create(topic, language string, proposal types.Proposal) *Session {
	s := newSession(topic, language, proposal, m.sink)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get looks a session up by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, cherr.New(cherr.ErrSessionNotFound, "session not found: "+id)
	}
	return s, nil
}

// Remove forgets a session once its stream has been fully consumed.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}
