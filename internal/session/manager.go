// Package session holds the in-memory session state machine: the
// authoritative view of where each campaign is in its pipeline.
package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Isha1703/campaign-dashboard/internal/domain"
	"github.com/containerd/errdefs"
	"github.com/google/uuid"
)

// transitions is the allowed state graph. StageError is reachable from
// any state and is handled separately.
var transitions = map[domain.Stage][]domain.Stage{
	domain.StageInitializing:  {domain.StageAudienceDone},
	domain.StageAudienceDone:  {domain.StageBudgetDone},
	domain.StageBudgetDone:    {domain.StagePromptsDone},
	domain.StagePromptsDone:   {domain.StageContentReview},
	domain.StageContentReview: {domain.StageRevising, domain.StageCompleted},
	domain.StageRevising:      {domain.StageContentReview},
}

func canTransition(from, to domain.Stage) bool {
	if to == domain.StageError {
		return from != domain.StageCompleted
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type entry struct {
	mu       sync.Mutex
	session  *domain.Session
	watchers map[int]chan domain.StageUpdate
	nextID   int
}

// Manager owns the live session map. Sessions are created at campaign
// start, mutated only through Manager methods, and never deleted.
// Constructed in main and injected; there is no package-level instance.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*entry)}
}

// Create registers a new session in the initializing stage and returns
// a snapshot of it.
func (m *Manager) Create(product string, productCost, budget float64) domain.Session {
	now := time.Now()
	s := &domain.Session{
		ID:          "session-" + uuid.NewString()[:8],
		Product:     product,
		ProductCost: productCost,
		Budget:      budget,
		Stage:       domain.StageInitializing,
		Results:     make(map[string]json.RawMessage),
		CreatedAt:   now,
		LastUpdated: now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = &entry{session: s, watchers: make(map[int]chan domain.StageUpdate)}
	m.mu.Unlock()

	return snapshot(s)
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, errdefs.ErrNotFound)
	}
	return e, nil
}

// Get returns a snapshot of the session, or a not-found error.
func (m *Manager) Get(id string) (domain.Session, error) {
	e, err := m.lookup(id)
	if err != nil {
		return domain.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.session), nil
}

// Update runs fn against the live session record while holding its
// lock, serializing it against any concurrent mutation of the same
// session.
func (m *Manager) Update(id string, fn func(*domain.Session) error) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := fn(e.session); err != nil {
		return err
	}
	e.session.LastUpdated = time.Now()
	return nil
}

// Transition moves the session to the given stage, enforcing the state
// graph. Invalid transitions fail and leave the session untouched.
func (m *Manager) Transition(id string, to domain.Stage) error {
	return m.transition(id, to, "")
}

// TransitionWithLabel is Transition with a completed stage label
// attached to the watcher notification.
func (m *Manager) TransitionWithLabel(id string, to domain.Stage, label string) error {
	return m.transition(id, to, label)
}

func (m *Manager) transition(id string, to domain.Stage, label string) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.session.Stage
	if !canTransition(from, to) {
		return fmt.Errorf("transition %s -> %s: %w", from, to, errdefs.ErrFailedPrecondition)
	}

	e.session.Stage = to
	e.session.LastUpdated = time.Now()
	e.notify(domain.StageUpdate{
		SessionID:  id,
		Stage:      to,
		StageLabel: label,
		Percentage: completion(e.session),
		Error:      e.session.LastError,
	})
	return nil
}

// Fail moves the session to the terminal error state, recording the
// triggering failure and the stage label at which it occurred.
func (m *Manager) Fail(id, stageLabel string, cause error) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Stage == domain.StageCompleted {
		return fmt.Errorf("transition %s -> %s: %w", e.session.Stage, domain.StageError, errdefs.ErrFailedPrecondition)
	}

	e.session.Stage = domain.StageError
	e.session.LastError = cause.Error()
	e.session.FailedStage = stageLabel
	e.session.LastUpdated = time.Now()
	e.notify(domain.StageUpdate{
		SessionID:  id,
		Stage:      domain.StageError,
		StageLabel: stageLabel,
		Percentage: completion(e.session),
		Error:      e.session.LastError,
	})
	return nil
}

// Watch subscribes to stage changes for a session. The returned cancel
// function must be called to release the subscription.
func (m *Manager) Watch(id string) (<-chan domain.StageUpdate, func(), error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan domain.StageUpdate, 16)
	wid := e.nextID
	e.nextID++
	e.watchers[wid] = ch

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.watchers[wid]; ok {
			delete(e.watchers, wid)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// notify delivers an update to all watchers without blocking; a slow
// watcher misses intermediate updates rather than stalling transitions.
func (e *entry) notify(update domain.StageUpdate) {
	for _, ch := range e.watchers {
		select {
		case ch <- update:
		default:
		}
	}
}

// completion estimates progress from recorded pipeline results.
func completion(s *domain.Session) float64 {
	count := 0
	for _, label := range s.CompletedOrder {
		if domain.IsPipelineLabel(label) {
			count++
		}
	}
	return float64(count) / float64(domain.TotalStages) * 100
}

// snapshot copies a session for callers outside the lock. Maps and
// slices are copied shallowly per element; payloads are immutable once
// recorded.
func snapshot(s *domain.Session) domain.Session {
	out := *s
	out.Results = make(map[string]json.RawMessage, len(s.Results))
	for k, v := range s.Results {
		out.Results[k] = v
	}
	out.CompletedOrder = append([]string(nil), s.CompletedOrder...)
	out.Assets = append([]domain.ContentAsset(nil), s.Assets...)
	return out
}
