package conversation

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"innerchat/personas"
)

type Options struct {
	// TTL drops sessions idle for longer. Zero means 30 minutes.
	TTL time.Duration
	// Debate adds a bot-to-bot reply after each group round.
	Debate bool
	// Rand drives the debate picker. Nil means a time-seeded source.
	Rand *rand.Rand
}

// Manager is the in-memory session table.
type Manager struct {
	catalog *personas.Catalog
	asker   Asker
	ttl     time.Duration
	debate  bool
	now     func() time.Time

	randMu sync.Mutex
	rng    *rand.Rand

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(catalog *personas.Catalog, asker Asker, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Manager{
		catalog:  catalog,
		asker:    asker,
		ttl:      opts.TTL,
		debate:   opts.Debate,
		now:      time.Now,
		rng:      opts.Rand,
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Catalog() *personas.Catalog { return m.catalog }

func (m *Manager) Create() *Session {
	now := m.now()
	s := &Session{
		ID:           uuid.New().String(),
		CreatedAt:    now,
		mgr:          m,
		mode:         ModeSelect,
		lastActivity: now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes idle sessions and returns how many were dropped.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	dropped := 0
	for id, s := range m.sessions {
		if s.sending.Load() {
			continue
		}
		if s.idleSince().Before(cutoff) {
			delete(m.sessions, id)
			dropped++
		}
	}
	return dropped
}

// StartSweeper runs Sweep every interval until ctx is done.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.Sweep(); n > 0 {
					log.Printf("[Sessions] Dropped %d idle sessions, %d active", n, m.Len())
				}
			}
		}
	}()
}

// pickDebate chooses a responder and a reply by another persona to answer.
// round must hold at least two replies.
func (m *Manager) pickDebate(round []roundReply) (*personas.Persona, roundReply) {
	m.randMu.Lock()
	defer m.randMu.Unlock()

	responder := round[m.rng.Intn(len(round))].persona
	var targets []roundReply
	for _, r := range round {
		if r.persona.ID != responder.ID {
			targets = append(targets, r)
		}
	}
	return responder, targets[m.rng.Intn(len(targets))]
}
