// Package hive routes task delegations through the queen -> princess -> drone
// hierarchy and executes them against an injected drone work function.
package hive

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/waggle/internal/config"
	"github.com/ShayCichocki/waggle/pkg/models"
)

// DefaultDelegationTimeout bounds a delegation when the request carries none.
const DefaultDelegationTimeout = 10 * time.Minute

// ErrNoRoutingTable indicates the hive was constructed without a routing table.
var ErrNoRoutingTable = errors.New("hive requires a routing table")

// ErrNoWorkFunc indicates the hive was constructed without a drone work function.
var ErrNoWorkFunc = errors.New("hive requires a drone work function")

// WorkFunc performs the actual drone work for one delegation. It is the
// agent-execution boundary: production wiring points it at a Claude-backed
// worker, tests substitute deterministic fakes.
type WorkFunc func(ctx context.Context, req *models.DelegationRequest) (string, error)

// Config holds the dependencies for a Hive.
type Config struct {
	// Table is the injected routing configuration.
	Table *config.RoutingTable
	// Work is the drone work function invoked for each delegation.
	Work WorkFunc
	// DefaultTimeout bounds delegations whose request carries no timeout.
	// Zero means DefaultDelegationTimeout.
	DefaultTimeout time.Duration
}

// Hive is the two-level hierarchical router. The queen maps a task category
// to a princess coordinator; the princess maps the category to a drone on her
// roster and runs the work. Delegations to one princess are serialized so a
// princess never has more than one active task.
type Hive struct {
	table          *config.RoutingTable
	work           WorkFunc
	defaultTimeout time.Duration

	// mu protects princesses.
	mu         sync.RWMutex
	princesses map[string]*princess
}

// princess tracks the per-coordinator delegation state.
type princess struct {
	id string

	// serial admits one delegation at a time.
	serial sync.Mutex

	// mu protects state.
	mu    sync.RWMutex
	state models.PrincessState
}

func (p *princess) setState(s models.PrincessState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *princess) getState() models.PrincessState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// New creates a Hive from the given configuration.
func New(cfg Config) (*Hive, error) {
	if cfg.Table == nil {
		return nil, ErrNoRoutingTable
	}
	if err := cfg.Table.Validate(); err != nil {
		return nil, err
	}
	if cfg.Work == nil {
		return nil, ErrNoWorkFunc
	}

	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultDelegationTimeout
	}

	return &Hive{
		table:          cfg.Table,
		work:           cfg.Work,
		defaultTimeout: timeout,
		princesses:     make(map[string]*princess),
	}, nil
}

// QueenToPrincess resolves a task category to its coordinating princess.
// Unmapped categories fall back to the table's default princess, so every
// request resolves.
func (h *Hive) QueenToPrincess(category models.Category) string {
	if princessID, ok := h.table.Queen[category]; ok {
		return princessID
	}
	return h.table.DefaultPrincess
}

// PrincessToDrone resolves a category to a drone on the princess's roster.
// A category without a route falls back to the first drone on the roster;
// an unknown princess falls back to the default princess's roster.
func (h *Hive) PrincessToDrone(princessID string, category models.Category) string {
	roster, ok := h.table.Princesses[princessID]
	if !ok {
		roster = h.table.Princesses[h.table.DefaultPrincess]
	}
	if roster == nil || len(roster.Drones) == 0 {
		return ""
	}
	if droneID, ok := roster.Routes[category]; ok {
		return droneID
	}
	return roster.Drones[0]
}

// CreateSession allocates a fresh session for one delegation. The session
// starts with an empty history and is discarded after the call completes.
func (h *Hive) CreateSession(droneID, parentID string, sctx models.SessionContext) *models.AgentSession {
	return &models.AgentSession{
		ID:        uuid.New().String(),
		DroneID:   droneID,
		ParentID:  parentID,
		Context:   sctx,
		History:   nil,
		CreatedAt: time.Now(),
	}
}

// State reports the current state of a princess. Princesses with no
// delegation history are idle.
func (h *Hive) State(princessID string) models.PrincessState {
	h.mu.RLock()
	p, ok := h.princesses[princessID]
	h.mu.RUnlock()
	if !ok {
		return models.PrincessIdle
	}
	return p.getState()
}

// BusyCount returns the number of princesses with an active delegation.
func (h *Hive) BusyCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, p := range h.princesses {
		if p.getState() == models.PrincessBusy {
			count++
		}
	}
	return count
}

// princessFor returns the tracked state for a princess, creating it on
// first use.
func (h *Hive) princessFor(princessID string) *princess {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.princesses[princessID]
	if !ok {
		p = &princess{id: princessID, state: models.PrincessIdle}
		h.princesses[princessID] = p
	}
	return p
}
