package allocation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"

	"jobmate/allocation-service/internal/events"
)

// DefaultOfferWindow is how long a candidate has to confirm an offer.
const DefaultOfferWindow = 24 * time.Hour

const publishTimeout = 2 * time.Second

// ─── Engine ──────────────────────────────────────────────────────────────────

// Engine orchestrates every group, owns the slot pool and the candidate,
// position and offer arenas. All public methods are safe for concurrent use;
// one mutex serializes them so rounds within a category are strictly ordered.
//
// Round processing runs on an explicit task queue drained by the operation
// that produced the work. Real time is only used for offer deadlines.
type Engine struct {
	mu sync.Mutex

	clock     clock.Clock
	logger    *slog.Logger
	window    time.Duration
	newID     func() string
	publisher events.Publisher

	candidates   []Candidate
	candidateIdx map[string]int
	positions    []Position
	positionIdx  map[string]int
	offers       []Offer
	offerIdx     map[string]int
	pool         *Pool

	groups     map[string]*Group // by category
	groupOrder []string
	queue      []string // categories with a round to run

	watchers map[string]chan struct{} // offer id → stop deadline watcher
	wg       sync.WaitGroup
	outbox   []events.Event
	started  bool
	closed   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for timestamps and deadlines.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithOfferWindow sets the time a candidate has to accept an offer.
func WithOfferWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

// WithIDGenerator overrides the offer id generator (random UUIDs by default).
func WithIDGenerator(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

// WithPublisher sets where engine events are delivered.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// New builds an engine over copies of the given records. Invalid records are
// logged and skipped (missing id or category) or defaulted (a candidate with a
// malformed preference list is reset to pending and will be disqualified).
func New(candidates []Candidate, positions []Position, opts ...Option) *Engine {
	e := &Engine{
		clock:        clock.NewClock(),
		logger:       slog.Default(),
		window:       DefaultOfferWindow,
		newID:        uuid.NewString,
		publisher:    events.Discard{},
		candidateIdx: make(map[string]int),
		positionIdx:  make(map[string]int),
		offerIdx:     make(map[string]int),
		watchers:     make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, p := range positions {
		if err := p.Validate(); err != nil {
			e.logger.Warn("position skipped", "err", err)
			continue
		}
		if _, dup := e.positionIdx[p.ID]; dup {
			e.logger.Warn("duplicate position skipped", "positionId", p.ID)
			continue
		}
		e.positionIdx[p.ID] = len(e.positions)
		e.positions = append(e.positions, clonePosition(p))
	}
	e.pool = NewPool(e.positions)

	for _, c := range candidates {
		c = cloneCandidate(c)
		if c.State == "" {
			c.State = CandidatePending
		}
		if err := c.Validate(); err != nil {
			if c.ID == "" || c.Category == "" {
				e.logger.Warn("candidate skipped", "err", err)
				continue
			}
			e.logger.Warn("candidate preferences rejected, reset to pending", "candidateId", c.ID, "err", err)
			c.Preferences = nil
			c.State = CandidatePending
		}
		if _, dup := e.candidateIdx[c.ID]; dup {
			e.logger.Warn("duplicate candidate skipped", "candidateId", c.ID)
			continue
		}
		if c.State == CandidateResponded && len(c.Preferences) == 0 {
			e.logger.Warn("responded candidate without preferences, reset to pending", "candidateId", c.ID)
			c.State = CandidatePending
		}
		for _, p := range c.Preferences {
			if _, ok := e.positionIdx[p.PositionID]; !ok {
				e.logger.Warn("preference references unknown position", "candidateId", c.ID, "positionId", p.PositionID)
			}
		}
		e.candidateIdx[c.ID] = len(e.candidates)
		e.candidates = append(e.candidates, c)
	}

	e.groups, e.groupOrder = formGroups(e.candidates)
	return e
}

// Start disqualifies every candidate still pending and begins round
// processing for each group with an active candidate. It reports whether this
// call started the process; later calls are no-ops.
func (e *Engine) Start() bool {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return false
	}
	e.started = true

	for i := range e.candidates {
		c := &e.candidates[i]
		if c.State == CandidatePending {
			e.moveCandidate(c, CandidateDisqualified)
			e.logger.Info("candidate disqualified: no preferences submitted", "candidateId", c.ID)
		}
	}

	for _, category := range e.groupOrder {
		g := e.groups[category]
		if g.active.Cardinality() == 0 {
			e.setGroupState(g, RoundFinished)
			continue
		}
		e.setGroupState(g, RoundRunning)
		e.enqueue(g)
	}
	e.drain()

	evts := e.takeOutbox()
	e.mu.Unlock()
	e.publish(evts)
	return true
}

// Started reports whether Start has been called.
func (e *Engine) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// Close stops every deadline watcher. Offers stay pending; ExpireOverdue can
// still resolve them.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for id, stop := range e.watchers {
		close(stop)
		delete(e.watchers, id)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// ─── Task queue ──────────────────────────────────────────────────────────────

func (e *Engine) enqueue(g *Group) {
	g.queued = true
	e.queue = append(e.queue, g.Category)
}

// drain runs queued rounds until no group has work left. A round re-queues
// its group only after an assignment, which consumes a slot, so the queue
// always empties.
func (e *Engine) drain() {
	for len(e.queue) > 0 {
		category := e.queue[0]
		e.queue = e.queue[1:]
		if g, ok := e.groups[category]; ok {
			e.runRound(g)
		}
	}
}

// ─── State helpers ───────────────────────────────────────────────────────────

func (e *Engine) moveCandidate(c *Candidate, to CandidateState) bool {
	if !c.State.CanTransition(to) {
		e.logger.Warn("candidate transition refused", "candidateId", c.ID, "from", c.State, "to", to)
		return false
	}
	c.State = to
	return true
}

func (e *Engine) setGroupState(g *Group, to RoundState) {
	if g.State == to {
		return
	}
	if !g.State.CanTransition(to) {
		e.logger.Warn("group transition refused", "group", g.Key, "from", g.State, "to", to)
		return
	}
	from := g.State
	g.State = to
	g.PhaseStartedAt = e.clock.Now()
	if to == RoundFinished {
		e.logger.Info("group finished", "group", g.Key, "round", g.Round)
	}
	e.emit(events.TypeGroupStateChanged, map[string]any{
		"group": g.Key,
		"from":  string(from),
		"to":    string(to),
		"round": g.Round,
	})
}

func (e *Engine) candidate(id string) (*Candidate, bool) {
	i, ok := e.candidateIdx[id]
	if !ok {
		return nil, false
	}
	return &e.candidates[i], true
}

func (e *Engine) offer(id string) (*Offer, bool) {
	i, ok := e.offerIdx[id]
	if !ok {
		return nil, false
	}
	return &e.offers[i], true
}

// ─── Events ──────────────────────────────────────────────────────────────────

func (e *Engine) emit(typ string, data any) {
	e.outbox = append(e.outbox, events.New(typ, e.clock.Now(), data))
}

func (e *Engine) takeOutbox() []events.Event {
	evts := e.outbox
	e.outbox = nil
	return evts
}

// publish runs outside the engine lock. Delivery failures are logged only.
func (e *Engine) publish(evts []events.Event) {
	for _, evt := range evts {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := e.publisher.Publish(ctx, evt); err != nil {
			e.logger.Warn("publish event failed", "type", evt.Type, "err", err)
		}
		cancel()
	}
}

// ─── Read views ──────────────────────────────────────────────────────────────

// Snapshot is a consistent, read-only copy of the engine state.
type Snapshot struct {
	Groups     []GroupView `json:"groups"`
	Offers     []Offer     `json:"offers"`
	Slots      []Slot      `json:"slots"`
	Candidates []Candidate `json:"candidates"`
	Positions  []Position  `json:"positions"`
}

// Snapshot copies the current state. Groups are in order of first appearance,
// candidates and positions in registry order, offers in creation order.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		Groups:     make([]GroupView, 0, len(e.groupOrder)),
		Offers:     make([]Offer, 0, len(e.offers)),
		Slots:      e.pool.Slots(),
		Candidates: make([]Candidate, 0, len(e.candidates)),
		Positions:  make([]Position, 0, len(e.positions)),
	}
	for _, category := range e.groupOrder {
		s.Groups = append(s.Groups, e.groups[category].view())
	}
	for _, o := range e.offers {
		s.Offers = append(s.Offers, cloneOffer(o))
	}
	for _, c := range e.candidates {
		s.Candidates = append(s.Candidates, cloneCandidate(c))
	}
	for _, p := range e.positions {
		p = clonePosition(p)
		p.AvailableSlots = e.pool.Counts(p.ID).Free
		s.Positions = append(s.Positions, p)
	}
	return s
}

// Statistics aggregates the current state.
func (e *Engine) Statistics() Statistics {
	return ComputeStatistics(e.Snapshot())
}

// GroupStatistics aggregates the current state per group.
func (e *Engine) GroupStatistics() []GroupStatistics {
	return ComputeGroupStatistics(e.Snapshot())
}
