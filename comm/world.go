package comm

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sarchlab/nbmsg/hooking"
	"github.com/sarchlab/nbmsg/idgen"
	"github.com/sarchlab/nbmsg/tracing"
)

type phase int

const (
	phaseCreated phase = iota
	phaseInitialized
	phaseFinalized
)

// A World is a fixed group of endpoints that exchange messages in memory. It
// owns the matching of sends to receives.
type World struct {
	*hooking.HookableBase

	name         string
	endpoints    []*Endpoint
	eagerLimit   int
	matchTimeout time.Duration
	idGenerator  idgen.Generator
	logger       *slog.Logger

	mu       sync.Mutex
	phase    phase
	abortErr error
	queues   []matchQueue
}

// matchQueue holds the operations addressed to one rank that are waiting for
// a partner, each in initiation order.
type matchQueue struct {
	postedRecvs []*Request
	unexpected  []*Request
}

// Option configures a World.
type Option func(w *World)

// WithName sets the name of the world. Endpoint names derive from it.
func WithName(name string) Option {
	return func(w *World) {
		w.name = name
	}
}

// WithEagerLimit lets sends of at most limit bytes complete as soon as they
// are initiated. The payload is copied at initiation. Larger sends complete
// when they are matched. The default limit is 0.
func WithEagerLimit(limit int) Option {
	return func(w *World) {
		w.eagerLimit = limit
	}
}

// WithMatchTimeout makes requests that stay unmatched for d fail with
// ErrUnmatched. Zero, the default, waits forever.
func WithMatchTimeout(d time.Duration) Option {
	return func(w *World) {
		w.matchTimeout = d
	}
}

// WithIDGenerator sets the generator used for request and call IDs.
func WithIDGenerator(g idgen.Generator) Option {
	return func(w *World) {
		w.idGenerator = g
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(w *World) {
		w.logger = logger
	}
}

// NewWorld creates a world of size endpoints ranked 0 to size-1.
func NewWorld(size int, opts ...Option) *World {
	if size <= 0 {
		panic("world size must be positive")
	}

	w := &World{
		HookableBase: hooking.NewHookableBase(),
		name:         "World",
		idGenerator:  idgen.Default(),
		logger:       slog.New(slog.DiscardHandler),
		queues:       make([]matchQueue, size),
	}

	for _, opt := range opts {
		opt(w)
	}

	w.endpoints = make([]*Endpoint, size)
	for i := range w.endpoints {
		w.endpoints[i] = &Endpoint{
			HookableBase: hooking.NewHookableBase(),
			world:        w,
			rank:         Rank(i),
			name:         fmt.Sprintf("%s.Rank[%d]", w.name, i),
		}
	}

	return w
}

// Name returns the name of the world.
func (w *World) Name() string {
	return w.name
}

// Size returns the number of endpoints.
func (w *World) Size() int {
	return len(w.endpoints)
}

// Endpoint returns the endpoint with the given rank. It panics if the rank is
// out of range.
func (w *World) Endpoint(r Rank) *Endpoint {
	if !w.addressable(r) {
		panic(fmt.Sprintf("rank %d is not in world %s", r, w.name))
	}

	return w.endpoints[r]
}

// Endpoints returns all endpoints in rank order.
func (w *World) Endpoints() []*Endpoint {
	endpoints := make([]*Endpoint, len(w.endpoints))
	copy(endpoints, w.endpoints)

	return endpoints
}

// CollectTrace attaches the tracer to the world and to every endpoint. It
// must be called before Init.
func (w *World) CollectTrace(tracer tracing.Tracer) {
	tracing.CollectTrace(w, tracer)

	for _, e := range w.endpoints {
		tracing.CollectTrace(e, tracer)
	}
}

// AcceptHookAll registers the hook on the world and on every endpoint.
func (w *World) AcceptHookAll(hook hooking.Hook) {
	w.AcceptHook(hook)

	for _, e := range w.endpoints {
		e.AcceptHook(hook)
	}
}

// Init starts the world. Operations fail with ErrNotInitialized before it is
// called.
func (w *World) Init() error {
	callID := startCall(w, Call{Op: OpInit}, "")

	w.mu.Lock()
	var err error
	switch w.phase {
	case phaseCreated:
		w.phase = phaseInitialized
	case phaseInitialized:
		err = ErrAlreadyInitialized
	default:
		err = ErrFinalized
	}
	w.mu.Unlock()

	if err == nil {
		w.logger.Debug("world initialized",
			"world", w.name, "size", len(w.endpoints))
	}

	endCall(w, callID, Call{Op: OpInit, Err: err})

	return err
}

// Finalize shuts the world down. It fails with ErrPendingRequests while any
// endpoint holds requests that have not been consumed.
func (w *World) Finalize() error {
	callID := startCall(w, Call{Op: OpFinalize}, "")

	w.mu.Lock()
	err := w.checkPhase()
	if err == nil {
		err = w.checkNoPendingRequests()
	}
	if err == nil {
		w.phase = phaseFinalized
		w.stopTimers()
	}
	w.mu.Unlock()

	if err == nil {
		w.logger.Debug("world finalized", "world", w.name)
	}

	endCall(w, callID, Call{Op: OpFinalize, Err: err})

	return err
}

func (w *World) checkNoPendingRequests() error {
	n := 0
	for _, e := range w.endpoints {
		n += len(e.pending)
	}

	if n > 0 {
		return fmt.Errorf("%w: %d", ErrPendingRequests, n)
	}

	return nil
}

func (w *World) stopTimers() {
	for i := range w.queues {
		q := &w.queues[i]
		for _, r := range q.postedRecvs {
			stopTimer(r)
		}

		for _, r := range q.unexpected {
			stopTimer(r)
		}
	}
}

// Abort marks the world's transport as failed. Every pending request fails
// with an error wrapping both ErrTransport and cause, and so does every
// request initiated later.
func (w *World) Abort(cause error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.abortErr != nil {
		return
	}

	w.abortErr = fmt.Errorf("%w: %w", ErrTransport, cause)
	w.logger.Warn("world aborted", "world", w.name, "cause", cause)

	for i := range w.queues {
		q := &w.queues[i]
		for _, r := range q.postedRecvs {
			w.fail(r, w.abortErr)
		}

		for _, r := range q.unexpected {
			if r.state == StatePending {
				w.fail(r, w.abortErr)
			}
		}

		q.postedRecvs = nil
		q.unexpected = nil
	}
}

// checkPhase must be called with the lock held.
func (w *World) checkPhase() error {
	switch w.phase {
	case phaseCreated:
		return ErrNotInitialized
	case phaseFinalized:
		return ErrFinalized
	default:
		return nil
	}
}

func (w *World) addressable(r Rank) bool {
	return r >= 0 && int(r) < len(w.endpoints)
}
