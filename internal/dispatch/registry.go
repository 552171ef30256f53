// Package dispatch owns the mapping from connection identity to inference
// session and serializes all sessions' access to the shared compute
// resource behind a single gate.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ahump20/Sandlot-Sluggers/internal/codec"
	"github.com/ahump20/Sandlot-Sluggers/internal/logx"
	"github.com/ahump20/Sandlot-Sluggers/internal/metrics"
	"github.com/ahump20/Sandlot-Sluggers/internal/session"
)

var (
	// ErrDuplicateSession is returned when a connection id is already bound.
	ErrDuplicateSession = errors.New("session already registered")
	// ErrUnknownSession is returned for unregistered connection ids, and
	// for steps whose connection vanished while the step was in flight.
	ErrUnknownSession = errors.New("unknown session")
)

// SessionFactory creates a fresh session for a new connection. It fails
// when no model backend is available.
type SessionFactory func() (*session.Session, error)

type entry struct {
	sess *session.Session
	// stepMu enforces in-order steps per session: a step never starts
	// while the previous one is still running.
	stepMu sync.Mutex
}

// Registry maps connection ids to sessions. The compute gate guarantees
// that the gateways never run two computations at the same instant; waits
// are FIFO-by-arrival at the gate.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	factory  SessionFactory
	compute  sync.Mutex
}

func NewRegistry(factory SessionFactory) *Registry {
	return &Registry{sessions: make(map[string]*entry), factory: factory}
}

// Register creates a session for connID and seeds its context. The seed is
// supplied once, before any step; it is never re-sent mid-session.
func (r *Registry) Register(connID string, seed []codec.Frame) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[connID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, connID)
	}
	s, err := r.factory()
	if err != nil {
		return nil, err
	}
	s.Initialize(seed)
	r.sessions[connID] = &entry{sess: s}
	metrics.SessionOpened()
	logx.Log.Info().Str("conn_id", connID).Int("seed_frames", len(seed)).Msg("session registered")
	return s, nil
}

// Dispatch runs one step for connID. The step blocks while waiting for the
// compute gate and while the model computes; those are the only suspension
// points. A step whose connection was unregistered mid-flight completes,
// but its result is discarded.
func (r *Registry) Dispatch(ctx context.Context, connID string, action int) ([]codec.Frame, error) {
	r.mu.Lock()
	e := r.sessions[connID]
	r.mu.Unlock()
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, connID)
	}

	e.stepMu.Lock()
	defer e.stepMu.Unlock()

	acquired := metrics.ComputeWaitStart()
	r.compute.Lock()
	acquired()
	start := time.Now()
	frames, err := e.sess.Step(ctx, action)
	r.compute.Unlock()
	metrics.StepEnd(time.Since(start), len(frames), err == nil)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	_, alive := r.sessions[connID]
	r.mu.Unlock()
	if !alive {
		// Compute is not preemptible; the frame is simply dropped.
		logx.Log.Debug().Str("conn_id", connID).Msg("discarding step result for closed connection")
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, connID)
	}
	return frames, nil
}

// Unregister releases the session and its history. Safe to call while a
// step for the same connection is in flight.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	_, ok := r.sessions[connID]
	delete(r.sessions, connID)
	r.mu.Unlock()
	if ok {
		metrics.SessionClosed()
		logx.Log.Info().Str("conn_id", connID).Msg("session unregistered")
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
