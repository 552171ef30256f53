package runner

import (
	"errors"
	"sync"
	"time"

	"github.com/ahump20/Sandlot-Sluggers/internal/logx"
)

const (
	HeartbeatInterval = 5 * time.Second
	HeartbeatExpiry   = 3 * HeartbeatInterval
)

// ErrDisconnected is returned when a job cannot reach its runner anymore.
var ErrDisconnected = errors.New("runner disconnected")

// Runner is one connected model-runner process.
type Runner struct {
	ID                 string
	Name               string
	CodebookSize       int
	ActionCodebookSize int
	FrameWidth         int
	FrameHeight        int

	mu            sync.Mutex
	lastHeartbeat time.Time
	send          chan interface{}
	jobs          map[string]chan interface{}
	closed        bool
}

// NewRunner builds a runner from its register message.
func NewRunner(rm RegisterMessage) *Runner {
	return &Runner{
		ID:                 rm.RunnerID,
		Name:               rm.RunnerName,
		CodebookSize:       rm.CodebookSize,
		ActionCodebookSize: rm.ActionCodebookSize,
		FrameWidth:         rm.FrameWidth,
		FrameHeight:        rm.FrameHeight,
		lastHeartbeat:      time.Now(),
		send:               make(chan interface{}, 32),
		jobs:               make(map[string]chan interface{}),
	}
}

// Submit queues a message for the runner's websocket writer.
func (r *Runner) Submit(msg interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrDisconnected
	}
	select {
	case r.send <- msg:
		return nil
	default:
		return errors.New("runner send queue full")
	}
}

func (r *Runner) AddJob(id string, ch chan interface{}) {
	r.mu.Lock()
	if !r.closed {
		r.jobs[id] = ch
	}
	r.mu.Unlock()
}

func (r *Runner) RemoveJob(id string) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

// TakeJob detaches and returns the channel for a finished job.
func (r *Runner) TakeJob(id string) (chan interface{}, bool) {
	r.mu.Lock()
	ch, ok := r.jobs[id]
	if ok {
		delete(r.jobs, id)
	}
	r.mu.Unlock()
	return ch, ok
}

func (r *Runner) touch() {
	r.mu.Lock()
	r.lastHeartbeat = time.Now()
	r.mu.Unlock()
}

func (r *Runner) heartbeatAge() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastHeartbeat)
}

// close shuts the send queue and fails every pending job.
func (r *Runner) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for id, ch := range r.jobs {
		close(ch)
		delete(r.jobs, id)
	}
	close(r.send)
	r.mu.Unlock()
}

// Registry tracks connected runners in registration order. The inference
// path binds sessions to the earliest-registered live runner.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]*Runner
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]*Runner)}
}

func (g *Registry) Add(r *Runner) {
	g.mu.Lock()
	g.runners[r.ID] = r
	g.order = append(g.order, r.ID)
	g.mu.Unlock()
}

func (g *Registry) Remove(id string) {
	g.mu.Lock()
	r, ok := g.runners[id]
	if ok {
		delete(g.runners, id)
		for i, oid := range g.order {
			if oid == id {
				g.order = append(g.order[:i], g.order[i+1:]...)
				break
			}
		}
	}
	g.mu.Unlock()
	if ok {
		r.close()
	}
}

// Active returns the earliest-registered runner, if any.
func (g *Registry) Active() (*Runner, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.order) == 0 {
		return nil, false
	}
	r, ok := g.runners[g.order[0]]
	return r, ok
}

func (g *Registry) Get(id string) (*Runner, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.runners[id]
	return r, ok
}

func (g *Registry) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.runners)
}

func (g *Registry) UpdateHeartbeat(id string) {
	g.mu.RLock()
	r, ok := g.runners[id]
	g.mu.RUnlock()
	if ok {
		r.touch()
	}
}

// PruneExpired drops runners whose heartbeat is older than maxAge.
func (g *Registry) PruneExpired(maxAge time.Duration) {
	g.mu.Lock()
	var expired []*Runner
	for id, r := range g.runners {
		if r.heartbeatAge() > maxAge {
			delete(g.runners, id)
			for i, oid := range g.order {
				if oid == id {
					g.order = append(g.order[:i], g.order[i+1:]...)
					break
				}
			}
			expired = append(expired, r)
		}
	}
	g.mu.Unlock()
	for _, r := range expired {
		r.close()
		logx.Log.Info().Str("runner_id", r.ID).Str("reason", "heartbeat_expired").Msg("runner evicted")
	}
}
