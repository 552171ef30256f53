// Package session implements the interactive inference session: the state
// machine that turns one action into the next generated frame(s) while
// maintaining the rolling context window.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahump20/Sandlot-Sluggers/internal/codec"
	"github.com/ahump20/Sandlot-Sluggers/internal/model"
)

// RefineSteps is the number of iterative refinement steps per prediction.
// It trades generation quality against cost and is deliberately not
// tunable per call.
const RefineSteps = 10

// ErrUninitialized is returned by Step before Initialize has seeded the
// context. The caller may seed and retry; the session itself does not.
var ErrUninitialized = errors.New("session not initialized")

// Config holds the per-session generation parameters.
type Config struct {
	// Window is the number of trailing frames used as conditioning context.
	Window int
	// Horizon is the number of future frames generated per step.
	Horizon int
	// Temperature controls sampling stochasticity, passed through to the
	// dynamics model uninterpreted.
	Temperature float64
	// Precision selects the numeric mode for prediction ("bf16", "fp32").
	Precision string
	// HistorySlack is how many frames beyond Window the history retains.
	HistorySlack int
}

func (c *Config) setDefaults() {
	if c.Window <= 0 {
		c.Window = 4
	}
	if c.Horizon <= 0 {
		c.Horizon = 1
	}
	if c.HistorySlack < 0 {
		c.HistorySlack = 0
	}
}

// Session owns one frame history and drives the encode/predict/decode loop.
// It is bound to exactly one client connection and is not safe for
// concurrent use; the dispatcher serializes access.
type Session struct {
	cfg     Config
	cb      model.Codebook
	actions model.ActionCodec
	refiner model.Refiner

	hist        *History
	initialized bool
	fatal       error
}

// New creates a session over the given gateways. actions may be nil, in
// which case generation is unconditional.
func New(cb model.Codebook, actions model.ActionCodec, refiner model.Refiner, cfg Config) *Session {
	cfg.setDefaults()
	return &Session{
		cfg:     cfg,
		cb:      cb,
		actions: actions,
		refiner: refiner,
		hist:    NewHistory(cfg.Window + cfg.HistorySlack),
	}
}

// Initialize seeds the context with externally supplied frames. It is a
// one-time setup operation, not part of the per-step protocol; callers
// guarantee len(seed) >= Config.Window. Calling it again resets history.
func (s *Session) Initialize(seed []codec.Frame) {
	s.hist.Reset(seed)
	s.initialized = true
}

// History exposes the logical frame count, for observability and tests.
func (s *Session) History() *History { return s.hist }

// Step generates the next Horizon frames conditioned on the trailing
// context window and the given action id. Out-of-range action ids wrap
// modulo the action codebook size. Any gateway failure is fatal: history
// is left untouched and every subsequent Step returns the same error.
func (s *Session) Step(ctx context.Context, action int) ([]codec.Frame, error) {
	if !s.initialized {
		return nil, ErrUninitialized
	}
	if s.fatal != nil {
		return nil, s.fatal
	}

	window := s.hist.Window(s.cfg.Window)

	idx, err := s.cb.Encode(ctx, window)
	if err != nil {
		return nil, s.fail("encode", err)
	}
	lat, err := s.cb.Latents(ctx, idx)
	if err != nil {
		return nil, s.fail("latents", err)
	}

	var cond *model.Latents
	if s.actions != nil {
		id := normalizeAction(action, s.actions.Size())
		al, err := s.actions.ActionLatent(ctx, id)
		if err != nil {
			return nil, s.fail("action", err)
		}
		cond = &al
	}

	pred, err := s.refiner.Predict(ctx, model.PredictRequest{
		Context:      lat,
		Horizon:      s.cfg.Horizon,
		Steps:        RefineSteps,
		Reground:     s.cb.Latents,
		Conditioning: cond,
		Temperature:  s.cfg.Temperature,
		Precision:    s.cfg.Precision,
	})
	if err != nil {
		return nil, s.fail("predict", err)
	}

	frames, err := s.cb.Decode(ctx, pred)
	if err != nil {
		return nil, s.fail("decode", err)
	}
	if len(frames) < s.cfg.Horizon {
		return nil, s.fail("decode", fmt.Errorf("decoded %d frames, want %d", len(frames), s.cfg.Horizon))
	}
	// The decoder may return the context alongside predictions; only the
	// trailing Horizon frames are new.
	frames = frames[len(frames)-s.cfg.Horizon:]

	s.hist.Append(frames...)
	return frames, nil
}

func (s *Session) fail(stage string, err error) error {
	s.fatal = &model.GenerationError{Stage: stage, Err: err}
	return s.fatal
}

// normalizeAction wraps an arbitrary integer into [0, size); negative ids
// wrap the same way positive ones do.
func normalizeAction(action, size int) int {
	if size <= 0 {
		return 0
	}
	id := action % size
	if id < 0 {
		id += size
	}
	return id
}
