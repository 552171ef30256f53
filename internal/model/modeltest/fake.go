// Package modeltest provides a deterministic in-process gateway used by
// tests in place of a live model runner.
package modeltest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ahump20/Sandlot-Sluggers/internal/codec"
	"github.com/ahump20/Sandlot-Sluggers/internal/model"
)

// ErrInjected is returned from a stage selected via Fake.FailStage.
var ErrInjected = errors.New("injected gateway failure")

const tokensPerFrame = 4

// Fake implements model.Codebook, model.ActionCodec, and model.Refiner
// with cheap deterministic arithmetic. It records action lookups and
// detects overlapping Predict calls, which the dispatcher must prevent.
type Fake struct {
	FrameW  int
	FrameH  int
	Actions int
	// FailStage selects a stage ("encode", "latents", "decode", "action",
	// "predict") that returns ErrInjected. Empty means no failures.
	FailStage string
	// PredictDelay widens the race window in concurrency tests.
	PredictDelay time.Duration

	mu           sync.Mutex
	actionIDs    []int
	predictCalls int
	windowLens   []int

	busy       int32
	overlapped int32
}

// NewFake returns a fake with 16x16 frames and the given action codebook
// size (0 disables action conditioning).
func NewFake(actions int) *Fake {
	return &Fake{FrameW: 16, FrameH: 16, Actions: actions}
}

func (f *Fake) failed(stage string) error {
	if f.FailStage == stage {
		return ErrInjected
	}
	return nil
}

// Encode tokenizes each frame to tokensPerFrame indices derived from its
// first sample.
func (f *Fake) Encode(_ context.Context, frames []codec.Frame) (model.Indices, error) {
	if err := f.failed("encode"); err != nil {
		return model.Indices{}, err
	}
	f.mu.Lock()
	f.windowLens = append(f.windowLens, len(frames))
	f.mu.Unlock()
	idx := model.Indices{Shape: []int{len(frames), tokensPerFrame}}
	idx.Data = make([]int32, len(frames)*tokensPerFrame)
	for i, fr := range frames {
		var seed int32
		if len(fr.Pix) > 0 {
			seed = int32(fr.Pix[0] * 100)
		}
		for t := 0; t < tokensPerFrame; t++ {
			idx.Data[i*tokensPerFrame+t] = seed + int32(t)
		}
	}
	return idx, nil
}

func (f *Fake) Latents(_ context.Context, idx model.Indices) (model.Latents, error) {
	if err := f.failed("latents"); err != nil {
		return model.Latents{}, err
	}
	lat := model.Latents{Shape: append([]int(nil), idx.Shape...)}
	lat.Data = make([]float32, len(idx.Data))
	for i, v := range idx.Data {
		lat.Data[i] = float32(v) / 64
	}
	return lat, nil
}

func (f *Fake) Decode(_ context.Context, lat model.Latents) ([]codec.Frame, error) {
	if err := f.failed("decode"); err != nil {
		return nil, err
	}
	n := 1
	if len(lat.Shape) > 0 {
		n = lat.Shape[0]
	}
	frames := make([]codec.Frame, n)
	for i := range frames {
		fr := codec.NewFrame(f.FrameW, f.FrameH)
		var fill float32
		if len(lat.Data) > 0 {
			fill = lat.Data[i*len(lat.Data)/n]
		}
		for j := range fr.Pix {
			fr.Pix[j] = fill
		}
		frames[i] = fr
	}
	return frames, nil
}

func (f *Fake) ActionLatent(_ context.Context, id int) (model.Latents, error) {
	if err := f.failed("action"); err != nil {
		return model.Latents{}, err
	}
	f.mu.Lock()
	f.actionIDs = append(f.actionIDs, id)
	f.mu.Unlock()
	return model.Latents{Shape: []int{1}, Data: []float32{float32(id)}}, nil
}

func (f *Fake) Size() int { return f.Actions }

func (f *Fake) Predict(ctx context.Context, req model.PredictRequest) (model.Latents, error) {
	if !atomic.CompareAndSwapInt32(&f.busy, 0, 1) {
		atomic.StoreInt32(&f.overlapped, 1)
	}
	defer atomic.StoreInt32(&f.busy, 0)
	if err := f.failed("predict"); err != nil {
		return model.Latents{}, err
	}
	if f.PredictDelay > 0 {
		time.Sleep(f.PredictDelay)
	}
	f.mu.Lock()
	f.predictCalls++
	f.mu.Unlock()

	// Exercise the re-grounding callback the way a real refiner would.
	if req.Reground != nil {
		probe := model.Indices{Shape: []int{1, tokensPerFrame}, Data: make([]int32, tokensPerFrame)}
		if _, err := req.Reground(ctx, probe); err != nil {
			return model.Latents{}, err
		}
	}

	var base float32
	for _, v := range req.Context.Data {
		base += v
	}
	if len(req.Context.Data) > 0 {
		base /= float32(len(req.Context.Data))
	}
	if req.Conditioning != nil && len(req.Conditioning.Data) > 0 {
		base += req.Conditioning.Data[0] / 100
	}
	out := model.Latents{Shape: []int{req.Horizon, tokensPerFrame}}
	out.Data = make([]float32, req.Horizon*tokensPerFrame)
	for i := range out.Data {
		out.Data[i] = base + float32(i)/1000
	}
	return out, nil
}

// ActionIDs returns the effective ids passed to ActionLatent, in order.
func (f *Fake) ActionIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.actionIDs...)
}

// PredictCalls returns how many predictions completed.
func (f *Fake) PredictCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.predictCalls
}

// WindowLens returns the context window length seen by each Encode call.
func (f *Fake) WindowLens() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.windowLens...)
}

// Overlapped reports whether two Predict calls ever ran concurrently.
func (f *Fake) Overlapped() bool { return atomic.LoadInt32(&f.overlapped) == 1 }
