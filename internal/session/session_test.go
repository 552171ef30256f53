package session

import (
	"context"
	"errors"
	"testing"

	"github.com/ahump20/Sandlot-Sluggers/internal/codec"
	"github.com/ahump20/Sandlot-Sluggers/internal/model"
	"github.com/ahump20/Sandlot-Sluggers/internal/model/modeltest"
)

func seedFrames(fake *modeltest.Fake, n int) []codec.Frame {
	frames := make([]codec.Frame, n)
	for i := range frames {
		fr := codec.NewFrame(fake.FrameW, fake.FrameH)
		for j := range fr.Pix {
			fr.Pix[j] = float32(i) / 10
		}
		frames[i] = fr
	}
	return frames
}

func TestStepBeforeInitialize(t *testing.T) {
	fake := modeltest.NewFake(3)
	s := New(fake, fake, fake, Config{Window: 4})
	if _, err := s.Step(context.Background(), 0); !errors.Is(err, ErrUninitialized) {
		t.Fatalf("err = %v; want ErrUninitialized", err)
	}
	if s.History().Len() != 0 {
		t.Fatalf("history len = %d; want 0", s.History().Len())
	}
}

func TestStepAppendsHorizonFrames(t *testing.T) {
	fake := modeltest.NewFake(3)
	s := New(fake, fake, fake, Config{Window: 4})
	s.Initialize(seedFrames(fake, 4))

	frames, err := s.Step(context.Background(), 2)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames; want 1", len(frames))
	}
	if got := s.History().Len(); got != 5 {
		t.Fatalf("history len = %d; want 5", got)
	}
	if ids := fake.ActionIDs(); len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("action ids = %v; want [2]", ids)
	}
}

func TestHistoryGrowsByHorizonEveryStep(t *testing.T) {
	fake := modeltest.NewFake(0)
	s := New(fake, nil, fake, Config{Window: 4, Horizon: 3})
	s.Initialize(seedFrames(fake, 4))

	for step := 1; step <= 5; step++ {
		frames, err := s.Step(context.Background(), 0)
		if err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		if len(frames) != 3 {
			t.Fatalf("step %d: got %d frames; want 3", step, len(frames))
		}
		if got, want := s.History().Len(), 4+3*step; got != want {
			t.Fatalf("step %d: history len = %d; want %d", step, got, want)
		}
	}
}

func TestContextWindowAlwaysExactlyW(t *testing.T) {
	fake := modeltest.NewFake(2)
	s := New(fake, fake, fake, Config{Window: 4, HistorySlack: 2})
	s.Initialize(seedFrames(fake, 6))

	for i := 0; i < 8; i++ {
		if _, err := s.Step(context.Background(), i); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	for i, n := range fake.WindowLens() {
		if n != 4 {
			t.Fatalf("encode call %d saw window of %d frames; want 4", i, n)
		}
	}
}

func TestActionWrapsModuloCodebookSize(t *testing.T) {
	fake := modeltest.NewFake(5)
	s := New(fake, fake, fake, Config{Window: 2})
	s.Initialize(seedFrames(fake, 2))

	ctx := context.Background()
	for _, a := range []int{1, 6, 11, -4} {
		if _, err := s.Step(ctx, a); err != nil {
			t.Fatalf("step(%d): %v", a, err)
		}
	}
	for i, id := range fake.ActionIDs() {
		if id != 1 {
			t.Fatalf("call %d: effective id = %d; want 1", i, id)
		}
	}
}

func TestUnconditionalWhenNoActionCodec(t *testing.T) {
	fake := modeltest.NewFake(0)
	s := New(fake, nil, fake, Config{Window: 2})
	s.Initialize(seedFrames(fake, 2))
	if _, err := s.Step(context.Background(), 7); err != nil {
		t.Fatalf("step: %v", err)
	}
	if ids := fake.ActionIDs(); len(ids) != 0 {
		t.Fatalf("action ids = %v; want none", ids)
	}
}

func TestGatewayFailureIsAtomicAndFatal(t *testing.T) {
	for _, stage := range []string{"encode", "latents", "action", "predict", "decode"} {
		fake := modeltest.NewFake(3)
		fake.FailStage = stage
		s := New(fake, fake, fake, Config{Window: 2})
		s.Initialize(seedFrames(fake, 2))

		_, err := s.Step(context.Background(), 0)
		var genErr *model.GenerationError
		if !errors.As(err, &genErr) {
			t.Fatalf("stage %s: err = %v; want GenerationError", stage, err)
		}
		if genErr.Stage != stage {
			t.Fatalf("stage = %q; want %q", genErr.Stage, stage)
		}
		if got := s.History().Len(); got != 2 {
			t.Fatalf("stage %s: history len = %d; want 2 (no partial append)", stage, got)
		}

		// The session is poisoned: the failure repeats without touching
		// the gateways again.
		fake.FailStage = ""
		if _, err2 := s.Step(context.Background(), 0); !errors.Is(err2, err) {
			t.Fatalf("stage %s: second step err = %v; want sticky %v", stage, err2, err)
		}
	}
}

func TestInitializeResetsHistory(t *testing.T) {
	fake := modeltest.NewFake(0)
	s := New(fake, nil, fake, Config{Window: 2})
	s.Initialize(seedFrames(fake, 2))
	if _, err := s.Step(context.Background(), 0); err != nil {
		t.Fatalf("step: %v", err)
	}
	s.Initialize(seedFrames(fake, 2))
	if got := s.History().Len(); got != 2 {
		t.Fatalf("history len after re-init = %d; want 2", got)
	}
}
