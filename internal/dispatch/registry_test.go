package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ahump20/Sandlot-Sluggers/internal/codec"
	"github.com/ahump20/Sandlot-Sluggers/internal/model/modeltest"
	"github.com/ahump20/Sandlot-Sluggers/internal/session"
)

func newTestRegistry(fake *modeltest.Fake) *Registry {
	return NewRegistry(func() (*session.Session, error) {
		return session.New(fake, fake, fake, session.Config{Window: 2}), nil
	})
}

func seed(fake *modeltest.Fake, n int) []codec.Frame {
	frames := make([]codec.Frame, n)
	for i := range frames {
		frames[i] = codec.NewFrame(fake.FrameW, fake.FrameH)
	}
	return frames
}

func TestRegisterDuplicate(t *testing.T) {
	fake := modeltest.NewFake(3)
	reg := newTestRegistry(fake)
	if _, err := reg.Register("c1", seed(fake, 2)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := reg.Register("c1", seed(fake, 2)); !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("err = %v; want ErrDuplicateSession", err)
	}
}

func TestDispatchUnknown(t *testing.T) {
	fake := modeltest.NewFake(3)
	reg := newTestRegistry(fake)
	if _, err := reg.Dispatch(context.Background(), "nope", 0); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("err = %v; want ErrUnknownSession", err)
	}
}

func TestDispatchSteps(t *testing.T) {
	fake := modeltest.NewFake(3)
	reg := newTestRegistry(fake)
	s, err := reg.Register("c1", seed(fake, 2))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	frames, err := reg.Dispatch(context.Background(), "c1", 1)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames; want 1", len(frames))
	}
	if s.History().Len() != 3 {
		t.Fatalf("history len = %d; want 3", s.History().Len())
	}
}

func TestUnregisterReleasesSession(t *testing.T) {
	fake := modeltest.NewFake(0)
	reg := newTestRegistry(fake)
	if _, err := reg.Register("c1", seed(fake, 2)); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Unregister("c1")
	if reg.Count() != 0 {
		t.Fatalf("count = %d; want 0", reg.Count())
	}
	if _, err := reg.Dispatch(context.Background(), "c1", 0); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("err = %v; want ErrUnknownSession", err)
	}
}

func TestConcurrentSessionsNeverOverlapInRefiner(t *testing.T) {
	fake := modeltest.NewFake(4)
	fake.PredictDelay = 2 * time.Millisecond
	reg := newTestRegistry(fake)
	for _, id := range []string{"a", "b"} {
		if _, err := reg.Register(id, seed(fake, 2)); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if _, err := reg.Dispatch(context.Background(), id, i); err != nil {
					t.Errorf("dispatch %s: %v", id, err)
					return
				}
			}
		}(id)
	}
	wg.Wait()

	if fake.Overlapped() {
		t.Fatal("two sessions overlapped inside the refiner")
	}
	if got := fake.PredictCalls(); got != 20 {
		t.Fatalf("predict calls = %d; want 20", got)
	}
}

func TestStepsForOneSessionStayOrdered(t *testing.T) {
	fake := modeltest.NewFake(10)
	reg := newTestRegistry(fake)
	if _, err := reg.Register("c1", seed(fake, 2)); err != nil {
		t.Fatalf("register: %v", err)
	}
	for i := 0; i < 8; i++ {
		if _, err := reg.Dispatch(context.Background(), "c1", i); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	ids := fake.ActionIDs()
	for i, id := range ids {
		if id != i {
			t.Fatalf("action order = %v; want ascending", ids)
		}
	}
}

func TestInFlightStepDiscardedAfterUnregister(t *testing.T) {
	fake := modeltest.NewFake(0)
	fake.PredictDelay = 30 * time.Millisecond
	reg := newTestRegistry(fake)
	if _, err := reg.Register("c1", seed(fake, 2)); err != nil {
		t.Fatalf("register: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := reg.Dispatch(context.Background(), "c1", 0)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond) // let the step enter the gateways
	reg.Unregister("c1")

	if err := <-errCh; !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("err = %v; want ErrUnknownSession", err)
	}
	// The step itself ran to completion.
	if got := fake.PredictCalls(); got != 1 {
		t.Fatalf("predict calls = %d; want 1", got)
	}
}
