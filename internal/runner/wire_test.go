package runner

import (
	"testing"

	"github.com/ahump20/Sandlot-Sluggers/internal/codec"
	"github.com/ahump20/Sandlot-Sluggers/internal/model"
)

func TestFloatTensorRoundTrip(t *testing.T) {
	in := model.Latents{Shape: []int{2, 3}, Data: []float32{0, 1, -1, 0.5, -0.25, 3.14}}
	out, err := FloatTensor(in).Floats()
	if err != nil {
		t.Fatalf("Floats: %v", err)
	}
	if len(out.Shape) != 2 || out.Shape[0] != 2 || out.Shape[1] != 3 {
		t.Fatalf("shape = %v; want [2 3]", out.Shape)
	}
	for i, v := range in.Data {
		if out.Data[i] != v {
			t.Fatalf("data[%d] = %v; want %v", i, out.Data[i], v)
		}
	}
}

func TestIntTensorRoundTrip(t *testing.T) {
	in := model.Indices{Shape: []int{4}, Data: []int32{0, 7, -1, 1023}}
	out, err := IntTensor(in).Ints()
	if err != nil {
		t.Fatalf("Ints: %v", err)
	}
	for i, v := range in.Data {
		if out.Data[i] != v {
			t.Fatalf("data[%d] = %d; want %d", i, out.Data[i], v)
		}
	}
}

func TestTensorShapeMismatch(t *testing.T) {
	bad := FloatTensor(model.Latents{Shape: []int{3}, Data: []float32{1, 2, 3}})
	bad.Shape = []int{4}
	if _, err := bad.Floats(); err == nil {
		t.Fatalf("Floats accepted a tensor whose data does not match its shape")
	}
}

func TestFramesTensorRoundTrip(t *testing.T) {
	a := codec.NewFrame(2, 2)
	b := codec.NewFrame(2, 2)
	for i := range b.Pix {
		b.Pix[i] = 0.5
	}
	wire, err := FramesTensor([]codec.Frame{a, b})
	if err != nil {
		t.Fatalf("FramesTensor: %v", err)
	}
	if len(wire.Shape) != 4 || wire.Shape[0] != 2 || wire.Shape[1] != 2 || wire.Shape[2] != 2 || wire.Shape[3] != 3 {
		t.Fatalf("wire shape = %v; want [2 2 2 3]", wire.Shape)
	}
	frames, err := wire.Frames()
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames; want 2", len(frames))
	}
	if frames[1].Pix[0] != 0.5 {
		t.Fatalf("frame 1 pixel = %v; want 0.5", frames[1].Pix[0])
	}
}

func TestFramesTensorMixedGeometry(t *testing.T) {
	if _, err := FramesTensor([]codec.Frame{codec.NewFrame(2, 2), codec.NewFrame(4, 4)}); err == nil {
		t.Fatalf("FramesTensor accepted frames with mixed geometry")
	}
}
