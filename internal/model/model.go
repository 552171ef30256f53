// Package model defines the gateway contracts the inference session consumes.
// The tokenizer, action quantizer, and dynamics model live behind these
// interfaces; implementations may be in-process fakes or remote runners.
package model

import (
	"context"
	"fmt"

	"github.com/ahump20/Sandlot-Sluggers/internal/codec"
)

// Latents is a dense float tensor in the codebook's continuous space.
type Latents struct {
	Shape []int
	Data  []float32
}

// Indices is a tensor of discrete codebook indices.
type Indices struct {
	Shape []int
	Data  []int32
}

// RegroundFunc maps intermediate discrete indices back into latent space.
// Iterative refinement periodically re-grounds its estimate in the codebook.
type RegroundFunc func(ctx context.Context, idx Indices) (Latents, error)

// Codebook is the video tokenizer: pixel frames to discrete indices to
// continuous latents and back. Stateless with respect to session data.
type Codebook interface {
	// Encode tokenizes frames into discrete indices.
	Encode(ctx context.Context, frames []codec.Frame) (Indices, error)
	// Latents looks up the continuous latents for discrete indices.
	Latents(ctx context.Context, idx Indices) (Latents, error)
	// Decode detokenizes latents back into pixel frames.
	Decode(ctx context.Context, lat Latents) ([]codec.Frame, error)
}

// ActionCodec is the latent action quantizer. A nil ActionCodec means the
// session generates unconditionally.
type ActionCodec interface {
	// ActionLatent looks up the conditioning latent for a discrete action id.
	// The id must already be normalized into [0, Size).
	ActionLatent(ctx context.Context, id int) (Latents, error)
	// Size is the number of entries in the action codebook.
	Size() int
}

// PredictRequest carries the inputs for one iterative prediction.
type PredictRequest struct {
	Context      Latents
	Horizon      int
	Steps        int
	Reground     RegroundFunc
	Conditioning *Latents
	// Temperature controls sampling stochasticity; passed through
	// uninterpreted to the dynamics model.
	Temperature float64
	// Precision selects the numeric mode ("bf16", "fp32"); passed through
	// uninterpreted.
	Precision string
}

// Refiner is the dynamics model: latent context in, predicted latents out.
type Refiner interface {
	Predict(ctx context.Context, req PredictRequest) (Latents, error)
}

// GenerationError marks a failure inside a gateway. It is fatal to the
// owning session: no partial frame is ever committed or returned.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed at %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Numel returns the element count implied by a shape.
func Numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if len(shape) == 0 {
		return 0
	}
	return n
}

// Validate checks that the data length matches the declared shape.
func (l Latents) Validate() error {
	if want := Numel(l.Shape); len(l.Data) != want {
		return fmt.Errorf("latents shape %v: have %d elements, want %d", l.Shape, len(l.Data), want)
	}
	return nil
}

// Validate checks that the data length matches the declared shape.
func (x Indices) Validate() error {
	if want := Numel(x.Shape); len(x.Data) != want {
		return fmt.Errorf("indices shape %v: have %d elements, want %d", x.Shape, len(x.Data), want)
	}
	return nil
}
