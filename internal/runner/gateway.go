package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ahump20/Sandlot-Sluggers/internal/codec"
	"github.com/ahump20/Sandlot-Sluggers/internal/model"
)

// DefaultJobTimeout bounds one tensor job. Prediction dominates; the other
// ops finish in a fraction of this.
const DefaultJobTimeout = 120 * time.Second

// client issues tensor jobs against one runner and decodes the results.
type client struct {
	r       *Runner
	timeout time.Duration
}

func (c *client) call(ctx context.Context, op string, payload interface{}, out interface{}) error {
	id := uuid.NewString()
	ch := make(chan interface{}, 1)
	c.r.AddJob(id, ch)
	if err := c.r.Submit(JobRequestMessage{Type: "job_request", JobID: id, Op: op, Payload: payload}); err != nil {
		c.r.RemoveJob(id)
		return err
	}

	timeout := c.timeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-ctx.Done():
		c.r.RemoveJob(id)
		return ctx.Err()
	case <-t.C:
		c.r.RemoveJob(id)
		return fmt.Errorf("%s: job timed out after %s", op, timeout)
	case msg, ok := <-ch:
		if !ok {
			return ErrDisconnected
		}
		switch m := msg.(type) {
		case JobResultMessage:
			if err := json.Unmarshal(m.Data, out); err != nil {
				return fmt.Errorf("%s: decode result: %w", op, err)
			}
			return nil
		case JobErrorMessage:
			return fmt.Errorf("%s: runner error %s: %s", op, m.Code, m.Message)
		default:
			return fmt.Errorf("%s: unexpected runner reply %T", op, msg)
		}
	}
}

// remoteCodebook adapts a runner's tokenizer ops to the model.Codebook
// interface.
type remoteCodebook struct {
	c *client
}

func (g *remoteCodebook) Encode(ctx context.Context, frames []codec.Frame) (model.Indices, error) {
	ft, err := FramesTensor(frames)
	if err != nil {
		return model.Indices{}, err
	}
	var res EncodeResult
	if err := g.c.call(ctx, OpEncode, EncodePayload{Frames: ft}, &res); err != nil {
		return model.Indices{}, err
	}
	return res.Indices.Ints()
}

func (g *remoteCodebook) Latents(ctx context.Context, idx model.Indices) (model.Latents, error) {
	var res LatentsResult
	if err := g.c.call(ctx, OpLatents, LatentsPayload{Indices: IntTensor(idx)}, &res); err != nil {
		return model.Latents{}, err
	}
	return res.Latents.Floats()
}

func (g *remoteCodebook) Decode(ctx context.Context, l model.Latents) ([]codec.Frame, error) {
	var res DecodeResult
	if err := g.c.call(ctx, OpDecode, DecodePayload{Latents: FloatTensor(l)}, &res); err != nil {
		return nil, err
	}
	return res.Frames.Frames()
}

// remoteActions adapts a runner's latent action quantizer.
type remoteActions struct {
	c    *client
	size int
}

func (g *remoteActions) Size() int { return g.size }

func (g *remoteActions) ActionLatent(ctx context.Context, actionID int) (model.Latents, error) {
	var res ActionLatentResult
	if err := g.c.call(ctx, OpActionLatent, ActionLatentPayload{ActionID: actionID}, &res); err != nil {
		return model.Latents{}, err
	}
	return res.Latent.Floats()
}

// remoteRefiner adapts a runner's dynamics model. The re-grounding callback
// in PredictRequest is not shipped over the wire: tokenizer and dynamics
// live in the same runner process, which re-grounds intermediate indices
// against its local codebook during refinement.
type remoteRefiner struct {
	c *client
}

func (g *remoteRefiner) Predict(ctx context.Context, req model.PredictRequest) (model.Latents, error) {
	p := PredictPayload{
		Context:     FloatTensor(req.Context),
		Horizon:     req.Horizon,
		Steps:       req.Steps,
		Temperature: req.Temperature,
		Precision:   req.Precision,
	}
	if req.Conditioning != nil {
		t := FloatTensor(*req.Conditioning)
		p.Conditioning = &t
	}
	var res PredictResult
	if err := g.c.call(ctx, OpPredict, p, &res); err != nil {
		return model.Latents{}, err
	}
	return res.Latents.Floats()
}

// Gateways binds the three model interfaces to one runner. The action codec
// is nil when the runner registered without an action codebook, which makes
// sessions run unconditioned.
func Gateways(r *Runner, timeout time.Duration) (model.Codebook, model.ActionCodec, model.Refiner) {
	c := &client{r: r, timeout: timeout}
	var actions model.ActionCodec
	if r.ActionCodebookSize > 0 {
		actions = &remoteActions{c: c, size: r.ActionCodebookSize}
	}
	return &remoteCodebook{c: c}, actions, &remoteRefiner{c: c}
}
