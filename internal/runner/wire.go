// Package runner is the control plane for model-runner processes: the
// external programs that own the video tokenizer, the latent action
// quantizer, and the dynamics model. A runner connects over a websocket,
// registers its model geometry, and answers tensor jobs.
package runner

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/ahump20/Sandlot-Sluggers/internal/codec"
	"github.com/ahump20/Sandlot-Sluggers/internal/model"
)

// Tensor is the wire form of a dense tensor: shape plus base64-encoded
// little-endian payload (float32 or int32 depending on the field).
type Tensor struct {
	Shape []int  `json:"shape"`
	Data  string `json:"data_b64"`
}

type RegisterMessage struct {
	Type               string `json:"type"`
	RunnerID           string `json:"runner_id"`
	RunnerName         string `json:"runner_name"`
	SharedKey          string `json:"shared_key"`
	CodebookSize       int    `json:"codebook_size"`
	ActionCodebookSize int    `json:"action_codebook_size"`
	FrameWidth         int    `json:"frame_width"`
	FrameHeight        int    `json:"frame_height"`
	Version            string `json:"version"`
}

type HeartbeatMessage struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`
}

type JobRequestMessage struct {
	Type    string      `json:"type"`
	JobID   string      `json:"job_id"`
	Op      string      `json:"op"`
	Payload interface{} `json:"payload"`
}

type JobResultMessage struct {
	Type  string          `json:"type"`
	JobID string          `json:"job_id"`
	Data  json.RawMessage `json:"data"`
}

type JobErrorMessage struct {
	Type    string `json:"type"`
	JobID   string `json:"job_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Job ops understood by runners.
const (
	OpEncode       = "encode"
	OpLatents      = "latents"
	OpDecode       = "decode"
	OpActionLatent = "action_latent"
	OpPredict      = "predict"
)

type EncodePayload struct {
	// Frames has shape [T, H, W, 3] in the normalized signed range.
	Frames Tensor `json:"frames"`
}

type EncodeResult struct {
	Indices Tensor `json:"indices"`
}

type LatentsPayload struct {
	Indices Tensor `json:"indices"`
}

type LatentsResult struct {
	Latents Tensor `json:"latents"`
}

type DecodePayload struct {
	Latents Tensor `json:"latents"`
}

type DecodeResult struct {
	Frames Tensor `json:"frames"`
}

type ActionLatentPayload struct {
	ActionID int `json:"action_id"`
}

type ActionLatentResult struct {
	Latent Tensor `json:"latent"`
}

type PredictPayload struct {
	Context      Tensor  `json:"context"`
	Horizon      int     `json:"horizon"`
	Steps        int     `json:"steps"`
	Conditioning *Tensor `json:"conditioning,omitempty"`
	Temperature  float64 `json:"temperature"`
	Precision    string  `json:"precision,omitempty"`
}

type PredictResult struct {
	Latents Tensor `json:"latents"`
}

// FloatTensor encodes latents for the wire.
func FloatTensor(l model.Latents) Tensor {
	buf := make([]byte, 4*len(l.Data))
	for i, v := range l.Data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return Tensor{Shape: append([]int(nil), l.Shape...), Data: base64.StdEncoding.EncodeToString(buf)}
}

// Floats decodes a float32 tensor from the wire.
func (t Tensor) Floats() (model.Latents, error) {
	buf, err := base64.StdEncoding.DecodeString(t.Data)
	if err != nil {
		return model.Latents{}, fmt.Errorf("tensor data: %w", err)
	}
	if len(buf)%4 != 0 {
		return model.Latents{}, fmt.Errorf("tensor data: %d bytes is not a float32 array", len(buf))
	}
	l := model.Latents{Shape: append([]int(nil), t.Shape...), Data: make([]float32, len(buf)/4)}
	for i := range l.Data {
		l.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	if err := l.Validate(); err != nil {
		return model.Latents{}, err
	}
	return l, nil
}

// IntTensor encodes indices for the wire.
func IntTensor(x model.Indices) Tensor {
	buf := make([]byte, 4*len(x.Data))
	for i, v := range x.Data {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(v))
	}
	return Tensor{Shape: append([]int(nil), x.Shape...), Data: base64.StdEncoding.EncodeToString(buf)}
}

// Ints decodes an int32 tensor from the wire.
func (t Tensor) Ints() (model.Indices, error) {
	buf, err := base64.StdEncoding.DecodeString(t.Data)
	if err != nil {
		return model.Indices{}, fmt.Errorf("tensor data: %w", err)
	}
	if len(buf)%4 != 0 {
		return model.Indices{}, fmt.Errorf("tensor data: %d bytes is not an int32 array", len(buf))
	}
	x := model.Indices{Shape: append([]int(nil), t.Shape...), Data: make([]int32, len(buf)/4)}
	for i := range x.Data {
		x.Data[i] = int32(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	if err := x.Validate(); err != nil {
		return model.Indices{}, err
	}
	return x, nil
}

// FramesTensor packs frames into a [T, H, W, 3] wire tensor.
func FramesTensor(frames []codec.Frame) (Tensor, error) {
	if len(frames) == 0 {
		return Tensor{}, fmt.Errorf("no frames to encode")
	}
	w, h := frames[0].Width, frames[0].Height
	data := make([]float32, 0, len(frames)*h*w*3)
	for i, f := range frames {
		if f.Width != w || f.Height != h {
			return Tensor{}, fmt.Errorf("frame %d geometry %dx%d differs from %dx%d", i, f.Width, f.Height, w, h)
		}
		if err := f.Validate(); err != nil {
			return Tensor{}, err
		}
		data = append(data, f.Pix...)
	}
	return FloatTensor(model.Latents{Shape: []int{len(frames), h, w, 3}, Data: data}), nil
}

// Frames unpacks a [T, H, W, 3] wire tensor.
func (t Tensor) Frames() ([]codec.Frame, error) {
	l, err := t.Floats()
	if err != nil {
		return nil, err
	}
	if len(l.Shape) != 4 || l.Shape[3] != 3 {
		return nil, fmt.Errorf("frames tensor: bad shape %v", l.Shape)
	}
	n, h, w := l.Shape[0], l.Shape[1], l.Shape[2]
	frames := make([]codec.Frame, n)
	stride := h * w * 3
	for i := range frames {
		frames[i] = codec.Frame{Width: w, Height: h, Pix: l.Data[i*stride : (i+1)*stride]}
	}
	return frames, nil
}
