// Package capture records a play stream to an MP4 file through a GStreamer
// pipeline fed with JPEG frames.
package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/ahump20/Sandlot-Sluggers/internal/logx"
)

// Writer encodes pushed JPEG frames into an H.264 MP4 file.
//
// Pipeline structure:
//
//	appsrc(image/jpeg) → jpegdec → videoconvert → videoscale →
//	capsfilter(I420 WxH fps) → x264enc → mp4mux → filesink
type Writer struct {
	pipeline *gst.Pipeline
	src      *app.Source

	mu     sync.Mutex
	frames int
	closed bool
}

// NewWriter builds and starts the capture pipeline writing to path.
func NewWriter(path string, width, height, fps int) (*Writer, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("capture: create pipeline: %w", err)
	}

	src, err := app.NewAppSrc()
	if err != nil {
		return nil, fmt.Errorf("capture: create appsrc: %w", err)
	}
	src.SetCaps(gst.NewCapsFromString("image/jpeg"))
	src.SetProperty("format", 3) // GST_FORMAT_TIME
	src.SetProperty("is-live", true)
	src.SetProperty("do-timestamp", true)

	names := []string{"jpegdec", "videoconvert", "videoscale", "capsfilter", "x264enc", "mp4mux", "filesink"}
	elems := make([]*gst.Element, 0, len(names))
	for _, name := range names {
		e, err := gst.NewElement(name)
		if err != nil {
			return nil, fmt.Errorf("capture: create %s: %w", name, err)
		}
		elems = append(elems, e)
	}
	capsfilter, x264, sink := elems[3], elems[4], elems[6]

	caps := fmt.Sprintf("video/x-raw,format=I420,width=%d,height=%d,framerate=%d/1", width, height, fps)
	capsfilter.SetProperty("caps", gst.NewCapsFromString(caps))
	x264.SetProperty("speed-preset", 1) // ultrafast, keeps up with live input
	sink.SetProperty("location", path)

	all := append([]*gst.Element{src.Element}, elems...)
	if err := pipeline.AddMany(all...); err != nil {
		return nil, fmt.Errorf("capture: assemble pipeline: %w", err)
	}
	if err := gst.ElementLinkMany(all...); err != nil {
		return nil, fmt.Errorf("capture: link pipeline: %w", err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("capture: start pipeline: %w", err)
	}
	logx.Log.Info().Str("path", path).Int("width", width).Int("height", height).Int("fps", fps).Msg("capture started")
	return &Writer{pipeline: pipeline, src: src}, nil
}

// Push appends one JPEG frame to the recording.
func (w *Writer) Push(jpeg []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("capture: writer closed")
	}
	if ret := w.src.PushBuffer(gst.NewBufferFromBytes(jpeg)); ret != gst.FlowOK {
		return fmt.Errorf("capture: push frame: flow %v", ret)
	}
	w.frames++
	return nil
}

// Frames returns how many frames were accepted so far.
func (w *Writer) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Close signals end of stream, waits for the muxer to finalize the file,
// and tears the pipeline down. The MP4 is unreadable unless this runs.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	frames := w.frames
	w.mu.Unlock()

	w.src.EndStream()
	bus := w.pipeline.GetPipelineBus()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		msg := bus.TimedPop(100 * time.Millisecond)
		if msg == nil {
			continue
		}
		if msg.Type() == gst.MessageError {
			err := msg.ParseError()
			_ = w.pipeline.SetState(gst.StateNull)
			return fmt.Errorf("capture: finalize: %w", err)
		}
		if msg.Type() == gst.MessageEOS {
			break
		}
	}
	if err := w.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("capture: stop pipeline: %w", err)
	}
	logx.Log.Info().Int("frames", frames).Msg("capture finished")
	return nil
}
