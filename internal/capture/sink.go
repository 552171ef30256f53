package capture

import (
	"net/http"

	"github.com/coder/websocket"

	"github.com/ahump20/Sandlot-Sluggers/internal/logx"
)

// FramePusher accepts encoded JPEG frames.
type FramePusher interface {
	Push(jpeg []byte) error
}

// Handler accepts one websocket stream of binary JPEG frames and feeds it
// to the pusher. Text messages are ignored.
func Handler(p FramePusher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusInternalError, "server error")
		c.SetReadLimit(8 << 20)

		ctx := r.Context()
		logx.Log.Info().Str("remote", r.RemoteAddr).Msg("capture stream connected")
		for {
			kind, data, err := c.Read(ctx)
			if err != nil {
				logx.Log.Info().Str("remote", r.RemoteAddr).Msg("capture stream closed")
				return
			}
			if kind != websocket.MessageBinary {
				continue
			}
			if err := p.Push(data); err != nil {
				logx.Log.Error().Err(err).Msg("capture push failed")
				c.Close(websocket.StatusInternalError, "capture failed")
				return
			}
		}
	}
}
