// Package stream is the client-facing play surface: a persistent websocket
// per player over which action messages come in and generated frames go out.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ahump20/Sandlot-Sluggers/internal/codec"
	"github.com/ahump20/Sandlot-Sluggers/internal/dispatch"
	"github.com/ahump20/Sandlot-Sluggers/internal/logx"
	"github.com/ahump20/Sandlot-Sluggers/internal/model"
	"github.com/ahump20/Sandlot-Sluggers/internal/serverstate"
)

// actionMessage is one client step request.
type actionMessage struct {
	Action int `json:"action"`
}

// SeedProvider supplies the initial clip for a fresh connection.
type SeedProvider func() ([]codec.Frame, error)

// Handler accepts play connections. Each connection gets its own session,
// seeded once at accept time. The loop reads one action, runs one step, and
// writes the newest generated frame as a binary PNG message.
func Handler(reg *dispatch.Registry, seed SeedProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if serverstate.IsDraining() {
			http.Error(w, "draining", http.StatusServiceUnavailable)
			return
		}
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusInternalError, "server error")

		connID := uuid.NewString()
		log := logx.Log.With().Str("conn_id", connID).Logger()

		frames, err := seed()
		if err != nil {
			log.Error().Err(err).Msg("seed unavailable")
			c.Close(websocket.StatusInternalError, "seed unavailable")
			return
		}
		if _, err := reg.Register(connID, frames); err != nil {
			log.Error().Err(err).Msg("session rejected")
			c.Close(websocket.StatusTryAgainLater, "no model backend")
			return
		}
		defer reg.Unregister(connID)

		ctx := r.Context()
		for {
			kind, data, err := c.Read(ctx)
			if err != nil {
				var ce websocket.CloseError
				if errors.As(err, &ce) && ce.Code == websocket.StatusNormalClosure {
					log.Info().Msg("player disconnected")
				} else {
					log.Debug().Err(err).Msg("player connection lost")
				}
				return
			}
			var am actionMessage
			if kind != websocket.MessageText || json.Unmarshal(data, &am) != nil {
				log.Warn().Msg("malformed action message")
				continue
			}

			out, err := step(ctx, reg, connID, am.Action)
			if err != nil {
				var ge *model.GenerationError
				if errors.As(err, &ge) {
					log.Error().Err(err).Msg("generation failed, closing connection")
					c.Close(websocket.StatusInternalError, "generation failed")
					return
				}
				if errors.Is(err, dispatch.ErrUnknownSession) || ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("step failed, closing connection")
				c.Close(websocket.StatusInternalError, "step failed")
				return
			}
			if err := c.Write(ctx, websocket.MessageBinary, out); err != nil {
				log.Debug().Err(err).Msg("frame write failed")
				return
			}
		}
	}
}

// step runs one dispatch round and encodes the newest frame.
func step(ctx context.Context, reg *dispatch.Registry, connID string, action int) ([]byte, error) {
	frames, err := reg.Dispatch(ctx, connID, action)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := frames[len(frames)-1].EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
