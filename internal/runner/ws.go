package runner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/ahump20/Sandlot-Sluggers/internal/logx"
	"github.com/ahump20/Sandlot-Sluggers/internal/metrics"
	"github.com/ahump20/Sandlot-Sluggers/internal/serverstate"
)

// maxTensorMessage bounds a single websocket frame; decoded pixel batches
// dominate and stay well under this for the supported geometries.
const maxTensorMessage = 64 << 20

// WSHandler accepts model-runner connections. The first message must be a
// register frame; afterwards the socket carries heartbeats and job results.
func WSHandler(reg *Registry, sharedKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if serverstate.IsDraining() {
			http.Error(w, "draining", http.StatusServiceUnavailable)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		c.SetReadLimit(maxTensorMessage)
		ctx := r.Context()
		defer func() {
			_ = c.Close(websocket.StatusInternalError, "server error")
		}()

		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		var rm RegisterMessage
		if err := json.Unmarshal(data, &rm); err != nil || rm.Type != "register" {
			_ = c.Close(websocket.StatusPolicyViolation, "expected register")
			return
		}
		if sharedKey != "" && rm.SharedKey != sharedKey {
			_ = c.Close(websocket.StatusPolicyViolation, "unauthorized")
			return
		}
		if rm.CodebookSize <= 0 || rm.FrameWidth <= 0 || rm.FrameHeight <= 0 {
			_ = c.Close(websocket.StatusPolicyViolation, "incomplete model geometry")
			return
		}
		if rm.RunnerName == "" {
			if len(rm.RunnerID) >= 8 {
				rm.RunnerName = rm.RunnerID[:8]
			} else if rm.RunnerID != "" {
				rm.RunnerName = rm.RunnerID
			} else {
				rm.RunnerName = strings.Split(r.RemoteAddr, ":")[0]
			}
		}

		rn := NewRunner(rm)
		reg.Add(rn)
		metrics.RunnerConnected()
		logx.Log.Info().
			Str("runner_id", rn.ID).
			Str("runner_name", rn.Name).
			Int("codebook_size", rn.CodebookSize).
			Int("action_codebook_size", rn.ActionCodebookSize).
			Str("version", rm.Version).
			Msg("runner registered")
		if reg.Count() == 1 {
			serverstate.SetState("ready")
		}
		defer func() {
			reg.Remove(rn.ID)
			metrics.RunnerDisconnected()
			if reg.Count() == 0 {
				serverstate.SetState("not_ready")
			}
		}()

		go func() {
			for msg := range rn.send {
				b, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				if err := c.Write(ctx, websocket.MessageText, b); err != nil {
					return
				}
			}
		}()

		for {
			_, msg, err := c.Read(ctx)
			if err != nil {
				var ce websocket.CloseError
				if errors.As(err, &ce) && ce.Code == websocket.StatusNormalClosure {
					logx.Log.Info().Str("runner_id", rn.ID).Msg("runner disconnected")
				} else {
					logx.Log.Error().Err(err).Str("runner_id", rn.ID).Msg("runner disconnected")
				}
				return
			}
			var env struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			switch env.Type {
			case "heartbeat":
				reg.UpdateHeartbeat(rn.ID)
			case "job_result":
				var m JobResultMessage
				if err := json.Unmarshal(msg, &m); err == nil {
					if ch, ok := rn.TakeJob(m.JobID); ok {
						ch <- m
						close(ch)
					}
				}
			case "job_error":
				var m JobErrorMessage
				if err := json.Unmarshal(msg, &m); err == nil {
					if ch, ok := rn.TakeJob(m.JobID); ok {
						ch <- m
						close(ch)
					}
				}
			}
		}
	}
}

// PruneLoop evicts stale runners until ctx is done.
func PruneLoop(ctx context.Context, reg *Registry) {
	t := time.NewTicker(HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			reg.PruneExpired(HeartbeatExpiry)
			if reg.Count() == 0 && !serverstate.IsDraining() && serverstate.GetState() == "ready" {
				serverstate.SetState("not_ready")
			}
		}
	}
}
