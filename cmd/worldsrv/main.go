package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahump20/Sandlot-Sluggers/internal/codec"
	"github.com/ahump20/Sandlot-Sluggers/internal/config"
	"github.com/ahump20/Sandlot-Sluggers/internal/dispatch"
	"github.com/ahump20/Sandlot-Sluggers/internal/logx"
	"github.com/ahump20/Sandlot-Sluggers/internal/metrics"
	"github.com/ahump20/Sandlot-Sluggers/internal/runner"
	"github.com/ahump20/Sandlot-Sluggers/internal/seed"
	"github.com/ahump20/Sandlot-Sluggers/internal/server"
	"github.com/ahump20/Sandlot-Sluggers/internal/serverstate"
	"github.com/ahump20/Sandlot-Sluggers/internal/session"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.ServerConfig
	// Resolve config with precedence: defaults < file < env < args
	cfg.SetDefaults()
	cfg.ApplyEnv() // allows CONFIG_FILE from env
	// Allow --config to override file path before loading it
	for i := 1; i < len(os.Args); i++ {
		a := os.Args[i]
		if a == "--config" && i+1 < len(os.Args) {
			cfg.ConfigFile = os.Args[i+1]
			break
		}
		if strings.HasPrefix(a, "--config=") {
			cfg.ConfigFile = strings.TrimPrefix(a, "--config=")
			break
		}
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	cfg.ApplyEnv()
	cfg.BindFlagsFromCurrent()
	flag.Parse()
	if *showVersion {
		fmt.Printf("worldsrv version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}

	logx.Configure(cfg.LogLevel)
	metrics.Register(prometheus.DefaultRegisterer)
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	if cfg.SeedDir == "" {
		logx.Log.Fatal().Msg("seed-dir is required")
	}

	if cfg.RedisAddr != "" {
		rs, err := serverstate.NewRedisStore(cfg.RedisAddr)
		if err != nil {
			logx.Log.Fatal().Err(err).Msg("connect redis")
		}
		serverstate.UseStore(rs)
		logx.Log.Info().Str("addr", cfg.RedisAddr).Msg("using redis state store")
	}

	runners := runner.NewRegistry()

	// Sessions bind to the active runner at creation time; a session created
	// while no runner is connected is refused.
	factory := func() (*session.Session, error) {
		r, ok := runners.Active()
		if !ok {
			return nil, fmt.Errorf("no model runner connected")
		}
		cb, actions, refiner := runner.Gateways(r, cfg.RequestTimeout)
		return session.New(cb, actions, refiner, session.Config{
			Window:       cfg.ContextWindow,
			Horizon:      cfg.PredictionHorizon,
			Temperature:  cfg.Temperature,
			Precision:    cfg.Precision,
			HistorySlack: cfg.HistorySlack,
		}), nil
	}
	sessions := dispatch.NewRegistry(factory)

	// The seed clip is resized to the active runner's frame geometry; the
	// decoded frames are cached per geometry.
	var seedMu sync.Mutex
	seedCache := map[string][]codec.Frame{}
	seedProvider := func() ([]codec.Frame, error) {
		r, ok := runners.Active()
		if !ok {
			return nil, fmt.Errorf("no model runner connected")
		}
		key := fmt.Sprintf("%dx%d", r.FrameWidth, r.FrameHeight)
		seedMu.Lock()
		defer seedMu.Unlock()
		if frames, ok := seedCache[key]; ok {
			return frames, nil
		}
		frames, err := seed.Load(cfg.SeedDir, r.FrameWidth, r.FrameHeight, cfg.ContextWindow)
		if err != nil {
			return nil, err
		}
		seedCache[key] = frames
		return frames, nil
	}

	handler := server.New(cfg, runners, sessions, seedProvider)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: handler}
	var metricsSrv *http.Server
	if cfg.MetricsAddr != fmt.Sprintf(":%d", cfg.Port) {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go runner.PruneLoop(ctx, runners)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if serverstate.IsDraining() || cfg.DrainTimeout == 0 {
				logx.Log.Warn().Msg("termination requested")
				cancel()
				return
			}
			serverstate.StartDrain()
			waitCtx := ctx
			var stop context.CancelFunc
			if cfg.DrainTimeout > 0 {
				logx.Log.Info().Dur("timeout", cfg.DrainTimeout).Msg("draining; send SIGTERM again to terminate immediately")
				waitCtx, stop = context.WithTimeout(ctx, cfg.DrainTimeout)
			} else {
				logx.Log.Info().Msg("draining; send SIGTERM again to terminate immediately")
			}
			go func(stop context.CancelFunc, waitCtx context.Context) {
				if stop != nil {
					defer stop()
				}
				t := time.NewTicker(time.Second)
				defer t.Stop()
				for {
					select {
					case <-waitCtx.Done():
						if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
							logx.Log.Warn().Int("sessions", sessions.Count()).Msg("drain timeout exceeded; terminating")
							cancel()
						}
						return
					case <-t.C:
						if sessions.Count() == 0 {
							logx.Log.Info().Msg("drain complete; terminating")
							cancel()
							return
						}
					}
				}
			}(stop, waitCtx)
		}
	}()
	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			logx.Log.Error().Err(err).Msg("server shutdown")
		}
	}()
	if metricsSrv != nil {
		go func() {
			<-ctx.Done()
			if err := metricsSrv.Shutdown(context.Background()); err != nil {
				logx.Log.Error().Err(err).Msg("metrics server shutdown")
			}
		}()
	}

	if cfg.ClientKey != "" {
		logx.Log.Info().Msg("client key required")
	}
	logx.Log.Info().Int("port", cfg.Port).Str("seed_dir", cfg.SeedDir).
		Int("context_window", cfg.ContextWindow).Int("prediction_horizon", cfg.PredictionHorizon).
		Msg("server starting")
	if metricsSrv != nil {
		go func() {
			logx.Log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logx.Log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
}
