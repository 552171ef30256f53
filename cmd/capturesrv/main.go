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
	"syscall"

	"github.com/ahump20/Sandlot-Sluggers/internal/capture"
	"github.com/ahump20/Sandlot-Sluggers/internal/config"
	"github.com/ahump20/Sandlot-Sluggers/internal/logx"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.CaptureConfig
	cfg.SetDefaults()
	cfg.ApplyEnv()
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
		fmt.Printf("capturesrv version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}

	logx.Configure(cfg.LogLevel)

	writer, err := capture.NewWriter(cfg.OutputPath, cfg.Width, cfg.Height, cfg.FPS)
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("start capture")
	}

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: capture.Handler(writer)}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logx.Log.Info().Msg("termination requested")
		if err := srv.Shutdown(context.Background()); err != nil {
			logx.Log.Error().Err(err).Msg("server shutdown")
		}
	}()

	logx.Log.Info().Int("port", cfg.Port).Str("output", cfg.OutputPath).Msg("capture sink listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Log.Error().Err(err).Msg("server error")
	}
	// Finalize the MP4; without this the file has no moov atom.
	if err := writer.Close(); err != nil {
		logx.Log.Error().Err(err).Msg("finalize capture")
	}
}
