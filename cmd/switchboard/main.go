package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/switchboard-ai/switchboard/pkg/bridge/call"
	"github.com/switchboard-ai/switchboard/pkg/bridge/config"
	"github.com/switchboard-ai/switchboard/pkg/bridge/media"
	"github.com/switchboard-ai/switchboard/pkg/bridge/respond"
	"github.com/switchboard-ai/switchboard/pkg/bridge/server"
	"github.com/switchboard-ai/switchboard/pkg/bridge/speech"
	"github.com/switchboard-ai/switchboard/pkg/bridge/twilio"
)

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	manager := call.NewManager(logger)
	phones := twilio.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken)
	deepgram := speech.NewDeepgram(cfg.DeepgramAPIKey)
	tracker := media.NewTracker()

	responder, err := respond.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return fmt.Errorf("build responder: %w", err)
	}

	dispatcher := &media.Dispatcher{
		Manager:     manager,
		Responder:   responder,
		Synth:       deepgram,
		Phones:      phones,
		Logger:      logger,
		PublicHost:  cfg.PublicHost,
		NoopBackoff: cfg.NoopBackoff,
	}

	srv := server.New(cfg, logger, server.Deps{
		Manager:     manager,
		Phones:      phones,
		Transcriber: deepgram,
		Transcripts: dispatcher,
		Tracker:     tracker,
	})
	httpSrv := buildHTTPServer(cfg, srv.Handler())

	logger.Info("starting switchboard",
		"addr", cfg.Addr,
		"public_host", cfg.PublicHost,
		"bot_number", cfg.BotNumber)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !tracker.Wait(waitCtx) {
		tracker.CancelAll()
		tracker.Wait(context.Background())
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("switchboard stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(stderr, nil))

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file, using process environment")
	}

	if err := run(ctx, logger); err != nil {
		fmt.Fprintf(stderr, "switchboard: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr))
}
