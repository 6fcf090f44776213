package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pauljones0/feed-relay/internal/config"
	"github.com/pauljones0/feed-relay/internal/dialect"
	"github.com/pauljones0/feed-relay/internal/feed"
	"github.com/pauljones0/feed-relay/internal/media"
	"github.com/pauljones0/feed-relay/internal/normalizer"
	"github.com/pauljones0/feed-relay/internal/notifier"
	"github.com/pauljones0/feed-relay/internal/processor"
	"github.com/pauljones0/feed-relay/internal/renderer"
	"github.com/pauljones0/feed-relay/internal/scheduler"
	"github.com/pauljones0/feed-relay/internal/storage"
	"github.com/pauljones0/feed-relay/internal/timefmt"
	"github.com/pauljones0/feed-relay/internal/translator"
	"github.com/pauljones0/feed-relay/internal/validator"
)

const pollJob = "poll"

type Server struct {
	processor processor.Processor
	baseCtx   context.Context
	passes    sync.WaitGroup
}

func main() {
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.Info("Starting feed relay...", "feeds", len(cfg.FeedURLs), "channels", len(cfg.Channels), "transport", cfg.Transport)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(ctx, cfg.StateBackend, cfg.StateDir, cfg.ProjectID)
	if err != nil {
		slog.Error("Critical error opening state store", "backend", cfg.StateBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	d := dialect.LoadConfig(cfg.DialectConfigPath)
	acquirer := media.NewAcquirer(d, cfg.DownloadDir, media.DefaultRetryPolicy)

	tr, err := newTranslator(ctx, cfg)
	if err != nil {
		slog.Error("Critical error initializing translator", "error", err)
		os.Exit(1)
	}

	chrome, err := renderer.NewChrome(ctx)
	if err != nil {
		slog.Error("Critical error starting headless browser", "error", err)
		os.Exit(1)
	}
	defer chrome.Close()

	r, err := renderer.New(chrome, cfg.OutputDir, tr.Name())
	if err != nil {
		slog.Error("Critical error loading card templates", "error", err)
		os.Exit(1)
	}

	transport, err := newTransport(cfg)
	if err != nil {
		slog.Error("Critical error initializing transport", "error", err)
		os.Exit(1)
	}

	p := processor.New(processor.Dependencies{
		Fetcher:    feed.NewFetcher(),
		Normalizer: normalizer.New(d),
		Clock:      timefmt.Default(),
		Media:      media.NewResolver(d, acquirer, cfg.AvatarDir),
		Translator: tr,
		Renderer:   r,
		Transport:  transport,
		Store:      store,
		Validator:  validator.New(),
	}, cfg.FeedURLs, cfg.Channels)

	sched := scheduler.New(ctx)
	if err := sched.Every(pollJob, cfg.PollInterval, p.ProcessFeeds); err != nil {
		slog.Error("Critical error scheduling poll job", "error", err)
		os.Exit(1)
	}
	sched.Start()
	if next, ok := sched.NextRun(pollJob); ok && !next.IsZero() {
		slog.Info("Next scheduled poll", "at", next)
	}

	srv := &Server{processor: p, baseCtx: ctx}
	srv.track(func() { sched.RunNow(pollJob, p.ProcessFeeds) })

	mux := http.NewServeMux()
	mux.HandleFunc("/poll", srv.PollHandler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		slog.Info("Received signal, shutting down gracefully...", "signal", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
		cancel()
		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
		}
		if err := srv.Wait(shutdownCtx); err != nil {
			slog.Warn("Timed out waiting for running pass to finish", "error", err)
		}
	}()

	slog.Info("Listening on port", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Failed to listen and serve", "error", err)
		os.Exit(1)
	}
	// Deferred closes of the store and browser wait for the running pass.
	<-stopped
	slog.Info("Server stopped.")
}

func newTranslator(ctx context.Context, cfg *config.Config) (*translator.Translator, error) {
	switch cfg.Translator {
	case "deepseek":
		return translator.New(translator.NewDeepSeek(cfg.DeepSeekAPIKey, cfg.DeepSeekBaseURL, cfg.DeepSeekModel), translator.DefaultRetryPolicy), nil
	case "gemini":
		g, err := translator.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return translator.New(g, translator.DefaultRetryPolicy), nil
	default:
		slog.Info("Translation disabled")
		return nil, nil
	}
}

func newTransport(cfg *config.Config) (processor.Transport, error) {
	switch cfg.Transport {
	case "telegram":
		return notifier.NewTelegram(cfg.TelegramToken)
	default:
		return notifier.NewMirai(cfg.MiraiAPIURL, cfg.MiraiVerifyKey, cfg.MiraiQQ), nil
	}
}

// PollHandler starts a pass in the background so the response is not held
// up by feeds, rendering or uploads.
func (s *Server) PollHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.track(func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic in ProcessFeeds", "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(s.baseCtx, 30*time.Minute)
		defer cancel()
		if err := s.processor.ProcessFeeds(ctx); err != nil {
			slog.Error("Error processing feeds", "error", err)
		}
	})

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "Feed processing started.")
}

// track runs fn in its own goroutine and counts it as an in-flight pass.
func (s *Server) track(fn func()) {
	s.passes.Add(1)
	go func() {
		defer s.passes.Done()
		fn()
	}()
}

// Wait blocks until every tracked pass has returned or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.passes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
