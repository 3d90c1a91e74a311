package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facturaIA/tax-extraction-service/api"
	"github.com/facturaIA/tax-extraction-service/internal/ai"
	"github.com/facturaIA/tax-extraction-service/internal/auth"
	"github.com/facturaIA/tax-extraction-service/internal/config"
	"github.com/facturaIA/tax-extraction-service/internal/db"
	"github.com/facturaIA/tax-extraction-service/internal/docparse"
	"github.com/facturaIA/tax-extraction-service/internal/logging"
	"github.com/facturaIA/tax-extraction-service/internal/report"
	"github.com/facturaIA/tax-extraction-service/internal/services"
	"github.com/facturaIA/tax-extraction-service/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	authn, err := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to initialize auth: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Providers are probed once; the live set is fixed for the process lifetime.
	registry := ai.NewRegistry(cfg.AI.DefaultProvider, log)
	for _, p := range buildProviders(cfg.AI) {
		registry.Register(p)
	}
	registry.InitializeAll(ctx)
	defer registry.Close()
	if !registry.IsEnabled() {
		log.Warn("server.no_live_providers")
	}

	extractor := ai.NewExtractor(registry, services.NewTaxValidator(), log, ai.ExtractorOptions{
		InvokeTimeout:    cfg.AI.InvokeTimeout,
		CacheTTL:         cfg.AI.CacheTTL,
		MaxDocumentChars: cfg.AI.MaxDocumentChars,
	})

	deps := api.Deps{
		Extractor: extractor,
		Providers: registry,
		Parser:    docparse.Parser{},
		Reports:   report.NewGenerator(extractor, log),
	}

	if cfg.Database.URL == "" {
		log.Info("server.database.disabled")
	} else if store, err := db.Open(ctx, cfg.Database, log); err != nil {
		log.Warn("server.database.unavailable", logging.Err(err))
	} else {
		defer store.Close()
		if err := ensureSchema(ctx, store); err != nil {
			return err
		}
		deps.Documents = store
	}

	if cfg.Storage.Endpoint == "" {
		log.Info("server.storage.disabled")
	} else if objects, err := storage.New(ctx, cfg.Storage); err != nil {
		log.Warn("server.storage.unavailable", logging.Err(err))
	} else {
		deps.Objects = objects
	}

	handler := api.NewHandler(deps, log)
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           authn.Middleware("/health")(handler.SetupRoutes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server.listening",
			logging.String("addr", srv.Addr),
			logging.String("version", api.Version),
			logging.Any("providers", registry.OrderedCandidates()),
			logging.Bool("database", deps.Documents != nil),
			logging.Bool("storage", deps.Objects != nil),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("server.shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

// buildProviders constructs adapters for the enabled providers, local first.
func buildProviders(cfg config.AIConfig) []ai.Provider {
	var out []ai.Provider
	if cfg.ProviderEnabled(ai.ProviderOllama) {
		out = append(out, ai.NewOllamaProvider(ai.OllamaOptions{
			BaseURL:      cfg.Ollama.BaseURL,
			Model:        cfg.Ollama.Model,
			ProbeTimeout: cfg.Ollama.ProbeTimeout,
		}))
	}
	if cfg.ProviderEnabled(ai.ProviderOpenAI) {
		out = append(out, ai.NewOpenAIProvider(ai.OpenAIOptions{
			APIKey:       cfg.OpenAI.APIKey,
			BaseURL:      cfg.OpenAI.BaseURL,
			Model:        cfg.OpenAI.Model,
			ProbeTimeout: cfg.ProbeTimeout,
		}))
	}
	if cfg.ProviderEnabled(ai.ProviderGemini) {
		out = append(out, ai.NewGeminiProvider(ai.GeminiOptions{
			APIKey:       cfg.Gemini.APIKey,
			Model:        cfg.Gemini.Model,
			ProbeTimeout: cfg.ProbeTimeout,
		}))
	}
	return out
}

type schemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

func ensureSchema(ctx context.Context, s schemaEnsurer) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
