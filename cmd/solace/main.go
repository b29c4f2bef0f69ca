// Command solace runs the conversational wellbeing companion service. All
// dependencies (provider backend, completion model, memory service) are
// constructed here once and injected explicitly; there is no global client
// state anywhere below this file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/joho/godotenv"
	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/spf13/cobra"

	"github.com/mindfold/solace/config"
	"github.com/mindfold/solace/core"
	"github.com/mindfold/solace/logging"
	"github.com/mindfold/solace/memory"
	memopenai "github.com/mindfold/solace/memory/openai"
	"github.com/mindfold/solace/memory/vecdb"
	"github.com/mindfold/solace/model"
	modelanthropic "github.com/mindfold/solace/model/anthropic"
	modelollama "github.com/mindfold/solace/model/ollama"
	modelopenai "github.com/mindfold/solace/model/openai"
	"github.com/mindfold/solace/orchestrator"
	"github.com/mindfold/solace/provider/remote"
	"github.com/mindfold/solace/provider/sqlite"
	"github.com/mindfold/solace/scoring"
	"github.com/mindfold/solace/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "solace",
		Short:         "Context-augmented conversational wellbeing companion",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "solace.yaml", "path to the YAML config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	root.AddCommand(serve)
	return root
}

func runServe(configPath string) error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := buildLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, cleanup, err := buildProvider(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	mem, err := buildMemory(ctx, cfg)
	if err != nil {
		return err
	}

	mdl, err := buildModel(cfg.Completion)
	if err != nil {
		return err
	}
	logger.Info("completion model ready", "provider", mdl.Info().Provider, "model", mdl.Info().Name)

	orch := orchestrator.New(provider, mem, mdl, func(o *orchestrator.Options) {
		o.Logger = logger.WithComponent("orchestrator")
	})
	engine := scoring.NewEngine()

	srv := server.New(cfg.Addr, orch, engine, provider, mem, func(o *server.Options) {
		o.Logger = logger.WithComponent("server")
	})
	return srv.Start(ctx)
}

func buildLogger(cfg config.LoggingConfig) *logging.SolaceLogger {
	level := logging.LogLevelInfo
	switch cfg.Level {
	case "debug":
		level = logging.LogLevelDebug
	case "warn":
		level = logging.LogLevelWarn
	case "error":
		level = logging.LogLevelError
	}
	lc := logging.DefaultLoggerConfig()
	lc.Level = level
	if cfg.Format != "" {
		lc.Format = cfg.Format
	}
	return logging.NewLogger(lc)
}

func buildProvider(ctx context.Context, cfg *config.Config, logger *logging.SolaceLogger) (core.Provider, func(), error) {
	switch cfg.Provider.Type {
	case "sqlite":
		p, err := sqlite.New(cfg.Provider.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		if err := p.Seed(ctx, scoring.DefaultQuestions()); err != nil {
			p.Close()
			return nil, nil, fmt.Errorf("seeding questions: %w", err)
		}
		return p, func() { p.Close() }, nil
	case "remote":
		rc := cfg.Provider.Remote
		p := remote.New(rc.BaseURL, func(o *remote.Options) {
			o.APIKey = config.APIKey(rc.APIKeyEnv)
			o.ReseedOnMismatch = rc.ReseedOnMismatch
			o.Logger = logger.WithComponent("provider")
			if rc.TimeoutSecs > 0 {
				o.Timeout = time.Duration(rc.TimeoutSecs) * time.Second
			}
		})
		return p, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider type %q", cfg.Provider.Type)
	}
}

func buildMemory(ctx context.Context, cfg *config.Config) (core.Memory, error) {
	embedder := buildEmbedder(cfg.Memory.Embedder)

	var index memory.Index
	switch cfg.Memory.Index.Type {
	case "rest":
		x := vecdb.NewIndex(vecdb.Config{
			URL:        cfg.Memory.Index.URL,
			APIKey:     config.APIKey(cfg.Memory.Index.APIKeyEnv),
			Collection: cfg.Memory.Index.Collection,
		})
		if err := x.Init(ctx, cfg.Memory.Index.Dimension); err != nil {
			return nil, fmt.Errorf("initializing vector index: %w", err)
		}
		index = x
	default:
		index = memory.NewInMemoryIndex()
	}
	return memory.NewService(embedder, index), nil
}

func buildEmbedder(cfg config.EmbedderConfig) memory.Embedder {
	client := openai.NewClient()
	return memopenai.NewEmbedderFromClient(&client, func(o *memopenai.Options) {
		if cfg.Model != "" {
			o.Model = openai.EmbeddingModel(cfg.Model)
		}
		o.DocumentPrefix = cfg.DocumentPrefix
		o.QueryPrefix = cfg.QueryPrefix
	})
}

func buildModel(cfg config.CompletionConfig) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		var clientOpts []openaiopt.RequestOption
		if key := config.APIKey(cfg.APIKeyEnv); key != "" {
			clientOpts = append(clientOpts, openaiopt.WithAPIKey(key))
		}
		client := openai.NewClient(clientOpts...)
		return modelopenai.NewModelFromClient(&client, func(o *modelopenai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			if cfg.Temperature > 0 {
				o.Temperature = cfg.Temperature
			}
		}), nil
	case "anthropic":
		var clientOpts []anthropicopt.RequestOption
		if key := config.APIKey(cfg.APIKeyEnv); key != "" {
			clientOpts = append(clientOpts, anthropicopt.WithAPIKey(key))
		}
		client := anthropic.NewClient(clientOpts...)
		return modelanthropic.NewModelFromClient(&client, func(o *modelanthropic.Options) {
			if cfg.Model != "" {
				o.Model = anthropic.Model(cfg.Model)
			}
			if cfg.Temperature > 0 {
				o.Temperature = cfg.Temperature
			}
		}), nil
	case "ollama":
		return modelollama.NewModel(func(o *modelollama.Options) {
			if cfg.BaseURL != "" {
				o.BaseURL = cfg.BaseURL
			}
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
}
