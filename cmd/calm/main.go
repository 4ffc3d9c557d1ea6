// Package main implements the calm CLI: configuration bootstrap, operation
// dispatcher wiring, and the handful of maintenance subcommands a human
// operator needs (export-config, list-operations). The dispatcher itself
// is exercised by whatever transport embeds calm; this binary is not a
// network-facing server.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"calm/internal/clusterer"
	"calm/internal/config"
	"calm/internal/contextassembler"
	"calm/internal/embedding"
	"calm/internal/gatepass"
	"calm/internal/ghap"
	"calm/internal/logging"
	"calm/internal/memory"
	"calm/internal/metadata"
	"calm/internal/persister"
	"calm/internal/searcher"
	"calm/internal/tools"
	"calm/internal/vectorstore"
)

var (
	configPath string
	verbose    bool
	logger     *zap.Logger
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "calm",
	Short: "calm - cross-session agent learning memory",
	Long: `calm persists what an agent learns across sessions: observation
lifecycles (GHAP), multi-axis experience embeddings, clustered values, and
commit-anchored workflow gates, all reachable through one typed operation
dispatcher.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded

		if err := cfg.WriteLoggingConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write logging config: %v\n", err)
		}
		if err := logging.Initialize(cfg.Paths.StorageRoot); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the storage root, default config, and metadata schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(cfg.Paths.StorageRoot, 0o755); err != nil {
			return fmt.Errorf("failed to create storage root: %w", err)
		}
		if err := os.MkdirAll(cfg.Paths.JournalDir, 0o755); err != nil {
			return fmt.Errorf("failed to create journal dir: %w", err)
		}
		if err := cfg.Save(configPath); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		db, err := metadata.Open(filepath.Join(cfg.Paths.StorageRoot, "calm.db"))
		if err != nil {
			return fmt.Errorf("failed to open metadata store: %w", err)
		}
		defer db.Close()

		logging.Config("initialized calm storage root at %s", cfg.Paths.StorageRoot)
		fmt.Printf("calm initialized at %s\n", cfg.Paths.StorageRoot)
		return nil
	},
}

var exportConfigCmd = &cobra.Command{
	Use:   "export-config [path]",
	Short: "Export the active configuration as sourceable shell variables",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(cfg.Paths.StorageRoot, config.ExportFilename)
		if len(args) > 0 {
			path = args[0]
		}
		if err := cfg.ExportShell(path); err != nil {
			return fmt.Errorf("failed to export config: %w", err)
		}
		fmt.Printf("exported configuration to %s\n", path)
		return nil
	},
}

var listOperationsCmd = &cobra.Command{
	Use:   "list-operations",
	Short: "Build the full dispatcher and print every registered operation",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, closeFn, err := bootstrapDispatcher(context.Background())
		if err != nil {
			return err
		}
		defer closeFn()

		for _, name := range reg.Names() {
			op := reg.Get(name)
			fmt.Printf("%-28s %s\n", op.Name, op.Description)
		}
		return nil
	},
}

// bootstrapDispatcher builds every calm component against the active
// configuration and registers their operations into a fresh dispatcher.
// Embedding model loading happens here, after cobra's own process setup
// is complete, never earlier.
func bootstrapDispatcher(ctx context.Context) (*tools.Registry, func(), error) {
	db, err := metadata.Open(filepath.Join(cfg.Paths.StorageRoot, "calm.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	store, err := vectorstore.NewQdrantStore(cfg.Network.VectorStoreURL)
	var vstore vectorstore.Store = store
	if err != nil {
		logging.Get(logging.CategoryVectorStore).Warn("qdrant unavailable (%v), falling back to in-memory store", err)
		vstore = vectorstore.NewMemoryStore()
	}

	embeddingCfg := embedding.Config{
		FastProvider:    cfg.Embedding.FastProvider,
		OllamaEndpoint:  cfg.Embedding.OllamaEndpoint,
		OllamaModel:     cfg.Embedding.OllamaModel,
		QualityProvider: cfg.Embedding.QualityProvider,
		GenAIAPIKey:     cfg.Embedding.GenAIAPIKey,
		GenAIModel:      cfg.Embedding.GenAIModel,
		TaskType:        cfg.Embedding.TaskType,
	}
	registry, err := embedding.NewRegistry(embeddingCfg)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to build embedding registry: %w", err)
	}

	machine := ghap.New(db)
	verifier := gatepass.New(db)
	p := persister.New(vstore, registry)
	s := searcher.New(vstore, registry)
	c := clusterer.New(cfg.Clustering, registry)
	assembler := contextassembler.New(s)
	mem := memory.New(vstore, registry)

	if err := p.EnsureCollections(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ensure ghap collections: %w", err)
	}
	if err := mem.EnsureCollection(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ensure memories collection: %w", err)
	}

	reg := tools.NewRegistry()
	machine.RegisterOperations(reg)
	verifier.RegisterOperations(reg)
	p.RegisterOperations(reg)
	s.RegisterOperations(reg)
	assembler.RegisterOperations(reg)
	mem.RegisterOperations(reg)
	c.RegisterOperations(reg, vstore, func(ctx context.Context, axis string) ([]clusterer.Point, error) {
		return nil, fmt.Errorf("clusterer point loading is wired by the embedding transport, not the CLI")
	})

	return reg, func() { db.Close() }, nil
}

func init() {
	home, _ := os.UserHomeDir()
	defaultConfigPath := filepath.Join(home, ".calm", "config.yaml")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to calm's YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(initCmd, exportConfigCmd, listOperationsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
