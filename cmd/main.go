package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/embeddings"

	"movie-search/internal/chromemdb"
	"movie-search/internal/config"
	"movie-search/internal/db"
	"movie-search/internal/embedding"
	"movie-search/internal/helper"
	"movie-search/internal/indexer"
	"movie-search/internal/llmservice"
	"movie-search/internal/models"
	"movie-search/internal/rag"
	"movie-search/internal/watcher"
)

const (
	configFilePath = "./configs/config.yaml"
)

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

func main() {
	setupLogger(config.DefaultLogLevel)

	var (
		configPath string
		cfg        *config.Config
	)

	rootCmd := &cobra.Command{
		Use:           "moviedb",
		Short:         "Build and query a searchable movie database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			setupLogger(cfg.Log.Level)
			log.Debug().Str("path", configPath).Msg("Loaded config")
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", configFilePath, "Config file path")

	rootCmd.AddCommand(
		indexCmd(&cfg),
		searchCmd(&cfg),
		askCmd(&cfg),
		infoCmd(&cfg),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("moviedb failed")
	}
}

func indexCmd(cfg **config.Config) *cobra.Command {
	var (
		dir       string
		out       string
		device    string
		model     string
		batchSize int
		watch     bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed a directory of movie metadata files into a store",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			if cmd.Flags().Changed("device") {
				c.Embedding.Device = device
			}
			if cmd.Flags().Changed("model") {
				c.Embedding.Model = model
			}
			if cmd.Flags().Changed("batch-size") {
				c.Embedding.BatchSize = batchSize
			}
			if out == "" {
				out = c.Store.Path
			}

			run := func(ctx context.Context) error {
				store, stats, err := indexer.EmbedMovieDB(ctx, c, dir, out)
				if err != nil {
					return err
				}
				log.Info().
					Int("records", stats.Records).
					Int("chunks", store.Count()).
					Str("out", out).
					Msg("Movie database ready")
				if out == "" {
					log.Warn().Msg("No output path given, store was not persisted")
				}
				return nil
			}

			if err := run(cmd.Context()); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return watcher.Watch(cmd.Context(), dir, watcher.DefaultDebounce, run)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory of movie metadata files")
	cmd.Flags().StringVar(&out, "out", "", "Directory to save the store to (defaults to store.path)")
	cmd.Flags().StringVar(&device, "device", config.DefaultDevice, "Compute device: cpu, cuda, cuda:N, gpu or mps")
	cmd.Flags().StringVar(&model, "model", config.DefaultEmbeddingModel, "Embedding model")
	cmd.Flags().IntVar(&batchSize, "batch-size", config.DefaultBatchSize, "Embedding batch size")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-index whenever a movie file changes")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

// openStore loads a saved store and an embedder for the model it was built with
func openStore(c *config.Config, path string) (*chromemdb.Store, embeddings.Embedder, error) {
	if path == "" {
		path = c.Store.Path
	}
	store, manifest, err := chromemdb.Load(path, c.Store.EncryptionKey)
	if err != nil {
		return nil, nil, err
	}

	embedCfg := c.Embedding
	if manifest.Model != "" && manifest.Model != embedCfg.Model {
		log.Warn().Str("configured", embedCfg.Model).Str("store", manifest.Model).Msg("Using the store's embedding model")
		embedCfg.Model = manifest.Model
	}
	embedder, err := embedding.NewEmbedder(&embedCfg)
	if err != nil {
		return nil, nil, err
	}
	return store, embedder, nil
}

func searchCmd(cfg **config.Config) *cobra.Command {
	var (
		dbPath string
		k      int
		where  map[string]string
		mirror bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Find the movies closest to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			query := strings.Join(args, " ")
			if mirror {
				return searchMirror(cmd.Context(), c, query, k)
			}
			store, embedder, err := openStore(c, dbPath)
			if err != nil {
				return err
			}
			results, err := rag.NewRAG(store, embedder, nil, c.RAG.TopK).Search(cmd.Context(), query, k, where)
			if err != nil {
				return err
			}
			for i, res := range results {
				fmt.Printf("%d. [%.3f] %s (%s)\n", i+1, res.Similarity, res.Metadata["title"], res.Metadata[models.MetaSourceID])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Saved store directory (defaults to store.path)")
	cmd.Flags().IntVarP(&k, "top", "k", 0, "Number of results (defaults to rag.top_k)")
	cmd.Flags().StringToStringVar(&where, "where", nil, "Metadata filter, e.g. --where year=1995")
	cmd.Flags().BoolVar(&mirror, "mirror", false, "Search the Postgres mirror instead of the saved store")
	return cmd
}

// searchMirror runs a nearest-neighbour query against the pgvector mirror
func searchMirror(ctx context.Context, c *config.Config, query string, k int) error {
	if k < 1 {
		k = c.RAG.TopK
	}
	sqldb, err := db.ConnectDB(&c.Database)
	if err != nil {
		return err
	}
	bunDB := db.NewDB(sqldb, c.Database.Debug)
	defer bunDB.Close()

	embedder, err := embedding.NewEmbedder(&c.Embedding)
	if err != nil {
		return err
	}
	vec, err := embedding.EmbedQuery(ctx, embedder, query)
	if err != nil {
		return err
	}
	chunks, err := db.SearchChunks(ctx, bunDB, vec, k)
	if err != nil {
		return fmt.Errorf("failed to search mirror: %w", err)
	}
	for i, ch := range chunks {
		fmt.Printf("%d. [%.3f] %s (%s)\n", i+1, 1-ch.Distance, ch.Title, ch.Source)
	}
	return nil
}

func askCmd(cfg **config.Config) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question about the indexed movies with an LLM",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			store, embedder, err := openStore(c, dbPath)
			if err != nil {
				return err
			}
			llm, err := llmservice.NewLLM(&c.LLM)
			if err != nil {
				return err
			}
			response, err := rag.NewRAG(store, embedder, llm, c.RAG.TopK).Ask(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
			fmt.Printf("%s\n\n", response.Query)

			log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
			fmt.Printf("%s\n\n", response.Source)

			log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
			fmt.Printf("%s\n\n", response.Content)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Saved store directory (defaults to store.path)")
	return cmd
}

func infoCmd(cfg **config.Config) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the manifest of a saved store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = (*cfg).Store.Path
			}
			m, err := chromemdb.ReadManifest(dbPath)
			if err != nil {
				return err
			}
			m.IDs = nil
			helper.PrettyPrint(m)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Saved store directory (defaults to store.path)")
	return cmd
}
