package indexer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"movie-search/internal/chromemdb"
	"movie-search/internal/config"
	"movie-search/internal/db"
	"movie-search/internal/embedding"
	"movie-search/internal/loader"
)

// EmbedMovieDB indexes every movie file in dir into a fresh store and saves it to saveFile
// when that is set. With the database mirror enabled, chunks are also upserted into Postgres.
func EmbedMovieDB(ctx context.Context, cfg *config.Config, dir, saveFile string) (*chromemdb.Store, Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, Stats{}, err
	}

	var extra []Writer
	if cfg.Database.Enabled {
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, Stats{}, err
		}
		mirror := db.NewMirror(db.NewDB(sqldb, cfg.Database.Debug))
		defer mirror.Close()
		if cfg.Database.Recreate {
			if err := db.DropChunks(ctx, mirror.DB()); err != nil {
				return nil, Stats{}, fmt.Errorf("failed to drop mirror table: %w", err)
			}
		}
		if err := db.InitDB(ctx, mirror.DB()); err != nil {
			return nil, Stats{}, fmt.Errorf("failed to initialize database: %w", err)
		}
		extra = append(extra, mirror)
	}

	embedder, err := embedding.NewEmbedder(&cfg.Embedding)
	if err != nil {
		return nil, Stats{}, err
	}
	return IndexDirectory(ctx, cfg, dir, saveFile, embedder, extra...)
}

// IndexDirectory loads dir, then indexes the records with the given embedder. Loading
// completes before anything is embedded, so a malformed file aborts the run early.
func IndexDirectory(ctx context.Context, cfg *config.Config, dir, saveFile string, embedder embeddings.Embedder, extra ...Writer) (*chromemdb.Store, Stats, error) {
	log.Info().Str("dir", dir).Msg("Creating docs...")
	records, err := loader.LoadDirectory(dir)
	if err != nil {
		return nil, Stats{}, err
	}

	store, err := chromemdb.NewStore(cfg.Store.Collection)
	if err != nil {
		return nil, Stats{}, err
	}

	stats, err := CreateDocumentStore(ctx, records, store, embedder, cfg, saveFile, extra...)
	if err != nil {
		return store, stats, err
	}
	return store, stats, nil
}
