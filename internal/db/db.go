package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"movie-search/internal/config"
	"movie-search/internal/models"
)

// MovieChunk mirrors one stored chunk in a pgvector table
type MovieChunk struct {
	bun.BaseModel `bun:"table:movie_chunks,alias:mc"`
	ID            string            `bun:"id,pk"`
	Source        string            `bun:"source,notnull"`
	Title         string            `bun:"title"`
	Content       string            `bun:"content,notnull"`
	Metadata      map[string]string `bun:"metadata,type:jsonb"`
	Embedding     []float32         `bun:"embedding,notnull,type:vector"`
	IndexedAt     time.Time         `bun:"indexed_at,nullzero,notnull,default:current_timestamp"`
}

// ScoredChunk is a mirrored chunk with its cosine distance to a query
type ScoredChunk struct {
	MovieChunk `bun:",extend"`
	Distance   float64 `bun:"distance"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with bun's pgdriver or lib/pq. No connection is made until first use.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: database dsn is required", models.ErrConfiguration)
	}
	switch cfg.Driver {
	case "", "pgdriver":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
	case "pq":
		return sql.Open("postgres", cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: unknown database driver %q", models.ErrConfiguration, cfg.Driver)
	}
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	_, err := db.NewCreateTable().Model((*MovieChunk)(nil)).IfNotExists().Exec(ctx)
	return err
}

// drop table movie_chunks
func DropChunks(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*MovieChunk)(nil)).IfExists().Exec(ctx)
	return err
}

func NewChunk(c models.EmbeddedChunk) MovieChunk {
	return MovieChunk{
		ID:        c.ID,
		Source:    c.Metadata[models.MetaSourceID],
		Title:     c.Metadata["title"],
		Content:   c.Content,
		Metadata:  c.Metadata,
		Embedding: c.Embedding,
	}
}

func upsertQuery(db *bun.DB, rows *[]MovieChunk) *bun.InsertQuery {
	return db.NewInsert().
		Model(rows).
		On("CONFLICT (id) DO UPDATE").
		Set("source = EXCLUDED.source").
		Set("title = EXCLUDED.title").
		Set("content = EXCLUDED.content").
		Set("metadata = EXCLUDED.metadata").
		Set("embedding = EXCLUDED.embedding").
		Set("indexed_at = current_timestamp")
}

// StoreChunks upserts chunks by id
func StoreChunks(ctx context.Context, db *bun.DB, chunks []models.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([]MovieChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = NewChunk(c)
	}
	_, err := upsertQuery(db, &rows).Exec(ctx)
	return err
}

func searchQuery(db *bun.DB, out *[]ScoredChunk, queryEmbedding []float32, limit int) *bun.SelectQuery {
	return db.NewSelect().
		Model(out).
		Column("id", "source", "title", "content", "metadata").
		ColumnExpr("embedding <=> ?::vector AS distance", VectorLiteral(queryEmbedding)).
		OrderExpr("distance ASC").
		Limit(limit)
}

// SearchChunks returns the limit chunks closest to queryEmbedding by cosine distance
func SearchChunks(ctx context.Context, db *bun.DB, queryEmbedding []float32, limit int) ([]ScoredChunk, error) {
	var chunks []ScoredChunk
	err := searchQuery(db, &chunks, queryEmbedding, limit).Scan(ctx)
	return chunks, err
}

// VectorLiteral formats a vector in pgvector's text form
func VectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// Mirror writes indexed chunks into Postgres alongside the in-memory store
type Mirror struct {
	db *bun.DB
}

func NewMirror(db *bun.DB) *Mirror {
	return &Mirror{db: db}
}

func (m *Mirror) DB() *bun.DB {
	return m.db
}

func (m *Mirror) WriteChunks(ctx context.Context, chunks []models.EmbeddedChunk) error {
	return StoreChunks(ctx, m.db, chunks)
}

func (m *Mirror) Close() error {
	return m.db.Close()
}
