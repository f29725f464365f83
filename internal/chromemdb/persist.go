package chromemdb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"movie-search/internal/helper"
	"movie-search/internal/models"
)

const (
	ManifestFile    = "manifest.yaml"
	storeFileBase   = "store.gob"
	manifestVersion = 1
)

// Manifest describes a saved store. The chunk vectors live in the chromem-go export next to it.
type Manifest struct {
	Version    int       `yaml:"version"`
	Collection string    `yaml:"collection"`
	StoreFile  string    `yaml:"store_file"`
	Model      string    `yaml:"model,omitempty"`
	Dimension  int       `yaml:"dimension"`
	Count      int       `yaml:"count"`
	Encrypted  bool      `yaml:"encrypted"`
	SavedAt    time.Time `yaml:"saved_at"`
	IDs        []string  `yaml:"ids"`
}

type SaveOptions struct {
	Compress      bool
	EncryptionKey string
	// Model is recorded in the manifest so queries can be embedded with the same model
	Model string
}

func storeFileName(opts SaveOptions) string {
	name := storeFileBase
	if opts.Compress {
		name += ".gz"
	}
	if opts.EncryptionKey != "" {
		name += ".enc"
	}
	return name
}

// Save writes the store into directory path, replacing any previous save there
func Save(s *Store, path string, opts SaveOptions) error {
	if path == "" {
		return fmt.Errorf("%w: save path is required", models.ErrIO)
	}
	if opts.EncryptionKey != "" && len(opts.EncryptionKey) != 32 {
		return fmt.Errorf("%w: encryption key must be 32 bytes", models.ErrConfiguration)
	}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return fmt.Errorf("%w: %s exists and is not a directory", models.ErrIO, path)
	}
	if err := helper.CreateFolder(path); err != nil {
		return fmt.Errorf("%w: %v", models.ErrIO, err)
	}

	// drop exports written with other compression or encryption settings
	stale, err := filepath.Glob(filepath.Join(path, storeFileBase+"*"))
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrIO, err)
	}
	for _, f := range stale {
		if err := os.Remove(f); err != nil {
			return fmt.Errorf("%w: removing %s: %v", models.ErrIO, f, err)
		}
	}

	fileName := storeFileName(opts)
	filePath := filepath.Join(path, fileName)
	log.Debug().Str("collection", s.Name()).Str("file", filePath).Bool("compress", opts.Compress).Msg("Exporting store")
	if err := s.db.ExportToFile(filePath, opts.Compress, opts.EncryptionKey, s.Name()); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}

	m := Manifest{
		Version:    manifestVersion,
		Collection: s.Name(),
		StoreFile:  fileName,
		Model:      opts.Model,
		Dimension:  s.Dimension(),
		Count:      s.Count(),
		Encrypted:  opts.EncryptionKey != "",
		SavedAt:    time.Now().UTC(),
		IDs:        s.IDs(),
	}
	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	tmp := filepath.Join(path, ManifestFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing manifest: %v", models.ErrIO, err)
	}
	if err := os.Rename(tmp, filepath.Join(path, ManifestFile)); err != nil {
		return fmt.Errorf("%w: writing manifest: %v", models.ErrIO, err)
	}

	log.Info().Str("path", path).Int("chunks", m.Count).Msg("Saved movie store")
	return nil
}

// ReadManifest reads the manifest of a saved store
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(path, ManifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: no saved store at %s", models.ErrIO, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading manifest: %v", models.ErrIO, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest %s: %v", models.ErrFileFormat, path, err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("%w: unsupported manifest version %d", models.ErrFileFormat, m.Version)
	}
	if m.Collection == "" || m.StoreFile == "" {
		return nil, fmt.Errorf("%w: manifest %s is incomplete", models.ErrFileFormat, path)
	}
	return &m, nil
}

// Load restores a store saved with Save
func Load(path, encryptionKey string) (*Store, *Manifest, error) {
	m, err := ReadManifest(path)
	if err != nil {
		return nil, nil, err
	}
	if m.Encrypted && encryptionKey == "" {
		return nil, nil, fmt.Errorf("%w: store at %s is encrypted, key required", models.ErrConfiguration, path)
	}
	if !m.Encrypted {
		encryptionKey = ""
	}

	filePath := filepath.Join(path, m.StoreFile)
	if _, err := os.Stat(filePath); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", models.ErrIO, err)
	}

	db := chromem.NewDB()
	if err := db.ImportFromFile(filePath, encryptionKey, m.Collection); err != nil {
		return nil, nil, fmt.Errorf("failed to import database: %w", err)
	}
	c := db.GetCollection(m.Collection, noTextEmbedding)
	if c == nil {
		return nil, nil, fmt.Errorf("%w: collection %q missing from %s", models.ErrFileFormat, m.Collection, filePath)
	}
	if c.Count() != len(m.IDs) {
		return nil, nil, fmt.Errorf("%w: manifest lists %d chunks, store holds %d", models.ErrFileFormat, len(m.IDs), c.Count())
	}

	s := &Store{
		db:         db,
		collection: c,
		ids:        m.IDs,
		seen:       make(map[string]struct{}, len(m.IDs)),
		dim:        m.Dimension,
	}
	for _, id := range m.IDs {
		s.seen[id] = struct{}{}
	}

	log.Info().Str("path", path).Int("chunks", s.Count()).Msg("Loaded movie store")
	return s, m, nil
}
