// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store persists the module list as a JSON document.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/holomush/modgate/internal/module"
	"github.com/holomush/modgate/internal/xdg"
)

// fileRecord is the on-disk shape of one module. Per-run state is never
// written.
type fileRecord struct {
	DisplayName string   `json:"display_name"`
	ModuleName  string   `json:"module_name" jsonschema:"required,minLength=1"`
	ID          string   `json:"id"`
	Version     string   `json:"version"`
	Enabled     bool     `json:"enabled" jsonschema:"required"`
	Sources     []string `json:"sources"`
	Outputs     []string `json:"outputs"`
	Encoders    []string `json:"encoders"`
	Services    []string `json:"services"`
}

// document is the whole persisted file.
type document []fileRecord

// FileStore reads and writes the module list at a fixed path.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithLogger sets the logger used for load warnings.
func WithLogger(l *slog.Logger) FileStoreOption {
	return func(s *FileStore) {
		s.logger = l
	}
}

// NewFileStore creates a store backed by the file at path.
func NewFileStore(path string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the module list. A missing file yields an empty store.
// Every record starts with EnabledAtLaunch equal to Enabled.
func (s *FileStore) Load(ctx context.Context) (*module.Store, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return module.NewStore(), nil
		}
		return nil, oops.Code("CONFIG_READ").With("path", s.path).Wrap(err)
	}

	if err := ValidateDocument(data); err != nil {
		return nil, oops.Code("CONFIG_PARSE").With("path", s.path).Wrap(err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, oops.Code("CONFIG_PARSE").With("path", s.path).Wrap(err)
	}

	st := module.NewStore()
	for _, fr := range doc {
		if _, dup := st.Get(fr.ModuleName); dup {
			s.logger.WarnContext(ctx, "dropping duplicate module record",
				"module", fr.ModuleName,
				"path", s.path)
			continue
		}
		if _, err := st.Put(fr.toRecord()); err != nil {
			return nil, oops.Code("CONFIG_PARSE").With("path", s.path).Wrap(err)
		}
	}
	return st, nil
}

// Save writes every record's persisted fields in store order, replacing
// the file atomically. A failed write is not retried.
func (s *FileStore) Save(_ context.Context, st *module.Store) error {
	doc := make(document, 0, st.Len())
	st.Each(func(r *module.Record) {
		doc = append(doc, fromRecord(r))
	})

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return oops.Code("CONFIG_WRITE").With("path", s.path).Wrap(err)
	}
	data = append(data, '\n')

	if err := writeFileAtomic(s.path, data); err != nil {
		return oops.Code("CONFIG_WRITE").With("path", s.path).Wrap(err)
	}
	return nil
}

func (fr fileRecord) toRecord() module.Record {
	return module.Record{
		DisplayName:     fr.DisplayName,
		ModuleName:      fr.ModuleName,
		ID:              fr.ID,
		Version:         fr.Version,
		Enabled:         fr.Enabled,
		EnabledAtLaunch: fr.Enabled,
		Sources:         fr.Sources,
		Outputs:         fr.Outputs,
		Encoders:        fr.Encoders,
		Services:        fr.Services,
	}
}

func fromRecord(r *module.Record) fileRecord {
	return fileRecord{
		DisplayName: r.DisplayName,
		ModuleName:  r.ModuleName,
		ID:          r.ID,
		Version:     r.Version,
		Enabled:     r.Enabled,
		Sources:     nonNil(r.Sources),
		Outputs:     nonNil(r.Outputs),
		Encoders:    nonNil(r.Encoders),
		Services:    nonNil(r.Services),
	}
}

// nonNil keeps empty lists as [] rather than null in the written file.
func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// writeFileAtomic writes data to a temp file beside path and renames it
// into place so a crash never leaves a truncated file.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := xdg.EnsureDir(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
