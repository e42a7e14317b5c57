// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact persists pipeline outputs: one markdown file per stage,
// the aggregate JSON result and an optional SQLite run ledger.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jllopis/trendsurf/pkg/errors"
)

// AggregateFile is the name of the aggregate result written after a run.
const AggregateFile = "pipeline_result.json"

var stageFiles = map[string]string{
	"research":   "01_research_brief.md",
	"compliance": "02_brand_guard_review.md",
	"copy":       "03_draft_posts.md",
	"review":     "04_final_review.md",
}

// FileName returns the file a stage's artifact is written to. Unknown stages
// get a name derived from their sequence.
func FileName(stage string, seq int) string {
	if name, ok := stageFiles[stage]; ok {
		return name
	}
	return fmt.Sprintf("%02d_%s.md", seq, stage)
}

// Artifact is the text output of one stage.
type Artifact struct {
	Stage    string `json:"stage"`
	Sequence int    `json:"sequence"`
	Text     string `json:"text"`
	// Path is set by the store once the artifact is written.
	Path string `json:"path,omitempty"`
	// Degraded marks a placeholder written for a stage that did not complete.
	Degraded bool `json:"degraded,omitempty"`
}

// Store persists artifacts.
type Store interface {
	// Save writes a stage artifact and returns it with Path set.
	Save(ctx context.Context, a Artifact) (Artifact, error)
	// SaveAggregate writes the aggregate result document.
	SaveAggregate(ctx context.Context, data []byte) (string, error)
	// Location names where the artifacts end up.
	Location() string
}

// RunStore hands out the Store one run writes to. Runs that overlap must get
// stores that never share a file.
type RunStore interface {
	Store
	ForRun(runID string) Store
}

// FileStore writes artifacts as files under a directory.
type FileStore struct {
	dir    string
	perRun bool
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithRunDirectories writes each run under <dir>/<run_id>/. Without it every
// run writes the same file names in dir, so only one run may write at a time.
func WithRunDirectories() FileStoreOption {
	return func(f *FileStore) { f.perRun = true }
}

// NewFileStore returns a store rooted at dir. The directory is created on the
// first write.
func NewFileStore(dir string, opts ...FileStoreOption) *FileStore {
	f := &FileStore{dir: dir}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Dir returns the output directory.
func (f *FileStore) Dir() string {
	return f.dir
}

// Location implements Store.
func (f *FileStore) Location() string {
	return f.dir
}

// ForRun implements RunStore. With run directories the returned store writes
// under a subdirectory named after runID; otherwise it is f itself.
func (f *FileStore) ForRun(runID string) Store {
	name := runDirName(runID)
	if !f.perRun || name == "" {
		return f
	}
	return &FileStore{dir: filepath.Join(f.dir, name)}
}

// runDirName keeps a run ID to a single path element.
func runDirName(runID string) string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == filepath.Separator {
			return '_'
		}
		return r
	}, strings.TrimSpace(runID))
	if name == "." || name == ".." {
		return ""
	}
	return name
}

// Save implements Store.
func (f *FileStore) Save(_ context.Context, a Artifact) (Artifact, error) {
	path, err := f.write(FileName(a.Stage, a.Sequence), []byte(a.Text))
	if err != nil {
		return a, err
	}
	a.Path = path
	return a, nil
}

// SaveAggregate implements Store.
func (f *FileStore) SaveAggregate(_ context.Context, data []byte) (string, error) {
	return f.write(AggregateFile, data)
}

// write replaces name atomically so a crash never leaves a truncated file.
func (f *FileStore) write(name string, data []byte) (string, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", errors.New(errors.CodeStorage, "create output directory", err).WithContext("dir", f.dir)
	}
	path := filepath.Join(f.dir, name)
	tmp, err := os.CreateTemp(f.dir, "."+name+".*")
	if err != nil {
		return "", errors.New(errors.CodeStorage, "create "+name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", errors.New(errors.CodeStorage, "write "+name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.New(errors.CodeStorage, "write "+name, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", errors.New(errors.CodeStorage, "write "+name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", errors.New(errors.CodeStorage, "write "+name, err).WithContext("path", path)
	}
	return path, nil
}

// MemoryStore keeps artifacts in memory.
type MemoryStore struct {
	mu        sync.Mutex
	artifacts []Artifact
	aggregate []byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, a Artifact) (Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.Path = "mem://" + FileName(a.Stage, a.Sequence)
	m.artifacts = append(m.artifacts, a)
	return a, nil
}

// SaveAggregate implements Store.
func (m *MemoryStore) SaveAggregate(_ context.Context, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggregate = append([]byte(nil), data...)
	return "mem://" + AggregateFile, nil
}

// Location implements Store.
func (m *MemoryStore) Location() string {
	return "mem://"
}

// Artifacts returns the saved artifacts in write order.
func (m *MemoryStore) Artifacts() []Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Artifact(nil), m.artifacts...)
}

// Aggregate returns the last aggregate document written.
func (m *MemoryStore) Aggregate() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.aggregate...)
}
