// Package docstore owns the canonical document string: patch application,
// size enforcement, and crash-safe persistence to a plain-text file.
package docstore

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/inkdrift/scriptorium/pkg/logger"
)

const defaultContent = "<p></p>"

const oversizeBanner = "<p>[document too large to load — original file exceeded the configured size limit and was reset]</p>"

// ApplyOutcome is the result of one applyPatch call.
type ApplyOutcome int

const (
	// NoChange means the patch applied cleanly but produced identical content.
	NoChange ApplyOutcome = iota
	// Applied means the patch applied and content changed.
	Applied
	// Failed means a hunk could not be applied; state is unchanged.
	Failed
	// Rejected means the result would exceed the size cap; state is unchanged.
	Rejected
)

// Store owns the document content and its persistence.
type Store struct {
	mu      sync.RWMutex
	content string
	dirty   atomic.Bool
	saving  atomic.Bool

	path     string
	maxBytes int64

	dmp *diffmatchpatch.DiffMatchPatch

	debounceMu sync.Mutex
	debounce   *time.Timer

	log logger.Component
}

// New creates a Store for the given file path and size cap (in MB).
func New(path string, maxDocMB int) *Store {
	return &Store{
		path:     path,
		maxBytes: int64(maxDocMB) * 1024 * 1024,
		dmp:      diffmatchpatch.New(),
		log:      logger.With("component", "docstore"),
	}
}

// Load reads the persisted file if present. If absent, it initializes the
// store with default content and writes it back synchronously. If present
// but oversize, it replaces in-memory content with an error banner and
// attempts to overwrite the oversize file with that banner.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.content = defaultContent
		s.mu.Unlock()
		return s.SaveSync()
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}

	if int64(len(data)) > s.maxBytes {
		s.log.Field("path", s.path).Error("document exceeds %d bytes, replacing with banner", s.maxBytes)
		s.mu.Lock()
		s.content = oversizeBanner
		s.mu.Unlock()
		return s.SaveSync()
	}

	s.mu.Lock()
	s.content = string(data)
	s.mu.Unlock()
	return nil
}

// Snapshot returns the current content.
func (s *Store) Snapshot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.content
}

// ByteSize returns the current content's UTF-8 byte length.
func (s *Store) ByteSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.content)
}

// ApplyPatch applies a textual diff/patch blob to the current content.
func (s *Store) ApplyPatch(patch string) (ApplyOutcome, int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	patches, err := s.dmp.PatchFromText(patch)
	if err != nil {
		return Failed, 0, "patch apply failed"
	}

	candidate, applyResults := s.dmp.PatchApply(patches, s.content)
	for _, ok := range applyResults {
		if !ok {
			return Failed, 0, "patch apply failed"
		}
	}

	if int64(len(candidate)) > s.maxBytes {
		return Rejected, 0, "document size limit exceeded"
	}

	if candidate == s.content {
		return NoChange, len(s.content), ""
	}

	s.content = candidate
	s.dirty.Store(true)
	return Applied, len(candidate), ""
}

// SaveSync performs a blocking, re-entrant-safe write to the file.
func (s *Store) SaveSync() error {
	if !s.saving.CompareAndSwap(false, true) {
		return nil
	}
	defer s.saving.Store(false)
	return s.writeSnapshot(s.Snapshot())
}

// SaveAsync schedules a debounced save (coalescing window ~500ms). Multiple
// calls within the window collapse into a single write of the content at the
// time the timer fires.
func (s *Store) SaveAsync() {
	const debounceWindow = 500 * time.Millisecond

	s.debounceMu.Lock()
	defer s.debounceMu.Unlock()

	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(debounceWindow, func() {
		if err := s.SaveSync(); err != nil {
			s.log.Error("async save failed: %v", err)
		}
	})
}

// CancelPendingSave stops any pending debounced save without running it.
func (s *Store) CancelPendingSave() {
	s.debounceMu.Lock()
	defer s.debounceMu.Unlock()
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
}

// Dirty reports whether content has changed since the last successful save.
func (s *Store) Dirty() bool {
	return s.dirty.Load()
}

func (s *Store) writeSnapshot(content string) error {
	if int64(len(content)) > s.maxBytes {
		return fmt.Errorf("refusing to save: content exceeds %d bytes", s.maxBytes)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	s.dirty.Store(false)
	return nil
}
