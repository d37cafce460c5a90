package campaign

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// KnownFailure represents a previously minimized reproducer.
type KnownFailure struct {
	Fingerprint string `json:"fingerprint"`
	Job         string `json:"job"`
	Target      string `json:"target"`
	Size        int    `json:"size"`
	FirstSeen   string `json:"first_seen"`
	Count       int    `json:"count"`
}

// KnownFailures tracks reproducer fingerprints across runs.
type KnownFailures struct {
	mu       sync.RWMutex
	failures map[string]*KnownFailure
	path     string
}

// NewKnownFailures creates a tracker. If path is non-empty, failures are
// loaded from and persisted to that JSON file. A missing file is not an error.
func NewKnownFailures(path string) (*KnownFailures, error) {
	kf := &KnownFailures{
		failures: make(map[string]*KnownFailure),
		path:     path,
	}
	if path == "" {
		return kf, nil
	}
	if err := kf.load(); err != nil {
		return nil, err
	}
	return kf, nil
}

func (kf *KnownFailures) load() error {
	data, err := os.ReadFile(kf.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read known failures: %w", err)
	}

	var failures []*KnownFailure
	if err := json.Unmarshal(data, &failures); err != nil {
		return fmt.Errorf("parse known failures %s: %w", kf.path, err)
	}
	for _, f := range failures {
		kf.failures[f.Fingerprint] = f
	}
	return nil
}

// save writes known failures to disk. The caller holds kf.mu.
func (kf *KnownFailures) save() error {
	if kf.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(kf.sorted(), "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(kf.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(kf.path, data, 0o644)
}

// IsDuplicate returns true if the fingerprint has been seen before.
func (kf *KnownFailures) IsDuplicate(fingerprint string) bool {
	kf.mu.RLock()
	defer kf.mu.RUnlock()
	_, exists := kf.failures[fingerprint]
	return exists
}

// Record adds or updates the fingerprint of a run's reproducer.
// It returns true if the fingerprint was new.
func (kf *KnownFailures) Record(fingerprint string, result *RunResult) (bool, error) {
	kf.mu.Lock()
	defer kf.mu.Unlock()

	if existing, ok := kf.failures[fingerprint]; ok {
		existing.Count++
		return false, kf.save()
	}

	kf.failures[fingerprint] = &KnownFailure{
		Fingerprint: fingerprint,
		Job:         result.Job.Name,
		Target:      result.Job.Target,
		Size:        len(result.Minimized),
		FirstSeen:   result.EndTime.UTC().Format(time.RFC3339),
		Count:       1,
	}
	return true, kf.save()
}

// Count returns the number of known failure fingerprints.
func (kf *KnownFailures) Count() int {
	kf.mu.RLock()
	defer kf.mu.RUnlock()
	return len(kf.failures)
}

// All returns all known failures ordered by fingerprint.
func (kf *KnownFailures) All() []*KnownFailure {
	kf.mu.RLock()
	defer kf.mu.RUnlock()
	return kf.sorted()
}

func (kf *KnownFailures) sorted() []*KnownFailure {
	result := make([]*KnownFailure, 0, len(kf.failures))
	for _, f := range kf.failures {
		result = append(result, f)
	}
	slices.SortFunc(result, func(a, b *KnownFailure) int {
		return strings.Compare(a.Fingerprint, b.Fingerprint)
	})
	return result
}
