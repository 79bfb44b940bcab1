package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FeedStore holds the versions document written by the last rebuild.
type FeedStore interface {
	Read() ([]byte, error)
	Write(doc []byte) error
}

// MemoryFeedStore keeps the versions document in memory.
type MemoryFeedStore struct {
	mu  sync.RWMutex
	doc []byte
}

// NewMemoryFeedStore returns an empty in-memory feed store.
func NewMemoryFeedStore() *MemoryFeedStore {
	return &MemoryFeedStore{}
}

func (m *MemoryFeedStore) Read() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.doc...), nil
}

func (m *MemoryFeedStore) Write(doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = append([]byte(nil), doc...)
	return nil
}

// FileFeedStore keeps the versions document in a file, replaced atomically
// on every write.
type FileFeedStore struct {
	path string
}

// NewFileFeedStore returns a feed store writing to path.
func NewFileFeedStore(path string) *FileFeedStore {
	return &FileFeedStore{path: path}
}

// Path returns the file the store writes to.
func (f *FileFeedStore) Path() string {
	return f.path
}

func (f *FileFeedStore) Read() ([]byte, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read versions file: %w", err)
	}
	return b, nil
}

func (f *FileFeedStore) Write(doc []byte) error {
	if err := atomicWriteFile(f.path, doc, 0o644); err != nil {
		return fmt.Errorf("write versions file: %w", err)
	}
	return nil
}

func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	// Temp file in the same dir so the rename is atomic.
	tmp, err := os.CreateTemp(dir, ".versions-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
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
	return os.Rename(tmpName, path)
}
