package transfers

import (
	"strings"
	"sync"

	"github.com/tunedrift/tunedrift/internal/audio"
	"github.com/tunedrift/tunedrift/internal/library"
)

// HintStore keeps the metadata a download was requested with, keyed by
// identity and by filename so ingestion can find it once the file lands.
type HintStore struct {
	mu         sync.RWMutex
	byIdentity map[string]library.Metadata
	byFilename map[string]library.Metadata
}

// NewHintStore creates an empty hint store.
func NewHintStore() *HintStore {
	return &HintStore{
		byIdentity: make(map[string]library.Metadata),
		byFilename: make(map[string]library.Metadata),
	}
}

// Put records meta under identity and under the basename of remotePath.
func (h *HintStore) Put(identity, remotePath string, meta library.Metadata) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byIdentity[identity] = meta
	h.byFilename[filenameKey(remotePath)] = meta
}

// Promote copies the hint for identity to the filename lookup.
func (h *HintStore) Promote(identity, remotePath string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	meta, ok := h.byIdentity[identity]
	if ok {
		h.byFilename[filenameKey(remotePath)] = meta
	}
	return ok
}

// ForFile returns the hint for a local file by its basename.
func (h *HintStore) ForFile(path string) (library.Metadata, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	meta, ok := h.byFilename[filenameKey(path)]
	return meta, ok
}

// ForgetFile drops the filename hint for path.
func (h *HintStore) ForgetFile(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byFilename, filenameKey(path))
}

// Forget drops the identity hint.
func (h *HintStore) Forget(identity string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byIdentity, identity)
}

func filenameKey(path string) string {
	return strings.ToLower(audio.BaseName(path))
}
