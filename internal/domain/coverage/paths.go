package coverage

import (
	"fmt"
	"sync"

	"fortio.org/safecast"
)

// FileID is a handle into a PathTable. Handles stay valid for the lifetime of
// the table.
type FileID uint32

// NoFile is the reserved handle for the empty path.
const NoFile FileID = 0

// PathTable owns every file path string referenced by regions. Many regions of
// one file share a single string through their FileID.
type PathTable struct {
	mu    sync.RWMutex
	byID  []string
	index map[string]FileID
}

func NewPathTable() *PathTable {
	return &PathTable{
		byID:  []string{""},
		index: map[string]FileID{"": NoFile},
	}
}

// Intern returns the handle for path, inserting it if absent.
func (t *PathTable) Intern(path string) (FileID, error) {
	t.mu.RLock()
	id, ok := t.index[path]
	t.mu.RUnlock()
	if ok {
		return id, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.index[path]; ok {
		return id, nil
	}
	n, err := safecast.Conv[uint32](len(t.byID))
	if err != nil {
		return NoFile, fmt.Errorf("path table full: %w", err)
	}
	// Own a copy so the caller's buffer can be released.
	owned := string([]byte(path))
	id = FileID(n)
	t.byID = append(t.byID, owned)
	t.index[owned] = id
	return id, nil
}

func (t *PathTable) Lookup(id FileID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) >= len(t.byID) {
		return "", false
	}
	return t.byID[id], true
}

func (t *PathTable) MustLookup(id FileID) string {
	s, ok := t.Lookup(id)
	if !ok {
		panic(fmt.Sprintf("unknown file id %d", id))
	}
	return s
}

// Len counts the interned paths, including the reserved empty path.
func (t *PathTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}
