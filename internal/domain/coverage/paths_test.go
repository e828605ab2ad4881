package coverage

import (
	"fmt"
	"sync"
	"testing"
)

func TestPathTableIntern(t *testing.T) {
	paths := NewPathTable()

	a, err := paths.Intern("src/a.ts")
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	again, err := paths.Intern("src/a.ts")
	if err != nil {
		t.Fatalf("Intern again: %v", err)
	}
	if a != again {
		t.Fatalf("same path got two handles: %d and %d", a, again)
	}
	if a == NoFile {
		t.Fatalf("non-empty path got the reserved handle")
	}
	if got := paths.MustLookup(a); got != "src/a.ts" {
		t.Fatalf("MustLookup = %q", got)
	}
	if _, ok := paths.Lookup(FileID(99)); ok {
		t.Fatalf("Lookup of unknown handle succeeded")
	}
	if id, _ := paths.Intern(""); id != NoFile {
		t.Fatalf("empty path = %d, want NoFile", id)
	}
}

func TestPathTableConcurrentIntern(t *testing.T) {
	paths := NewPathTable()
	const (
		workers = 16
		files   = 200
	)

	ids := make([][]FileID, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids[w] = make([]FileID, files)
			for i := 0; i < files; i++ {
				id, err := paths.Intern(fmt.Sprintf("pkg/file_%03d.go", i))
				if err != nil {
					t.Errorf("Intern: %v", err)
					return
				}
				ids[w][i] = id
			}
		}(w)
	}
	wg.Wait()

	if got := paths.Len(); got != files+1 {
		t.Fatalf("Len = %d, want %d", got, files+1)
	}
	for w := 1; w < workers; w++ {
		for i := range ids[w] {
			if ids[w][i] != ids[0][i] {
				t.Fatalf("worker %d file %d: handle %d, worker 0 saw %d", w, i, ids[w][i], ids[0][i])
			}
		}
	}
	for i, id := range ids[0] {
		if want := fmt.Sprintf("pkg/file_%03d.go", i); paths.MustLookup(id) != want {
			t.Fatalf("handle %d resolves to %q, want %q", id, paths.MustLookup(id), want)
		}
	}
}
