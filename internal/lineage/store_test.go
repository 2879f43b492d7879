package lineage

import (
	"path/filepath"
	"testing"

	"github.com/evoforge/evoforge/internal/dna"
)

func TestDebugStoreSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lineage_debug.db")
	store, err := OpenDebugStore(path)
	if err != nil {
		t.Fatalf("OpenDebugStore: %v", err)
	}
	defer store.Close()

	tr := New(testLogger())
	root := dna.NewRoot("root", "m", "i", dna.DefaultTraits(), nil)
	if err := tr.Register(root); err != nil {
		t.Fatalf("register root: %v", err)
	}
	snap := tr.ExportSnapshot()

	if err := store.Save("run-1", "2026-01-01T00:00:00Z", snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load("run-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Nodes) != len(snap.Nodes) || loaded.Nodes[0].ID != snap.Nodes[0].ID {
		t.Fatalf("loaded snapshot mismatch: %+v vs %+v", loaded, snap)
	}
}

func TestDebugStoreLoadKeepsMostRecentExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lineage_debug.db")
	store, err := OpenDebugStore(path)
	if err != nil {
		t.Fatalf("OpenDebugStore: %v", err)
	}
	defer store.Close()

	tr := New(testLogger())
	root := dna.NewRoot("root", "m", "i", dna.DefaultTraits(), nil)
	tr.Register(root)
	first := tr.ExportSnapshot()

	child := dna.NewRoot("child", "m", "i", dna.DefaultTraits(), nil)
	child.ParentIDs = []string{root.ID}
	tr.Register(child)
	second := tr.ExportSnapshot()

	if err := store.Save("run-1", "2026-01-01T00:00:00Z", first); err != nil {
		t.Fatalf("Save first: %v", err)
	}
	if err := store.Save("run-1", "2026-01-01T00:00:01Z", second); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	loaded, err := store.Load("run-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Nodes) != len(second.Nodes) {
		t.Fatalf("expected the most recently saved export (%d nodes), got %d", len(second.Nodes), len(loaded.Nodes))
	}
}

func TestDebugStoreLoadUnknownRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lineage_debug.db")
	store, err := OpenDebugStore(path)
	if err != nil {
		t.Fatalf("OpenDebugStore: %v", err)
	}
	defer store.Close()

	if _, err := store.Load("does-not-exist"); err == nil {
		t.Fatal("expected an error loading an export for an unknown run")
	}
}
