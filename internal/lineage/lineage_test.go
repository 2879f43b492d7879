package lineage

import (
	"io"
	"log/slog"
	"testing"

	"github.com/evoforge/evoforge/internal/dna"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegisterUnknownParentIsInvariantViolation(t *testing.T) {
	tr := New(testLogger())
	child := dna.NewRoot("child", "m", "i", dna.DefaultTraits(), nil)
	child.ParentIDs = []string{"does-not-exist"}

	if err := tr.Register(child); err == nil {
		t.Fatal("expected error for unknown parent")
	}
}

func TestRegisterAndDepth(t *testing.T) {
	tr := New(testLogger())
	root := dna.NewRoot("root", "m", "i", dna.DefaultTraits(), nil)
	if err := tr.Register(root); err != nil {
		t.Fatalf("register root: %v", err)
	}

	child := dna.Breed(root, root, 0)
	child.ParentIDs = []string{root.ID}
	if err := tr.Register(child); err != nil {
		t.Fatalf("register child: %v", err)
	}

	descendants, err := tr.Descendants(root.ID)
	if err != nil || len(descendants) != 1 || descendants[0] != child.ID {
		t.Fatalf("descendants = %v, err %v", descendants, err)
	}

	ancestors, err := tr.Ancestors(child.ID)
	if err != nil || len(ancestors) != 1 || ancestors[0] != root.ID {
		t.Fatalf("ancestors = %v, err %v", ancestors, err)
	}

	if stats := tr.Stats(); stats.MaxDepth != 1 {
		t.Fatalf("max depth = %d, want 1", stats.MaxDepth)
	}
}

func TestSiblings(t *testing.T) {
	tr := New(testLogger())
	root := dna.NewRoot("root", "m", "i", dna.DefaultTraits(), nil)
	tr.Register(root)

	c1 := dna.NewRoot("c1", "m", "i", dna.DefaultTraits(), nil)
	c1.ParentIDs = []string{root.ID}
	tr.Register(c1)

	c2 := dna.NewRoot("c2", "m", "i", dna.DefaultTraits(), nil)
	c2.ParentIDs = []string{root.ID}
	tr.Register(c2)

	siblings, err := tr.Siblings(c1.ID)
	if err != nil || len(siblings) != 1 || siblings[0] != c2.ID {
		t.Fatalf("siblings = %v, err %v", siblings, err)
	}
}

func TestFamilyTreeAndStats(t *testing.T) {
	tr := New(testLogger())
	root := dna.NewRoot("root", "m", "i", dna.DefaultTraits(), nil)
	tr.Register(root)
	child := dna.NewRoot("child", "m", "i", dna.DefaultTraits(), nil)
	child.ParentIDs = []string{root.ID}
	tr.Register(child)

	forest := tr.FamilyTree()
	if len(forest) != 1 || forest[0].Node.ID != root.ID {
		t.Fatalf("unexpected forest: %+v", forest)
	}
	if len(forest[0].Children) != 1 {
		t.Fatalf("expected 1 child in tree, got %d", len(forest[0].Children))
	}

	stats := tr.Stats()
	if stats.TotalAgents != 2 || stats.Roots != 1 || stats.MaxDepth != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestExportSnapshotRoundTrip(t *testing.T) {
	tr := New(testLogger())
	root := dna.NewRoot("root", "m", "i", dna.DefaultTraits(), nil)
	tr.Register(root)
	child := dna.NewRoot("child", "m", "i", dna.DefaultTraits(), nil)
	child.ParentIDs = []string{root.ID}
	tr.Register(child)

	snap := tr.ExportSnapshot()
	reimported := Import(testLogger(), snap)

	original, err := tr.Descendants(root.ID)
	if err != nil {
		t.Fatal(err)
	}
	roundTripped, err := reimported.Descendants(root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(original) != len(roundTripped) || original[0] != roundTripped[0] {
		t.Fatalf("round trip mismatch: %v vs %v", original, roundTripped)
	}
}
