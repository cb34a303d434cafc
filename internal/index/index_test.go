package index

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/othala/internal/checksum"
	"github.com/starford/othala/internal/vault"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "othala-index-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })
	db, err := Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestUpsertAndGet(t *testing.T) {
	db := testDB(t)
	row := ArtifactRow{
		VaultID:      "vault://Demo/Widget/v1.0",
		FilePath:     "widget.md",
		Checksum:     "abc",
		RegisteredAt: "2026-01-01T00:00:00Z",
	}
	if err := db.UpsertArtifact(row, "vault://Demo/Widget/v0.9", ""); err != nil {
		t.Fatalf("UpsertArtifact: %v", err)
	}

	got, err := db.GetArtifact("vault://Demo/Widget/v1.0")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.FilePath != "widget.md" || got.Checksum != "abc" {
		t.Errorf("got = %+v", got)
	}

	preds, err := db.Predecessors("vault://Demo/Widget/v1.0")
	if err != nil {
		t.Fatal(err)
	}
	if len(preds) != 1 || preds[0] != "vault://Demo/Widget/v0.9" {
		t.Errorf("predecessors = %v", preds)
	}
}

func TestUpsert_ReplacesEdges(t *testing.T) {
	db := testDB(t)
	row := ArtifactRow{VaultID: "B", FilePath: "b.md"}
	if err := db.UpsertArtifact(row, "A", ""); err != nil {
		t.Fatal(err)
	}
	// Re-register with a different predecessor.
	if err := db.UpsertArtifact(row, "A2", ""); err != nil {
		t.Fatal(err)
	}
	preds, err := db.Predecessors("B")
	if err != nil {
		t.Fatal(err)
	}
	if len(preds) != 1 || preds[0] != "A2" {
		t.Errorf("predecessors = %v, want [A2]", preds)
	}
}

func TestFindByPath(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertArtifact(ArtifactRow{VaultID: "X", FilePath: "sub/x.md"}, "", ""); err != nil {
		t.Fatal(err)
	}
	got, err := db.FindByPath("sub/x.md")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.VaultID != "X" {
		t.Errorf("got = %+v", got)
	}
	missing, err := db.FindByPath("nope.md")
	if err != nil || missing != nil {
		t.Errorf("missing = %+v err = %v", missing, err)
	}
}

func TestListArtifacts_Pagination(t *testing.T) {
	db := testDB(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := db.UpsertArtifact(ArtifactRow{VaultID: id, FilePath: id + ".md"}, "", ""); err != nil {
			t.Fatal(err)
		}
	}
	rows, total, err := db.ListArtifacts(2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Errorf("total = %d", total)
	}
	if len(rows) != 2 || rows[0].VaultID != "b" || rows[1].VaultID != "c" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestDriftTracking(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertArtifact(ArtifactRow{VaultID: "D", FilePath: "d.md", Checksum: "good"}, "", ""); err != nil {
		t.Fatal(err)
	}
	if err := db.SetCurrentChecksum("D", "bad"); err != nil {
		t.Fatal(err)
	}

	drifted, err := db.Drifted()
	if err != nil {
		t.Fatal(err)
	}
	if len(drifted) != 1 || drifted[0].VaultID != "D" || !drifted[0].HasDrift() {
		t.Errorf("drifted = %+v", drifted)
	}

	// Matching observation clears drift.
	if err := db.SetCurrentChecksum("D", "good"); err != nil {
		t.Fatal(err)
	}
	drifted, err = db.Drifted()
	if err != nil {
		t.Fatal(err)
	}
	if len(drifted) != 0 {
		t.Errorf("drifted = %+v, want none", drifted)
	}
}

func TestDeleteArtifact(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertArtifact(ArtifactRow{VaultID: "Z", FilePath: "z.md"}, "Y", ""); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteArtifact("Z"); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetArtifact("Z")
	if err != nil || got != nil {
		t.Errorf("got = %+v err = %v", got, err)
	}
	preds, _ := db.Predecessors("Z")
	if len(preds) != 0 {
		t.Errorf("edges survive delete: %v", preds)
	}
}

func TestGraph(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertArtifact(ArtifactRow{VaultID: "A", Checksum: "ca"}, "", "B"); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertArtifact(ArtifactRow{VaultID: "B", Checksum: "cb"}, "A", ""); err != nil {
		t.Fatal(err)
	}

	nodes, links, err := db.Graph()
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 {
		t.Errorf("nodes = %v", nodes)
	}
	if len(links) != 1 || links[0].Predecessor != "A" || links[0].Successor != "B" {
		t.Errorf("links = %v", links)
	}
}

func TestSync_MirrorsManifest(t *testing.T) {
	db := testDB(t)
	vaultDir := t.TempDir()
	mgr, err := vault.Open(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(vaultDir, "a.md"), []byte("alpha"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(vaultDir, "b.md"), []byte("beta"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Register("A", "a.md", "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Register("B", "b.md", "A", nil); err != nil {
		t.Fatal(err)
	}

	if err := Sync(db, mgr, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	got, err := db.GetArtifact("B")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Checksum != checksum.SumCanonical("beta") {
		t.Errorf("got = %+v", got)
	}
	preds, _ := db.Predecessors("B")
	if len(preds) != 1 || preds[0] != "A" {
		t.Errorf("predecessors = %v", preds)
	}

	// A stale index row disappears on the next sync.
	if err := db.UpsertArtifact(ArtifactRow{VaultID: "Ghost", FilePath: "ghost.md"}, "", ""); err != nil {
		t.Fatal(err)
	}
	if err := Sync(db, mgr, quietLogger()); err != nil {
		t.Fatal(err)
	}
	gone, err := db.GetArtifact("Ghost")
	if err != nil || gone != nil {
		t.Errorf("stale row survived sync: %+v", gone)
	}
}
