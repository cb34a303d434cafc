package vaultservice

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/vault"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) record(kind, vaultID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+vaultID)
}

func (r *eventRecorder) has(e string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.events {
		if got == e {
			return true
		}
	}
	return false
}

func testService(t *testing.T) (*Service, string, *eventRecorder) {
	t.Helper()
	vaultDir := t.TempDir()
	mgr, err := vault.Open(vaultDir)
	if err != nil {
		t.Fatal(err)
	}

	dbFile, err := os.CreateTemp("", "othala-service-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })
	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	rec := &eventRecorder{}
	return NewService(mgr, db, logger, rec.record), vaultDir, rec
}

func writeArtifact(t *testing.T, vaultDir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(vaultDir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRegister_FullDetail(t *testing.T) {
	svc, dir, rec := testService(t)
	writeArtifact(t, dir, "widget.md", "content v1")

	d, err := svc.Register(context.Background(), "vault://Demo/Widget/v1.0", "widget.md", "", map[string]any{"author": "me"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if d.VaultID != "vault://Demo/Widget/v1.0" || d.Checksum == "" {
		t.Errorf("detail = %+v", d)
	}
	if !rec.has("registered:vault://Demo/Widget/v1.0") {
		t.Errorf("events = %v", rec.events)
	}

	// Index mirrored the registration.
	items, total, err := svc.ListArtifacts(context.Background(), 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(items) != 1 || items[0].VaultID != d.VaultID {
		t.Errorf("items = %+v total = %d", items, total)
	}
}

func TestRegister_MalformedVaultURI(t *testing.T) {
	svc, dir, _ := testService(t)
	writeArtifact(t, dir, "widget.md", "content")

	_, err := svc.Register(context.Background(), "vault://OnlyDomain", "widget.md", "", nil)
	if !errors.Is(err, apperr.ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
	_, err = svc.Register(context.Background(), "", "widget.md", "", nil)
	if !errors.Is(err, apperr.ErrFormat) {
		t.Errorf("empty id: expected ErrFormat, got %v", err)
	}
}

func TestRegister_OpaqueIDAllowed(t *testing.T) {
	svc, dir, _ := testService(t)
	writeArtifact(t, dir, "a.md", "content")
	if _, err := svc.Register(context.Background(), "plain-id", "a.md", "", nil); err != nil {
		t.Errorf("opaque id rejected: %v", err)
	}
}

func TestVerifyAndTrace(t *testing.T) {
	svc, dir, _ := testService(t)
	ctx := context.Background()
	writeArtifact(t, dir, "a.md", "one")
	writeArtifact(t, dir, "b.md", "two")
	if _, err := svc.Register(ctx, "A", "a.md", "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Register(ctx, "B", "b.md", "A", nil); err != nil {
		t.Fatal(err)
	}

	res := svc.Verify(ctx, "A")
	if !res.Valid || len(res.Issues) != 0 {
		t.Errorf("verify = %+v", res)
	}
	res = svc.Verify(ctx, "nope")
	if res.Valid || len(res.Issues) == 0 {
		t.Errorf("verify unknown = %+v", res)
	}

	chain, err := svc.Trace(ctx, "B", "backward")
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 2 || chain[0] != "B" || chain[1] != "A" {
		t.Errorf("chain = %v", chain)
	}

	if _, err := svc.Trace(ctx, "B", "sideways"); !errors.Is(err, apperr.ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
	if _, err := svc.Trace(ctx, "missing", "backward"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUnregister(t *testing.T) {
	svc, dir, rec := testService(t)
	ctx := context.Background()
	writeArtifact(t, dir, "a.md", "one")
	if _, err := svc.Register(ctx, "A", "a.md", "", nil); err != nil {
		t.Fatal(err)
	}

	if err := svc.Unregister(ctx, "A"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if !rec.has("removed:A") {
		t.Errorf("events = %v", rec.events)
	}
	if _, err := svc.GetArtifact(ctx, "A"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := svc.Unregister(ctx, "A"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReportAndGraph(t *testing.T) {
	svc, dir, _ := testService(t)
	ctx := context.Background()
	writeArtifact(t, dir, "a.md", "one")
	writeArtifact(t, dir, "b.md", "two")
	if _, err := svc.Register(ctx, "A", "a.md", "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Register(ctx, "B", "b.md", "A", nil); err != nil {
		t.Fatal(err)
	}

	r := svc.Report(ctx)
	if r.TotalArtifacts != 2 || len(r.RootNodes) != 1 {
		t.Errorf("report = %+v", r)
	}

	dot := svc.GraphDOT(ctx)
	if !strings.Contains(dot, `"A" -> "B"`) {
		t.Errorf("dot missing edge:\n%s", dot)
	}

	state, err := svc.ExportState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(state.StateHash) != 64 {
		t.Errorf("state hash = %q", state.StateHash)
	}
}

func TestCheckDrift(t *testing.T) {
	svc, dir, _ := testService(t)
	ctx := context.Background()
	writeArtifact(t, dir, "doc.md", "---\ntitle: Doc\n---\nbody\n")
	if _, err := svc.Register(ctx, "D", "doc.md", "", nil); err != nil {
		t.Fatal(err)
	}

	d, err := svc.CheckDrift(ctx, "D")
	if err != nil {
		t.Fatalf("CheckDrift: %v", err)
	}
	// No embedded checksum and no sidecar: nothing to drift.
	if d.HasDrift() || !d.IsCorrect() {
		t.Errorf("drift = %+v", d)
	}

	if _, err := svc.CheckDrift(ctx, "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
