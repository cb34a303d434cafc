package vault

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/checksum"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return m
}

func writeArtifact(t *testing.T, m *Manager, name, content string) string {
	t.Helper()
	path := filepath.Join(m.Root(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return name
}

func TestRegister_ComputesCanonicalChecksum(t *testing.T) {
	m := testManager(t)
	file := writeArtifact(t, m, "widget.md", "0123456789")

	sum, err := m.Register("vault://Demo/Widget/v1.0", file, "", nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if want := checksum.SumCanonical("0123456789"); sum != want {
		t.Errorf("sum = %s, want %s", sum, want)
	}
	if m.Manifest().Checksums["vault://Demo/Widget/v1.0"] != sum {
		t.Error("checksum not recorded in manifest")
	}
}

func TestRegister_MissingFile(t *testing.T) {
	m := testManager(t)
	_, err := m.Register("vault://Demo/Widget/v1.0", "absent.md", "", nil)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegister_LinksPredecessor(t *testing.T) {
	m := testManager(t)
	a := writeArtifact(t, m, "a.md", "version one")
	b := writeArtifact(t, m, "b.md", "version two")

	if _, err := m.Register("A", a, "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Register("B", b, "A", nil); err != nil {
		t.Fatal(err)
	}

	chainA, _ := m.Chain("A")
	if chainA.Successor != "B" {
		t.Errorf("A.successor = %q, want B", chainA.Successor)
	}

	trace, err := m.Trace("B", Backward)
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}
	if len(trace) != 2 || trace[0] != "B" || trace[1] != "A" {
		t.Errorf("trace = %v, want [B A]", trace)
	}
}

func TestRegister_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	file := writeArtifact(t, m, "doc.md", "persistent content")
	if _, err := m.Register("vault://Demo/Doc/v1.0", file, "", map[string]any{"author": "me"}); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	entry, ok := reopened.Manifest().Artifacts["vault://Demo/Doc/v1.0"]
	if !ok {
		t.Fatal("artifact lost on reopen")
	}
	if entry.Metadata["author"] != "me" {
		t.Errorf("metadata = %v", entry.Metadata)
	}
	if _, ok := reopened.Chain("vault://Demo/Doc/v1.0"); !ok {
		t.Error("chain lost on reopen")
	}
}

func TestPersistenceFiles_PrettyWithTrailingNewline(t *testing.T) {
	m := testManager(t)
	file := writeArtifact(t, m, "doc.md", "content")
	if _, err := m.Register("X", file, "", nil); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{DefaultManifestFile, DefaultLineageFile} {
		data, err := os.ReadFile(filepath.Join(m.Root(), name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if data[len(data)-1] != '\n' {
			t.Errorf("%s: missing trailing newline", name)
		}
		if !strings.Contains(string(data), "\n  ") {
			t.Errorf("%s: expected indented JSON", name)
		}
	}
}

func TestVerifyArtifact_Lifecycle(t *testing.T) {
	m := testManager(t)
	file := writeArtifact(t, m, "widget.md", "0123456789")

	id := "vault://Demo/Widget/v1.0"
	if _, err := m.Register(id, file, "", nil); err != nil {
		t.Fatal(err)
	}

	valid, issues := m.VerifyArtifact(id)
	if !valid || len(issues) != 0 {
		t.Fatalf("fresh artifact should verify: %v", issues)
	}

	// Append one byte: verification must fail with both digests.
	f, err := os.OpenFile(filepath.Join(m.Root(), file), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("!"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	valid, issues = m.VerifyArtifact(id)
	if valid {
		t.Fatal("modified artifact should fail verification")
	}
	if len(issues) != 1 {
		t.Fatalf("issues = %v", issues)
	}
	expected := m.Manifest().Checksums[id]
	actual := checksum.SumCanonical("0123456789!")
	if !strings.Contains(issues[0], expected) || !strings.Contains(issues[0], actual) {
		t.Errorf("issue must carry both digests: %s", issues[0])
	}
}

func TestVerifyArtifact_NotRegistered(t *testing.T) {
	m := testManager(t)
	valid, issues := m.VerifyArtifact("vault://Nope/X/v1.0")
	if valid || len(issues) != 1 || !strings.Contains(issues[0], "not registered") {
		t.Errorf("valid=%v issues=%v", valid, issues)
	}
}

func TestVerifyArtifact_FileRemoved(t *testing.T) {
	m := testManager(t)
	file := writeArtifact(t, m, "gone.md", "bye")
	if _, err := m.Register("G", file, "", nil); err != nil {
		t.Fatal(err)
	}
	os.Remove(filepath.Join(m.Root(), file))

	valid, issues := m.VerifyArtifact("G")
	if valid || len(issues) != 1 || !strings.Contains(issues[0], "not found") {
		t.Errorf("valid=%v issues=%v", valid, issues)
	}
}

func TestTrace_DanglingLinkTerminates(t *testing.T) {
	m := testManager(t)
	b := writeArtifact(t, m, "b.md", "content b")
	// B's predecessor was never registered.
	if _, err := m.Register("B", b, "Ghost", nil); err != nil {
		t.Fatal(err)
	}

	trace, err := m.Trace("B", Backward)
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}
	if len(trace) != 2 || trace[1] != "Ghost" {
		t.Errorf("trace = %v, want [B Ghost]", trace)
	}
}

func TestTrace_Unregistered(t *testing.T) {
	m := testManager(t)
	trace, err := m.Trace("missing", Backward)
	if err != nil || trace != nil {
		t.Errorf("trace = %v err = %v, want empty", trace, err)
	}
}

func TestTrace_CycleBound(t *testing.T) {
	m := testManager(t)
	a := writeArtifact(t, m, "a.md", "a")
	b := writeArtifact(t, m, "b.md", "b")
	if _, err := m.Register("A", a, "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Register("B", b, "A", nil); err != nil {
		t.Fatal(err)
	}
	// Close the loop through Register misuse: A's predecessor is B.
	if _, err := m.Register("A", a, "B", nil); err != nil {
		t.Fatal(err)
	}

	_, err := m.Trace("A", Backward)
	if !errors.Is(err, apperr.ErrCycle) {
		t.Errorf("expected ErrCycle, got %v", err)
	}
}

func TestValidateChain(t *testing.T) {
	m := testManager(t)
	a := writeArtifact(t, m, "a.md", "one")
	b := writeArtifact(t, m, "b.md", "two")
	c := writeArtifact(t, m, "c.md", "three")
	if _, err := m.Register("A", a, "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Register("B", b, "A", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Register("C", c, "B", nil); err != nil {
		t.Fatal(err)
	}

	valid, issues := m.ValidateChain("C")
	if !valid || len(issues) != 0 {
		t.Fatalf("chain should be valid: %v", issues)
	}

	// Re-registering B as a root breaks the A<->B link both ways.
	if _, err := m.Register("B", b, "", nil); err != nil {
		t.Fatal(err)
	}
	valid, issues = m.ValidateChain("C")
	if valid {
		t.Fatal("broken chain should be invalid")
	}
	joined := strings.Join(issues, "; ")
	if !strings.Contains(joined, "Lineage break") {
		t.Errorf("issues = %v", issues)
	}
}

func TestUnregister(t *testing.T) {
	m := testManager(t)
	a := writeArtifact(t, m, "a.md", "one")
	b := writeArtifact(t, m, "b.md", "two")
	if _, err := m.Register("A", a, "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Register("B", b, "A", nil); err != nil {
		t.Fatal(err)
	}

	if err := m.Unregister("A"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if _, ok := m.Manifest().Artifacts["A"]; ok {
		t.Error("manifest entry survived unregister")
	}
	// B still points at A; that is now a broken link.
	broken := m.DetectBrokenLinks()
	if len(broken) != 1 || broken[0].From != "A" || broken[0].To != "B" {
		t.Errorf("broken = %v", broken)
	}

	if err := m.Unregister("A"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGenerateReport(t *testing.T) {
	m := testManager(t)
	a := writeArtifact(t, m, "a.md", "one")
	b := writeArtifact(t, m, "b.md", "two")
	solo := writeArtifact(t, m, "solo.md", "alone")
	if _, err := m.Register("A", a, "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Register("B", b, "A", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Register("Solo", solo, "", nil); err != nil {
		t.Fatal(err)
	}

	r := m.GenerateReport()
	if r.TotalArtifacts != 3 {
		t.Errorf("total = %d", r.TotalArtifacts)
	}
	if len(r.RootNodes) != 2 {
		t.Errorf("roots = %v", r.RootNodes)
	}
	if len(r.LeafNodes) != 2 {
		t.Errorf("leaves = %v", r.LeafNodes)
	}
	chain := r.Chains["A"]
	if len(chain) != 2 || chain[0] != "A" || chain[1] != "B" {
		t.Errorf("chain from A = %v", chain)
	}
}

func TestStateHash_OrderInvariantAndTamperSensitive(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	ma, _ := Open(dirA)
	mb, _ := Open(dirB)

	write := func(m *Manager, name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(m.Root(), name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(ma, "x.md", "xx")
	write(ma, "y.md", "yy")
	write(mb, "x.md", "xx")
	write(mb, "y.md", "yy")

	// Same artifacts, opposite registration order.
	if _, err := ma.Register("X", "x.md", "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := ma.Register("Y", "y.md", "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := mb.Register("Y", "y.md", "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := mb.Register("X", "x.md", "", nil); err != nil {
		t.Fatal(err)
	}

	// Timestamps differ, so compare stability within one vault instead:
	// hashing twice yields the same value, and changing one checksum
	// changes it.
	h1, err := ma.StateHash()
	if err != nil {
		t.Fatal(err)
	}
	h2, err := ma.StateHash()
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Error("state hash not deterministic")
	}

	ma.Manifest().Checksums["X"] = strings.Repeat("0", 64)
	h3, err := ma.StateHash()
	if err != nil {
		t.Fatal(err)
	}
	if h3 == h1 {
		t.Error("state hash must change when a checksum changes")
	}
}

func TestExportState(t *testing.T) {
	m := testManager(t)
	file := writeArtifact(t, m, "doc.md", "content")
	if _, err := m.Register("D", file, "", nil); err != nil {
		t.Fatal(err)
	}

	state, err := m.ExportState()
	if err != nil {
		t.Fatalf("ExportState: %v", err)
	}
	if state.StateHash == "" || len(state.StateHash) != 64 {
		t.Errorf("state hash = %q", state.StateHash)
	}
	if _, ok := state.Lineage["D"]; !ok {
		t.Error("lineage missing from export")
	}
	if state.ExportedAt == "" {
		t.Error("exported_at missing")
	}
}

func TestDetectCyclesAndBrokenLinks(t *testing.T) {
	m := testManager(t)
	a := writeArtifact(t, m, "a.md", "a")
	b := writeArtifact(t, m, "b.md", "b")
	if _, err := m.Register("A", a, "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Register("B", b, "A", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Register("A", a, "B", nil); err != nil {
		t.Fatal(err)
	}

	cycles := m.DetectCycles()
	if len(cycles) != 1 {
		t.Fatalf("cycles = %v", cycles)
	}

	c := writeArtifact(t, m, "c.md", "c")
	if _, err := m.Register("C", c, "Phantom", nil); err != nil {
		t.Fatal(err)
	}
	broken := m.DetectBrokenLinks()
	found := false
	for _, bl := range broken {
		if bl.From == "Phantom" && bl.To == "C" {
			found = true
		}
	}
	if !found {
		t.Errorf("broken = %v, want Phantom -> C", broken)
	}
}
