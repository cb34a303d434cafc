package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/checksum"
	"github.com/starford/othala/internal/lineage"
	"github.com/starford/othala/internal/storage"
)

// Direction selects which way Trace walks the lineage chain.
type Direction string

const (
	Backward Direction = "backward"
	Forward  Direction = "forward"
)

// Manager owns one vault directory: its manifest, its lineage chains,
// and their persistence files. All paths are explicit constructor
// parameters; there is no process-wide vault. A Manager is not safe
// for concurrent use, and no cross-process locking is attempted:
// concurrent external writers to the same vault directory can race.
type Manager struct {
	root         string
	manifestPath string
	lineagePath  string
	fs           storage.Provider

	manifest *Manifest
	chains   map[string]lineage.Chain
}

// NewManager opens (or initializes) the vault at root, using the
// given persistence file names inside it.
func NewManager(root, manifestFile, lineageFile string) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("vault: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("vault: mkdir: %w", err)
	}
	fsys, err := storage.NewFS(abs)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		root:         abs,
		manifestPath: filepath.Join(abs, manifestFile),
		lineagePath:  filepath.Join(abs, lineageFile),
		fs:           fsys,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Open is NewManager with the default persistence file names.
func Open(root string) (*Manager, error) {
	return NewManager(root, DefaultManifestFile, DefaultLineageFile)
}

// Root returns the vault directory.
func (m *Manager) Root() string { return m.root }

// Manifest returns the in-memory manifest. Callers must treat it as
// read-only; Register is the sole mutator.
func (m *Manager) Manifest() *Manifest { return m.manifest }

// Chains returns a copy of the lineage chain map.
func (m *Manager) Chains() map[string]lineage.Chain {
	out := make(map[string]lineage.Chain, len(m.chains))
	for k, v := range m.chains {
		out[k] = v
	}
	return out
}

// Chain returns the lineage record for id.
func (m *Manager) Chain(id string) (lineage.Chain, bool) {
	c, ok := m.chains[id]
	return c, ok
}

func (m *Manager) load() error {
	if data, err := os.ReadFile(m.manifestPath); err == nil {
		var mf Manifest
		if err := json.Unmarshal(data, &mf); err != nil {
			return fmt.Errorf("vault: parse manifest %s: %w", m.manifestPath, err)
		}
		if mf.Artifacts == nil {
			mf.Artifacts = make(map[string]Entry)
		}
		if mf.Checksums == nil {
			mf.Checksums = make(map[string]string)
		}
		m.manifest = &mf
	} else if os.IsNotExist(err) {
		m.manifest = newManifest(time.Now())
	} else {
		return fmt.Errorf("vault: read manifest: %w", err)
	}

	m.chains = make(map[string]lineage.Chain)
	if data, err := os.ReadFile(m.lineagePath); err == nil {
		if err := json.Unmarshal(data, &m.chains); err != nil {
			return fmt.Errorf("vault: parse lineage %s: %w", m.lineagePath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("vault: read lineage: %w", err)
	}
	return nil
}

// persist rewrites both files in full: marshal first, then atomic
// rename of each, so a marshal failure leaves nothing half-written.
func (m *Manager) persist() error {
	manifestData, err := marshalPretty(m.manifest)
	if err != nil {
		return fmt.Errorf("vault: marshal manifest: %w", err)
	}
	lineageData, err := marshalPretty(m.chains)
	if err != nil {
		return fmt.Errorf("vault: marshal lineage: %w", err)
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return fmt.Errorf("vault: mkdir: %w", err)
	}
	if err := storage.WriteFileAtomic(m.manifestPath, manifestData); err != nil {
		return err
	}
	return storage.WriteFileAtomic(m.lineagePath, lineageData)
}

func marshalPretty(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// resolvePath interprets a manifest file path: absolute paths are
// used as-is, relative ones resolve against the vault root with the
// storage traversal guard applied.
func (m *Manager) resolvePath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	return m.fs.Abs(p)
}

// Register records an artifact under vaultID: computes its
// canonical-text checksum, upserts the manifest entry and lineage
// chain, links the predecessor's successor when that predecessor is
// registered, and persists both files before returning. This is the
// sole mutator of graph topology.
func (m *Manager) Register(vaultID, filePath, predecessor string, metadata map[string]any) (string, error) {
	path, err := m.resolvePath(filePath)
	if err != nil {
		return "", err
	}
	sum, err := checksum.SumCanonicalFile(path)
	if err != nil {
		return "", err
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	m.manifest.Artifacts[vaultID] = Entry{
		FilePath:     filePath,
		RegisteredAt: time.Now().UTC().Format(time.RFC3339),
		Metadata:     metadata,
	}
	m.manifest.Checksums[vaultID] = sum

	m.chains[vaultID] = lineage.Chain{
		VaultID:     vaultID,
		Predecessor: predecessor,
	}
	if predecessor != "" {
		if pred, ok := m.chains[predecessor]; ok {
			pred.Successor = vaultID
			m.chains[predecessor] = pred
		}
	}

	if err := m.persist(); err != nil {
		return "", err
	}
	return sum, nil
}

// Unregister removes an artifact from the manifest and the lineage
// graph. Links in other chains that point at the removed id are left
// in place; they surface later as broken links.
func (m *Manager) Unregister(vaultID string) error {
	if _, ok := m.manifest.Artifacts[vaultID]; !ok {
		return fmt.Errorf("vault: %s: %w", vaultID, apperr.ErrNotFound)
	}
	delete(m.manifest.Artifacts, vaultID)
	delete(m.manifest.Checksums, vaultID)
	delete(m.chains, vaultID)
	return m.persist()
}

// VerifyArtifact checks a registered artifact against its recorded
// checksum. Inconsistency is the expected output: every finding comes
// back as an issue string, never as an error or panic.
func (m *Manager) VerifyArtifact(vaultID string) (bool, []string) {
	entry, ok := m.manifest.Artifacts[vaultID]
	if !ok {
		return false, []string{fmt.Sprintf("VaultID %s not registered in manifest", vaultID)}
	}

	path, err := m.resolvePath(entry.FilePath)
	if err != nil {
		return false, []string{fmt.Sprintf("Artifact file not found: %s", entry.FilePath)}
	}
	if _, err := os.Stat(path); err != nil {
		return false, []string{fmt.Sprintf("Artifact file not found: %s", entry.FilePath)}
	}

	expected, ok := m.manifest.Checksums[vaultID]
	if !ok || expected == "" {
		return false, []string{"No checksum recorded for artifact"}
	}

	actual, err := checksum.SumCanonicalFile(path)
	if err != nil {
		return false, []string{fmt.Sprintf("Error computing checksum: %v", err)}
	}
	if actual != expected {
		return false, []string{fmt.Sprintf("Checksum mismatch: expected %s, got %s", expected, actual)}
	}
	return true, nil
}

// Trace walks the lineage chain from vaultID, inclusive. The walk
// stops at an absent link or a link pointing outside the graph (a
// dangling link terminates the trace without error). A hop bound
// equal to the node count guards against a cyclic graph reached
// through Register misuse: exceeding it returns the chain collected
// so far plus apperr.ErrCycle.
func (m *Manager) Trace(vaultID string, direction Direction) ([]string, error) {
	if _, ok := m.chains[vaultID]; !ok {
		return nil, nil
	}

	chain := []string{vaultID}
	current := vaultID
	maxHops := len(m.chains)

	for hops := 0; ; hops++ {
		if hops >= maxHops {
			return chain, fmt.Errorf("vault: trace from %s exceeded %d hops: %w", vaultID, maxHops, apperr.ErrCycle)
		}
		entry := m.chains[current]
		var next string
		if direction == Backward {
			next = entry.Predecessor
		} else {
			next = entry.Successor
		}
		if next == "" {
			return chain, nil
		}
		chain = append(chain, next)
		current = next
		if _, ok := m.chains[current]; !ok {
			return chain, nil
		}
	}
}

// ValidateChain traces backward from vaultID to its apparent root and
// checks that every consecutive (later, earlier) pair is linked both
// ways: earlier.successor must equal later. All breaks are collected;
// the chain is valid only when none are found.
func (m *Manager) ValidateChain(vaultID string) (bool, []string) {
	if _, ok := m.chains[vaultID]; !ok {
		return false, []string{fmt.Sprintf("VaultID %s not in lineage graph", vaultID)}
	}

	backward, err := m.Trace(vaultID, Backward)
	var issues []string
	if err != nil {
		issues = append(issues, fmt.Sprintf("Trace aborted: %v", err))
	}

	for i := 1; i < len(backward); i++ {
		vid := backward[i]
		entry, ok := m.chains[vid]
		if !ok {
			issues = append(issues, fmt.Sprintf("Missing lineage entry for %s", vid))
			continue
		}
		expected := backward[i-1]
		if entry.Successor != expected {
			issues = append(issues, fmt.Sprintf(
				"Lineage break at %s: expected successor %s, got %s",
				vid, expected, entry.Successor))
		}
	}
	return len(issues) == 0, issues
}

// Graph builds the lineage graph over the registered chains.
func (m *Manager) Graph() *lineage.Graph {
	g := lineage.NewGraph()
	for _, id := range m.sortedChainIDs() {
		g.AddNode(id)
	}
	for _, id := range m.sortedChainIDs() {
		c := m.chains[id]
		if c.Predecessor != "" {
			g.AddEdge(c.Predecessor, id)
		}
		if c.Successor != "" {
			g.AddEdge(id, c.Successor)
		}
	}
	return g
}

// DetectCycles reports successor-edge cycles over the registered
// chains.
func (m *Manager) DetectCycles() [][]string {
	return m.Graph().DetectCycles()
}

// DetectBrokenLinks reports chain references to unregistered ids.
func (m *Manager) DetectBrokenLinks() []lineage.BrokenLink {
	return m.Graph().DetectBrokenLinks()
}

// GenerateReport aggregates roots, leaves, forks, and the forward
// chain from every root. Read-only.
func (m *Manager) GenerateReport() *Report {
	report := &Report{
		TotalArtifacts: len(m.chains),
		RootNodes:      []string{},
		LeafNodes:      []string{},
		ForkPoints:     []string{},
		Chains:         make(map[string][]string),
	}

	for _, id := range m.sortedChainIDs() {
		c := m.chains[id]
		if c.IsRoot() {
			report.RootNodes = append(report.RootNodes, id)
		}
		if c.IsLeaf() {
			report.LeafNodes = append(report.LeafNodes, id)
		}
		if c.IsFork() {
			report.ForkPoints = append(report.ForkPoints, id)
		}
	}

	for _, root := range report.RootNodes {
		chain, _ := m.Trace(root, Forward)
		report.Chains[root] = chain
	}
	return report
}

// ExportState snapshots the vault for backup or transfer. The state
// hash covers artifacts and checksums under a sorted-key canonical
// serialization, so registration order never changes it.
func (m *Manager) ExportState() (*State, error) {
	hash, err := m.StateHash()
	if err != nil {
		return nil, err
	}
	return &State{
		Manifest:   m.manifest,
		Lineage:    m.Chains(),
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		StateHash:  hash,
	}, nil
}

// StateHash computes the canonical digest of the registered
// artifacts and their checksums.
func (m *Manager) StateHash() (string, error) {
	state := struct {
		Artifacts map[string]Entry  `json:"artifacts"`
		Checksums map[string]string `json:"checksums"`
	}{
		Artifacts: m.manifest.Artifacts,
		Checksums: m.manifest.Checksums,
	}
	// encoding/json emits map keys in sorted order, which is exactly
	// the canonicalization the hash needs.
	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("vault: marshal state: %w", err)
	}
	return checksum.SumCanonical(string(data)), nil
}

func (m *Manager) sortedChainIDs() []string {
	ids := make([]string, 0, len(m.chains))
	for id := range m.chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
