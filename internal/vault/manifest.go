// Package vault implements the artifact vault: a manifest of
// registered artifacts with canonical-text checksums and a persisted
// lineage graph of predecessor/successor chains.
package vault

import (
	"time"

	"github.com/starford/othala/internal/lineage"
)

// ManifestVersion is written into newly created vaults.
const ManifestVersion = "1.0"

// Default persistence file names inside a vault directory.
const (
	DefaultManifestFile = "vault_manifest.json"
	DefaultLineageFile  = "lineage_graph.json"
)

// Entry is a registered artifact's manifest record. Metadata is
// opaque pass-through: unknown fields survive load/store untouched.
type Entry struct {
	FilePath     string         `json:"file_path"`
	RegisteredAt string         `json:"registered_at"`
	Metadata     map[string]any `json:"metadata"`
}

// Manifest is the persistent artifact registry of one vault directory.
type Manifest struct {
	VaultVersion string            `json:"vault_version"`
	CreatedAt    string            `json:"created_at"`
	Artifacts    map[string]Entry  `json:"artifacts"`
	Checksums    map[string]string `json:"checksums"`
}

func newManifest(now time.Time) *Manifest {
	return &Manifest{
		VaultVersion: ManifestVersion,
		CreatedAt:    now.UTC().Format(time.RFC3339),
		Artifacts:    make(map[string]Entry),
		Checksums:    make(map[string]string),
	}
}

// Report is the read-side lineage aggregation.
type Report struct {
	TotalArtifacts int                 `json:"total_artifacts"`
	RootNodes      []string            `json:"root_nodes"`
	LeafNodes      []string            `json:"leaf_nodes"`
	ForkPoints     []string            `json:"fork_points"`
	Chains         map[string][]string `json:"chains"`
}

// State is a complete vault export for backup or transfer.
type State struct {
	Manifest   *Manifest                `json:"manifest"`
	Lineage    map[string]lineage.Chain `json:"lineage_graph"`
	ExportedAt string                   `json:"exported_at"`
	StateHash  string                   `json:"vault_checksum"`
}
