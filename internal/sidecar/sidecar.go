// Package sidecar reads and writes the .sidecar.json companion files
// that carry checksum and lineage metadata for a primary artifact.
package sidecar

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Suffix is appended to an artifact path to locate its sidecar.
const Suffix = ".sidecar.json"

// PathFor returns the sidecar path for an artifact file.
func PathFor(artifactPath string) string {
	return artifactPath + Suffix
}

// Lineage holds the predecessor/successor references of a sidecar.
type Lineage struct {
	Predecessors []string `json:"predecessors,omitempty"`
	Successors   []string `json:"successors,omitempty"`
}

// Record is a parsed sidecar document. Fields the tool does not
// understand are kept in Extra and written back untouched.
type Record struct {
	VaultID        string  `json:"vault_id,omitempty"`
	ChecksumSHA256 string  `json:"checksum_sha256,omitempty"`
	Version        string  `json:"version,omitempty"`
	Timestamp      string  `json:"timestamp,omitempty"`
	Lineage        Lineage `json:"lineage"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownKeys = map[string]struct{}{
	"vault_id":        {},
	"checksum_sha256": {},
	"version":         {},
	"timestamp":       {},
	"lineage":         {},
}

// UnmarshalJSON decodes known fields and stashes everything else in
// Extra.
func (r *Record) UnmarshalJSON(data []byte) error {
	type alias Record
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range knownKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		a.Extra = raw
	}
	*r = Record(a)
	return nil
}

// MarshalJSON merges Extra back alongside the known fields.
func (r Record) MarshalJSON() ([]byte, error) {
	type alias Record
	base, err := json.Marshal(alias(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, known := knownKeys[k]; !known {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// Load reads and parses a sidecar file. A missing file returns
// os.ErrNotExist via the underlying read.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("sidecar: parse %s: %w", path, err)
	}
	return &r, nil
}

// Save writes the record pretty-printed with a trailing newline, the
// same shape the rest of the vault persistence uses.
func Save(path string, r *Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("sidecar: marshal %s: %w", path, err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("sidecar: write %s: %w", path, err)
	}
	return nil
}

// ExtraKeys returns the unknown field names in sorted order, mostly
// for tests and diagnostics.
func (r *Record) ExtraKeys() []string {
	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
