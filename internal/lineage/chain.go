// Package lineage models the predecessor/successor relationships
// between vault artifacts: per-artifact chain records and a directed
// multi-edge graph with cycle and broken-link detection.
package lineage

// Chain is the per-artifact lineage record persisted by the vault.
type Chain struct {
	VaultID     string `json:"vault_id"`
	Predecessor string `json:"predecessor,omitempty"`
	Successor   string `json:"successor,omitempty"`
	BranchPoint string `json:"branch_point,omitempty"`
	MergePoint  string `json:"merge_point,omitempty"`
}

// IsRoot reports whether the artifact has no predecessor.
func (c Chain) IsRoot() bool { return c.Predecessor == "" }

// IsLeaf reports whether the artifact has no successor.
func (c Chain) IsLeaf() bool { return c.Successor == "" }

// IsFork reports whether the artifact is a branch point.
func (c Chain) IsFork() bool { return c.BranchPoint != "" }

// IsMerge reports whether the artifact is a merge point.
func (c Chain) IsMerge() bool { return c.MergePoint != "" }
