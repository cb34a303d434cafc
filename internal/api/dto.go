package api

import (
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/vault"
	"github.com/starford/othala/internal/vaultservice"
)

// RegisterRequest is the request body for registering an artifact.
type RegisterRequest struct {
	VaultID     string         `json:"vault_id" example:"vault://Demo/Widget/v1.0" validate:"required"`
	FilePath    string         `json:"file_path" example:"widget.md" validate:"required"`
	Predecessor string         `json:"predecessor,omitempty" example:"vault://Demo/Widget/v0.9"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ArtifactDetail is the full artifact response type (aliased from the domain layer).
type ArtifactDetail = vaultservice.ArtifactDetail

// ArtifactListItem is a lightweight item in a list response (aliased from the domain layer).
type ArtifactListItem = vaultservice.ArtifactListItem

// ArtifactListResponse wraps paginated artifact listings.
type ArtifactListResponse struct {
	Artifacts []ArtifactListItem `json:"artifacts" validate:"required"`
	Total     int                `json:"total" example:"42" validate:"required"`
}

// VerifyResponse carries a verification or chain validation outcome.
type VerifyResponse = vaultservice.VerifyResult

// TraceResponse wraps a lineage trace.
type TraceResponse struct {
	VaultID   string   `json:"vault_id" example:"vault://Demo/Widget/v1.0" validate:"required"`
	Direction string   `json:"direction" example:"backward" validate:"required"`
	Chain     []string `json:"chain" validate:"required"`
	Cycle     bool     `json:"cycle" example:"false"`
}

// ReportResponse is the lineage aggregation (aliased from the domain layer).
type ReportResponse = vault.Report

// GraphResponse wraps the indexed lineage graph.
type GraphResponse struct {
	Nodes []index.GraphNode `json:"nodes" validate:"required"`
	Links []index.GraphLink `json:"links" validate:"required"`
}

// DriftItem is one drifted artifact in the drift listing.
type DriftItem struct {
	VaultID         string `json:"vault_id" example:"vault://Demo/Widget/v1.0"`
	FilePath        string `json:"file_path" example:"widget.md"`
	Checksum        string `json:"checksum"`
	CurrentChecksum string `json:"current_checksum"`
}

// DriftCheckResponse is the reconciler's verdict for one artifact.
type DriftCheckResponse struct {
	VaultID    string `json:"vault_id"`
	Embedded   string `json:"embedded,omitempty"`
	Sidecar    string `json:"sidecar,omitempty"`
	Calculated string `json:"calculated"`
	HasDrift   bool   `json:"has_drift"`
	IsCorrect  bool   `json:"is_correct"`
}
