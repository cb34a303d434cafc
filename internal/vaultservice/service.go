// Package vaultservice coordinates the vault manager, the SQLite
// index, and the checksum reconciler behind one API used by the HTTP
// handlers and the MCP server.
package vaultservice

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/identifier"
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/lineage"
	"github.com/starford/othala/internal/reconcile"
	"github.com/starford/othala/internal/vault"
	"github.com/starford/othala/internal/visualize"
)

// EventFunc receives artifact lifecycle notifications; kind matches
// the sse broker's artifact event kinds.
type EventFunc func(kind, vaultID string)

// ArtifactDetail is the full representation of a registered artifact.
type ArtifactDetail struct {
	VaultID         string         `json:"vault_id"`
	FilePath        string         `json:"file_path"`
	Checksum        string         `json:"checksum"`
	CurrentChecksum string         `json:"current_checksum,omitempty"`
	RegisteredAt    string         `json:"registered_at"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Predecessor     string         `json:"predecessor,omitempty"`
	Successor       string         `json:"successor,omitempty"`
	Drift           bool           `json:"drift"`
}

// ArtifactListItem is a lightweight item in a list response.
type ArtifactListItem struct {
	VaultID      string `json:"vault_id"`
	FilePath     string `json:"file_path"`
	Checksum     string `json:"checksum"`
	RegisteredAt string `json:"registered_at"`
	Drift        bool   `json:"drift"`
}

// VerifyResult carries a verification outcome; inconsistency is data,
// not an error.
type VerifyResult struct {
	VaultID string   `json:"vault_id"`
	Valid   bool     `json:"valid"`
	Issues  []string `json:"issues"`
}

// Service coordinates vault, index, and reconciler operations.
type Service struct {
	mgr    *vault.Manager
	db     *index.DB
	rec    *reconcile.Reconciler
	logger *slog.Logger
	notify EventFunc
}

// NewService creates a new vault service. notify may be nil.
func NewService(mgr *vault.Manager, db *index.DB, logger *slog.Logger, notify EventFunc) *Service {
	return &Service{
		mgr:    mgr,
		db:     db,
		rec:    &reconcile.Reconciler{},
		logger: logger,
		notify: notify,
	}
}

func (s *Service) emit(kind, vaultID string) {
	if s.notify != nil {
		s.notify(kind, vaultID)
	}
}

// validateID rejects malformed vault:// identifiers. Identifiers
// outside the scheme are accepted as opaque keys.
func validateID(vaultID string) error {
	if vaultID == "" {
		return fmt.Errorf("vaultservice: empty vault id: %w", apperr.ErrFormat)
	}
	if strings.HasPrefix(vaultID, identifier.Scheme) {
		if _, err := identifier.Parse(vaultID); err != nil {
			return err
		}
	}
	return nil
}

// Register records an artifact, mirrors it into the index, and emits
// a registered event.
func (s *Service) Register(_ context.Context, vaultID, filePath, predecessor string, metadata map[string]any) (*ArtifactDetail, error) {
	if err := validateID(vaultID); err != nil {
		return nil, err
	}

	sum, err := s.mgr.Register(vaultID, filePath, predecessor, metadata)
	if err != nil {
		return nil, err
	}
	s.logger.Info("artifact registered",
		slog.String("vault_id", vaultID),
		slog.String("file_path", filePath),
		slog.String("checksum", sum))

	if err := index.Sync(s.db, s.mgr, s.logger); err != nil {
		return nil, err
	}
	s.emit("registered", vaultID)
	return s.detail(vaultID)
}

// Unregister removes an artifact from the vault and the index.
func (s *Service) Unregister(_ context.Context, vaultID string) error {
	if err := s.mgr.Unregister(vaultID); err != nil {
		return err
	}
	if err := s.db.DeleteArtifact(vaultID); err != nil {
		return err
	}
	s.logger.Info("artifact unregistered", slog.String("vault_id", vaultID))
	s.emit("removed", vaultID)
	return nil
}

func (s *Service) detail(vaultID string) (*ArtifactDetail, error) {
	entry, ok := s.mgr.Manifest().Artifacts[vaultID]
	if !ok {
		return nil, fmt.Errorf("vaultservice: %s: %w", vaultID, apperr.ErrNotFound)
	}
	chain, _ := s.mgr.Chain(vaultID)

	d := &ArtifactDetail{
		VaultID:      vaultID,
		FilePath:     entry.FilePath,
		Checksum:     s.mgr.Manifest().Checksums[vaultID],
		RegisteredAt: entry.RegisteredAt,
		Metadata:     entry.Metadata,
		Predecessor:  chain.Predecessor,
		Successor:    chain.Successor,
	}
	if row, err := s.db.GetArtifact(vaultID); err == nil && row != nil {
		d.CurrentChecksum = row.CurrentChecksum
		d.Drift = row.HasDrift()
	}
	return d, nil
}

// GetArtifact returns the full record for vaultID.
func (s *Service) GetArtifact(_ context.Context, vaultID string) (*ArtifactDetail, error) {
	return s.detail(vaultID)
}

// ListArtifacts returns a page of registered artifacts and the total.
func (s *Service) ListArtifacts(_ context.Context, limit, offset int) ([]ArtifactListItem, int, error) {
	rows, total, err := s.db.ListArtifacts(limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items := make([]ArtifactListItem, len(rows))
	for i, r := range rows {
		items[i] = ArtifactListItem{
			VaultID:      r.VaultID,
			FilePath:     r.FilePath,
			Checksum:     r.Checksum,
			RegisteredAt: r.RegisteredAt,
			Drift:        r.HasDrift(),
		}
	}
	return items, total, nil
}

// Verify checks an artifact against its recorded checksum. Every
// finding is an issue string in the result.
func (s *Service) Verify(_ context.Context, vaultID string) VerifyResult {
	valid, issues := s.mgr.VerifyArtifact(vaultID)
	if issues == nil {
		issues = []string{}
	}
	return VerifyResult{VaultID: vaultID, Valid: valid, Issues: issues}
}

// ValidateChain checks bidirectional link consistency along the chain
// ending at vaultID.
func (s *Service) ValidateChain(_ context.Context, vaultID string) VerifyResult {
	valid, issues := s.mgr.ValidateChain(vaultID)
	if issues == nil {
		issues = []string{}
	}
	return VerifyResult{VaultID: vaultID, Valid: valid, Issues: issues}
}

// Trace walks the lineage chain from vaultID. Unknown ids are
// ErrNotFound; an undirected string is ErrFormat.
func (s *Service) Trace(_ context.Context, vaultID, direction string) ([]string, error) {
	var dir vault.Direction
	switch direction {
	case "", string(vault.Backward):
		dir = vault.Backward
	case string(vault.Forward):
		dir = vault.Forward
	default:
		return nil, fmt.Errorf("vaultservice: direction %q: %w", direction, apperr.ErrFormat)
	}

	if _, ok := s.mgr.Chain(vaultID); !ok {
		return nil, fmt.Errorf("vaultservice: %s: %w", vaultID, apperr.ErrNotFound)
	}
	return s.mgr.Trace(vaultID, dir)
}

// Report aggregates roots, leaves, forks, and chains.
func (s *Service) Report(_ context.Context) *vault.Report {
	return s.mgr.GenerateReport()
}

// ExportState snapshots the vault with its canonical state hash.
func (s *Service) ExportState(_ context.Context) (*vault.State, error) {
	return s.mgr.ExportState()
}

// Graph returns the lineage graph over registered chains.
func (s *Service) Graph(_ context.Context) *lineage.Graph {
	return s.mgr.Graph()
}

// GraphData returns the indexed nodes and edges, the shape the HTTP
// graph endpoint serves.
func (s *Service) GraphData(_ context.Context) ([]index.GraphNode, []index.GraphLink, error) {
	return s.db.Graph()
}

// GraphDOT renders the registered lineage graph as GraphViz DOT.
func (s *Service) GraphDOT(ctx context.Context) string {
	return visualize.RenderDOT(s.Graph(ctx))
}

// DetectCycles reports lineage cycles.
func (s *Service) DetectCycles(_ context.Context) [][]string {
	return s.mgr.DetectCycles()
}

// DetectBrokenLinks reports references to unregistered artifacts.
func (s *Service) DetectBrokenLinks(_ context.Context) []lineage.BrokenLink {
	return s.mgr.DetectBrokenLinks()
}

// CheckDrift reconciles the two checksum copies of an artifact's file
// against its content.
func (s *Service) CheckDrift(_ context.Context, vaultID string) (reconcile.Drift, error) {
	entry, ok := s.mgr.Manifest().Artifacts[vaultID]
	if !ok {
		return reconcile.Drift{}, fmt.Errorf("vaultservice: %s: %w", vaultID, apperr.ErrNotFound)
	}
	return s.rec.Check(s.resolveArtifactPath(entry.FilePath))
}

// DriftedArtifacts returns artifacts whose observed on-disk digest
// disagrees with the registered one.
func (s *Service) DriftedArtifacts(_ context.Context) ([]index.ArtifactRow, error) {
	return s.db.Drifted()
}

func (s *Service) resolveArtifactPath(filePath string) string {
	if filepath.IsAbs(filePath) {
		return filePath
	}
	return filepath.Join(s.mgr.Root(), filePath)
}
