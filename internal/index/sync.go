package index

import (
	"log/slog"

	"github.com/starford/othala/internal/vault"
)

// Sync mirrors the vault manifest into the index:
//   - every registered artifact is upserted with its lineage edges
//   - index rows whose vault id is no longer registered are deleted
//
// Registered checksums come from the manifest; the current_checksum
// column is left for the watcher to maintain.
func Sync(db *DB, mgr *vault.Manager, logger *slog.Logger) error {
	indexed, err := db.AllChecksums()
	if err != nil {
		return err
	}

	manifest := mgr.Manifest()
	for id, entry := range manifest.Artifacts {
		sum := manifest.Checksums[id]
		chain, _ := mgr.Chain(id)

		// Re-registration can change lineage without changing content,
		// so a checksum match alone is not enough to skip the upsert.
		row := ArtifactRow{
			VaultID:      id,
			FilePath:     entry.FilePath,
			Checksum:     sum,
			RegisteredAt: entry.RegisteredAt,
		}
		if err := db.UpsertArtifact(row, chain.Predecessor, chain.Successor); err != nil {
			logger.Warn("sync: upsert failed", slog.String("vault_id", id), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("vault_id", id))
		}
	}

	// Remove stale entries.
	for id := range indexed {
		if _, ok := manifest.Artifacts[id]; !ok {
			if err := db.DeleteArtifact(id); err != nil {
				logger.Warn("sync: delete failed", slog.String("vault_id", id), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("vault_id", id))
			}
		}
	}

	return nil
}
