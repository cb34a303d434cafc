package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/othala/internal/checksum"
	"github.com/starford/othala/internal/sidecar"
	"github.com/starford/othala/internal/vault"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "updated", "drift", "missing", "restored".
type EventCallback func(kind string, vaultID string)

// Watch starts an fsnotify watcher on the vault root and observes
// registered artifact files until ctx is cancelled. Each write to a
// registered file recomputes its canonical digest and records it as
// the current checksum; disagreement with the registered digest
// surfaces as a "drift" callback. Removals mark the artifact missing.
//
// New directories created at runtime are automatically added to the
// watch list. Rename events trigger a debounced reconciliation pass
// that re-observes every registered file.
func Watch(ctx context.Context, db *DB, vaultRoot string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", vaultRoot))

	// reconcileTimer debounces rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcileObserved(db, vaultRoot, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			// New directories join the watch list.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					scheduleReconcile()
					continue
				}
			}

			// Sidecars and the vault's own persistence files are
			// written by the tool itself; observing them would loop.
			if strings.HasSuffix(absPath, sidecar.Suffix) || isVaultInternal(absPath) {
				continue
			}

			rel, relErr := filepath.Rel(vaultRoot, absPath)
			if relErr != nil {
				continue
			}

			row, lookupErr := db.FindByPath(rel)
			if lookupErr != nil {
				logger.Warn("watcher: lookup failed", slog.String("path", rel), slog.String("error", lookupErr.Error()))
				continue
			}
			if row == nil {
				continue // not a registered artifact
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				observeArtifact(db, vaultRoot, *row, logger, cb)

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// fsnotify fires Rename on the OLD path only; the new
				// path arrives as a Create. Mark the artifact missing
				// now and schedule a reconciliation pass for stragglers.
				if setErr := db.SetCurrentChecksum(row.VaultID, ""); setErr != nil {
					logger.Warn("watcher: mark missing failed", slog.String("vault_id", row.VaultID), slog.String("error", setErr.Error()))
				} else {
					logger.Debug("watcher: artifact missing", slog.String("vault_id", row.VaultID))
					if cb != nil {
						cb("missing", row.VaultID)
					}
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// observeArtifact recomputes the canonical digest of a registered file
// and records it, reporting drift or restoration through cb.
func observeArtifact(db *DB, vaultRoot string, row ArtifactRow, logger *slog.Logger, cb EventCallback) {
	abs := filepath.Join(vaultRoot, row.FilePath)
	sum, err := checksum.SumCanonicalFile(abs)
	if err != nil {
		logger.Warn("watcher: checksum failed", slog.String("vault_id", row.VaultID), slog.String("error", err.Error()))
		return
	}
	if err := db.SetCurrentChecksum(row.VaultID, sum); err != nil {
		logger.Warn("watcher: record observation failed", slog.String("vault_id", row.VaultID), slog.String("error", err.Error()))
		return
	}

	kind := "updated"
	switch {
	case sum != row.Checksum:
		kind = "drift"
		logger.Warn("watcher: drift detected",
			slog.String("vault_id", row.VaultID),
			slog.String("expected", row.Checksum),
			slog.String("actual", sum))
	case row.CurrentChecksum != "" && row.CurrentChecksum != row.Checksum:
		kind = "restored"
		logger.Debug("watcher: artifact restored", slog.String("vault_id", row.VaultID))
	default:
		logger.Debug("watcher: artifact observed", slog.String("vault_id", row.VaultID))
	}
	if cb != nil {
		cb(kind, row.VaultID)
	}
}

// reconcileObserved re-observes every registered artifact: files gone
// from disk are marked missing, files present get a fresh digest.
func reconcileObserved(db *DB, vaultRoot string, logger *slog.Logger, cb EventCallback) {
	rows, _, err := db.ListArtifacts(int(^uint(0)>>1), 0)
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	for _, row := range rows {
		abs := filepath.Join(vaultRoot, row.FilePath)
		if _, statErr := os.Stat(abs); statErr != nil {
			if row.CurrentChecksum != "" {
				if setErr := db.SetCurrentChecksum(row.VaultID, ""); setErr == nil {
					logger.Debug("reconcile: marked missing", slog.String("vault_id", row.VaultID))
					if cb != nil {
						cb("missing", row.VaultID)
					}
				}
			}
			continue
		}
		observeArtifact(db, vaultRoot, row, logger, cb)
	}
}

// isVaultInternal reports whether path is one of the vault's own
// persistence files or a temp file from an atomic write.
func isVaultInternal(path string) bool {
	base := filepath.Base(path)
	return base == vault.DefaultManifestFile ||
		base == vault.DefaultLineageFile ||
		strings.HasPrefix(base, ".othala-tmp-")
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
