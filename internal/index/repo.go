package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ArtifactRow represents a row in the artifacts table. Checksum is the
// digest recorded at registration; CurrentChecksum is the last digest
// the watcher observed on disk (empty until observed, also empty when
// the file has gone missing).
type ArtifactRow struct {
	VaultID         string
	FilePath        string
	Checksum        string
	CurrentChecksum string
	RegisteredAt    string
	UpdatedAt       time.Time
}

// HasDrift reports whether the observed on-disk digest disagrees with
// the registered one.
func (r ArtifactRow) HasDrift() bool {
	return r.CurrentChecksum != "" && r.CurrentChecksum != r.Checksum
}

// GraphNode is one vertex of the indexed lineage graph.
type GraphNode struct {
	VaultID  string `json:"vault_id"`
	Checksum string `json:"checksum"`
}

// GraphLink is one predecessor→successor edge.
type GraphLink struct {
	Predecessor string `json:"predecessor"`
	Successor   string `json:"successor"`
}

// UpsertArtifact inserts or replaces an artifact and its lineage edges
// within a transaction. Edges touching the artifact as predecessor are
// replaced wholesale; pass empty strings for chain ends.
func (db *DB) UpsertArtifact(row ArtifactRow, predecessor, successor string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO artifacts (vault_id, file_path, checksum, current_checksum, registered_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(vault_id) DO UPDATE SET
			file_path        = excluded.file_path,
			checksum         = excluded.checksum,
			registered_at    = excluded.registered_at,
			updated_at       = excluded.updated_at
	`, row.VaultID, row.FilePath, row.Checksum, row.CurrentChecksum, row.RegisteredAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("index: upsert artifact: %w", err)
	}

	// Replace the edges this artifact's chain declares.
	_, _ = tx.Exec(`DELETE FROM edges WHERE successor = ?`, row.VaultID)
	_, _ = tx.Exec(`DELETE FROM edges WHERE predecessor = ?`, row.VaultID)
	if predecessor != "" {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO edges (predecessor, successor) VALUES (?, ?)`, predecessor, row.VaultID); err != nil {
			return fmt.Errorf("index: insert edge: %w", err)
		}
	}
	if successor != "" {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO edges (predecessor, successor) VALUES (?, ?)`, row.VaultID, successor); err != nil {
			return fmt.Errorf("index: insert edge: %w", err)
		}
	}

	return tx.Commit()
}

// DeleteArtifact removes an artifact and its edges.
func (db *DB) DeleteArtifact(vaultID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.Exec(`DELETE FROM edges WHERE predecessor = ? OR successor = ?`, vaultID, vaultID)
	_, _ = tx.Exec(`DELETE FROM artifacts WHERE vault_id = ?`, vaultID)

	return tx.Commit()
}

func scanArtifact(row *sql.Row) (*ArtifactRow, error) {
	var a ArtifactRow
	err := row.Scan(&a.VaultID, &a.FilePath, &a.Checksum, &a.CurrentChecksum, &a.RegisteredAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: scan artifact: %w", err)
	}
	return &a, nil
}

// GetArtifact returns the row for vaultID, or nil when absent.
func (db *DB) GetArtifact(vaultID string) (*ArtifactRow, error) {
	return scanArtifact(db.conn.QueryRow(`
		SELECT vault_id, file_path, checksum, current_checksum, registered_at, updated_at
		FROM artifacts WHERE vault_id = ?`, vaultID))
}

// FindByPath returns the row whose registered file path matches, or
// nil when absent.
func (db *DB) FindByPath(filePath string) (*ArtifactRow, error) {
	return scanArtifact(db.conn.QueryRow(`
		SELECT vault_id, file_path, checksum, current_checksum, registered_at, updated_at
		FROM artifacts WHERE file_path = ?`, filePath))
}

// ListArtifacts returns a page of artifacts ordered by vault id, plus
// the total count.
func (db *DB) ListArtifacts(limit, offset int) ([]ArtifactRow, int, error) {
	var total int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM artifacts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count artifacts: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT vault_id, file_path, checksum, current_checksum, registered_at, updated_at
		FROM artifacts ORDER BY vault_id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list artifacts: %w", err)
	}
	defer rows.Close()

	var out []ArtifactRow
	for rows.Next() {
		var a ArtifactRow
		if err := rows.Scan(&a.VaultID, &a.FilePath, &a.Checksum, &a.CurrentChecksum, &a.RegisteredAt, &a.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// GetChecksum returns the registered checksum for vaultID, or empty
// string if not found.
func (db *DB) GetChecksum(vaultID string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM artifacts WHERE vault_id = ?`, vaultID).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// AllChecksums returns every registered checksum keyed by vault id.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT vault_id, checksum FROM artifacts`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}

// SetCurrentChecksum records the digest last observed on disk.
func (db *DB) SetCurrentChecksum(vaultID, checksum string) error {
	_, err := db.conn.Exec(`
		UPDATE artifacts SET current_checksum = ?, updated_at = ? WHERE vault_id = ?`,
		checksum, time.Now().UTC(), vaultID)
	if err != nil {
		return fmt.Errorf("index: set current checksum: %w", err)
	}
	return nil
}

// Drifted returns artifacts whose observed digest disagrees with the
// registered one.
func (db *DB) Drifted() ([]ArtifactRow, error) {
	rows, err := db.conn.Query(`
		SELECT vault_id, file_path, checksum, current_checksum, registered_at, updated_at
		FROM artifacts
		WHERE current_checksum != '' AND current_checksum != checksum
		ORDER BY vault_id`)
	if err != nil {
		return nil, fmt.Errorf("index: drifted: %w", err)
	}
	defer rows.Close()

	var out []ArtifactRow
	for rows.Next() {
		var a ArtifactRow
		if err := rows.Scan(&a.VaultID, &a.FilePath, &a.Checksum, &a.CurrentChecksum, &a.RegisteredAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *DB) edgeColumn(query, key string) ([]string, error) {
	rows, err := db.conn.Query(query, key)
	if err != nil {
		return nil, fmt.Errorf("index: edge query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Predecessors returns the vault ids this artifact descends from.
func (db *DB) Predecessors(vaultID string) ([]string, error) {
	return db.edgeColumn(`SELECT predecessor FROM edges WHERE successor = ? ORDER BY predecessor`, vaultID)
}

// Successors returns the vault ids derived from this artifact.
func (db *DB) Successors(vaultID string) ([]string, error) {
	return db.edgeColumn(`SELECT successor FROM edges WHERE predecessor = ? ORDER BY successor`, vaultID)
}

// Graph returns all indexed nodes and edges.
func (db *DB) Graph() ([]GraphNode, []GraphLink, error) {
	nodeRows, err := db.conn.Query(`SELECT vault_id, checksum FROM artifacts ORDER BY vault_id`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph nodes: %w", err)
	}
	defer nodeRows.Close()

	var nodes []GraphNode
	for nodeRows.Next() {
		var n GraphNode
		if err := nodeRows.Scan(&n.VaultID, &n.Checksum); err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, n)
	}
	if err := nodeRows.Err(); err != nil {
		return nil, nil, err
	}

	linkRows, err := db.conn.Query(`SELECT predecessor, successor FROM edges ORDER BY predecessor, successor`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph links: %w", err)
	}
	defer linkRows.Close()

	var links []GraphLink
	for linkRows.Next() {
		var l GraphLink
		if err := linkRows.Scan(&l.Predecessor, &l.Successor); err != nil {
			return nil, nil, err
		}
		links = append(links, l)
	}
	return nodes, links, linkRows.Err()
}
