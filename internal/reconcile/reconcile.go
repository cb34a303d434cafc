// Package reconcile keeps the two redundant copies of an artifact's
// checksum consistent: the one embedded in markdown frontmatter and
// the one in the artifact's sidecar file. Neither copy is
// authoritative; Recalculate is the only operation that resolves
// disagreement from the content itself.
package reconcile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/checksum"
	"github.com/starford/othala/internal/frontmatter"
	"github.com/starford/othala/internal/sidecar"
	"github.com/starford/othala/internal/storage"
)

// Source names which copy Sync propagates from.
type Source string

const (
	SourceEmbedded Source = "frontmatter"
	SourceSidecar  Source = "sidecar"
)

// Drift is the result of comparing an artifact's checksum copies with
// each other and with the freshly computed digest. Empty string means
// the copy is absent. A "pending" placeholder counts as absent for
// both drift and correctness.
type Drift struct {
	Path       string
	Embedded   string
	Sidecar    string
	Calculated string
}

func effective(v string) string {
	if v == frontmatter.PendingChecksum {
		return ""
	}
	return v
}

// HasDrift reports whether both copies are present and differ.
func (d Drift) HasDrift() bool {
	e, s := effective(d.Embedded), effective(d.Sidecar)
	return e != "" && s != "" && e != s
}

// IsCorrect reports whether every present copy equals the computed
// digest. An artifact with no copies at all is correct by this
// definition; only a present, wrong copy makes it incorrect.
func (d Drift) IsCorrect() bool {
	if d.Calculated == "" {
		return true
	}
	for _, v := range []string{effective(d.Embedded), effective(d.Sidecar)} {
		if v != "" && v != d.Calculated {
			return false
		}
	}
	return true
}

// Reconciler synchronizes checksum copies for files on disk. With
// DryRun set, write operations report what they would do without
// touching anything.
type Reconciler struct {
	DryRun bool
}

// ReadEmbedded returns the checksum_sha256 value from the file's
// frontmatter block. Absence is not an error.
func (r *Reconciler) ReadEmbedded(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, fmt.Errorf("reconcile: %s: %w", path, apperr.ErrNotFound)
		}
		return "", false, fmt.Errorf("reconcile: read %s: %w", path, err)
	}
	sum, ok := frontmatter.Checksum(data)
	return sum, ok, nil
}

// ReadSidecar returns the checksum recorded in the file's sidecar.
// A missing sidecar or missing field is not an error.
func (r *Reconciler) ReadSidecar(path string) (string, bool, error) {
	rec, err := sidecar.Load(sidecar.PathFor(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	if rec.ChecksumSHA256 == "" {
		return "", false, nil
	}
	return rec.ChecksumSHA256, true, nil
}

// Check compares the embedded and sidecar copies against the computed
// digest. The markdown-aware policy applies: frontmatter is excluded
// from the hash for .md files.
func (r *Reconciler) Check(path string) (Drift, error) {
	d := Drift{Path: path}

	embedded, _, err := r.ReadEmbedded(path)
	if err != nil {
		return d, err
	}
	d.Embedded = embedded

	side, _, err := r.ReadSidecar(path)
	if err != nil {
		return d, err
	}
	d.Sidecar = side

	calc, err := checksum.SumFile(path, true)
	if err != nil {
		return d, err
	}
	d.Calculated = calc
	return d, nil
}

// Sync copies the chosen source's checksum to the other location
// verbatim, with no recomputation. A source with no value fails with
// apperr.ErrMissingSource.
func (r *Reconciler) Sync(path string, source Source) error {
	switch source {
	case SourceEmbedded:
		sum, ok, err := r.ReadEmbedded(path)
		if err != nil {
			return err
		}
		if !ok || sum == "" {
			return fmt.Errorf("reconcile: %s has no frontmatter checksum: %w", path, apperr.ErrMissingSource)
		}
		return r.writeSidecar(path, sum)
	case SourceSidecar:
		sum, ok, err := r.ReadSidecar(path)
		if err != nil {
			return err
		}
		if !ok || sum == "" {
			return fmt.Errorf("reconcile: %s has no sidecar checksum: %w", path, apperr.ErrMissingSource)
		}
		return r.writeEmbedded(path, sum)
	default:
		return fmt.Errorf("reconcile: unknown source %q: %w", source, apperr.ErrFormat)
	}
}

// Recalculate computes the digest from current content and writes it
// to both locations unconditionally. The frontmatter copy is only
// written for markdown files; the sidecar is always written, created
// if absent.
func (r *Reconciler) Recalculate(path string) (string, error) {
	isMarkdown := strings.HasSuffix(path, ".md")
	sum, err := checksum.SumFile(path, isMarkdown)
	if err != nil {
		return "", err
	}

	if isMarkdown {
		if err := r.writeEmbedded(path, sum); err != nil {
			return "", err
		}
	}
	if err := r.writeSidecar(path, sum); err != nil {
		return "", err
	}
	return sum, nil
}

func (r *Reconciler) writeEmbedded(path, sum string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("reconcile: %s: %w", path, apperr.ErrNotFound)
		}
		return fmt.Errorf("reconcile: read %s: %w", path, err)
	}
	updated, ok := frontmatter.WithChecksum(data, sum)
	if !ok {
		return fmt.Errorf("reconcile: %s has no frontmatter block: %w", path, apperr.ErrFormat)
	}
	if r.DryRun {
		return nil
	}
	return storage.WriteFileAtomic(path, updated)
}

func (r *Reconciler) writeSidecar(path, sum string) error {
	sidePath := sidecar.PathFor(path)
	rec, err := sidecar.Load(sidePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		rec = &sidecar.Record{Version: "1.0.0"}
	}
	rec.ChecksumSHA256 = sum
	if r.DryRun {
		return nil
	}
	return sidecar.Save(sidePath, rec)
}
