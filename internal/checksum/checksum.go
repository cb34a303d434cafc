// Package checksum computes and verifies SHA-256 digests of vault artifacts.
//
// Three canonicalization policies coexist:
//   - raw: hash the bytes exactly as given (Sum).
//   - markdown: strip a leading YAML frontmatter block, hash the rest
//     (SumContent, SumFile). Non-Markdown content is always raw.
//   - canonical text: NFC + LF line endings + trimmed lines + single
//     trailing newline (CanonicalText, SumCanonical). Used by artifact
//     registration and vault-state hashing so digests survive editors
//     and platforms.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/starford/othala/internal/apperr"
)

const frontmatterDelim = "---"

var hexRe = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// IsWellFormed reports whether s looks like a SHA-256 hex digest.
func IsWellFormed(s string) bool {
	return hexRe.MatchString(s)
}

// SumContent hashes data under the Markdown-aware policy. When
// canonicalize and markdown are both true and data starts with a
// frontmatter block, only the content after the closing delimiter is
// hashed. Content that does not decode as UTF-8 is hashed byte-exact;
// lossy content must still be checksummable.
func SumContent(data []byte, canonicalize, markdown bool) string {
	if !canonicalize || !markdown {
		return Sum(data)
	}
	if !utf8.Valid(data) {
		return Sum(data)
	}
	return Sum([]byte(StripFrontmatter(string(data))))
}

// StripFrontmatter returns the content after a leading frontmatter
// block, or the full text when no complete block is present.
func StripFrontmatter(text string) string {
	if !strings.HasPrefix(text, frontmatterDelim+"\n") {
		return text
	}
	rest := text[len(frontmatterDelim)+1:]
	idx := strings.Index(rest, "\n"+frontmatterDelim+"\n")
	if idx < 0 {
		return text
	}
	return rest[idx+1+len(frontmatterDelim)+1:]
}

// SumFile hashes the file at path. Markdown files (.md) have their
// frontmatter skipped when skipFrontmatter is set; everything else is
// hashed byte-exact.
func SumFile(path string, skipFrontmatter bool) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("checksum: %s: %w", path, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("checksum: read %s: %w", path, err)
	}
	markdown := strings.HasSuffix(path, ".md")
	return SumContent(data, skipFrontmatter, markdown), nil
}

// CanonicalText normalizes text for stable hashing: NFC Unicode form,
// LF line endings, trailing whitespace stripped per line, and exactly
// one trailing newline. Applying it twice yields the same bytes.
func CanonicalText(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")

	return strings.TrimRight(text, "\n") + "\n"
}

// SumCanonical hashes the canonical-text form of text.
func SumCanonical(text string) string {
	return Sum([]byte(CanonicalText(text)))
}

// SumCanonicalFile hashes the file at path under the canonical-text
// policy. Content that does not decode as UTF-8 is hashed byte-exact.
func SumCanonicalFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("checksum: %s: %w", path, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("checksum: read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return Sum(data), nil
	}
	return SumCanonical(string(data)), nil
}

// Result holds the outcome of a verification.
type Result struct {
	Match    bool
	Expected string
	Actual   string
}

// Verify compares data against an expected digest. The expected value
// is normalized to lowercase before the strict comparison; digests are
// lowercase hex everywhere else. A malformed expected value is a
// format error; a mismatch is a normal outcome and never an error.
func Verify(data []byte, expected string) (Result, error) {
	if !IsWellFormed(expected) {
		return Result{}, fmt.Errorf("checksum: expected %q is not a 64-character hex digest: %w", expected, apperr.ErrFormat)
	}
	expected = strings.ToLower(expected)
	actual := Sum(data)
	return Result{
		Match:    actual == expected,
		Expected: expected,
		Actual:   actual,
	}, nil
}
