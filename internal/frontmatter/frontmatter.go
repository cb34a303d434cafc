// Package frontmatter reads and edits the leading YAML metadata block
// of Markdown artifacts. Edits are line-level: every byte outside the
// single checksum_sha256 line is preserved verbatim, including field
// order, comments, and quoting, which a YAML round-trip would destroy.
package frontmatter

import (
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// PendingChecksum is the recognized placeholder value for an artifact
// whose checksum has not been computed yet. It is distinct from an
// absent field and is never verified.
const PendingChecksum = "pending"

var checksumLineRe = regexp.MustCompile(`(?m)^checksum_sha256:[ \t]*(.+)[ \t]*$`)

// Block is a parsed frontmatter section.
type Block struct {
	// Raw is the text between the delimiters, without them.
	Raw string
	// Body is everything after the closing delimiter line.
	Body string
}

// Split separates the frontmatter block from the body. ok is false
// when data has no complete leading block; Body then holds the whole
// content.
func Split(data []byte) (b Block, ok bool) {
	text := string(data)
	if !strings.HasPrefix(text, delim+"\n") {
		return Block{Body: text}, false
	}
	rest := text[len(delim)+1:]
	idx := strings.Index(rest, "\n"+delim+"\n")
	if idx < 0 {
		return Block{Body: text}, false
	}
	return Block{
		Raw:  rest[:idx+1],
		Body: rest[idx+1+len(delim)+1:],
	}, true
}

// Meta decodes the frontmatter block as YAML. Invalid YAML or a
// missing block yields nil, mirroring a no-frontmatter document.
func Meta(data []byte) map[string]any {
	b, ok := Split(data)
	if !ok {
		return nil
	}
	var m map[string]any
	if err := yaml.Unmarshal([]byte(b.Raw), &m); err != nil {
		return nil
	}
	return m
}

// Checksum extracts the checksum_sha256 field from the frontmatter
// block. ok is false when the block or the field is absent.
func Checksum(data []byte) (value string, ok bool) {
	b, hasBlock := Split(data)
	if !hasBlock {
		return "", false
	}
	m := checksumLineRe.FindStringSubmatch(b.Raw)
	if m == nil {
		return "", false
	}
	return strings.Trim(strings.TrimSpace(m[1]), `"'`), true
}

// WithChecksum returns a copy of data with the checksum_sha256 field
// set to sum. An existing field is rewritten in place; a missing field
// is appended at the end of the block, next to the other metadata. ok
// is false when data carries no complete frontmatter block, in which
// case data is returned unchanged.
func WithChecksum(data []byte, sum string) (out []byte, ok bool) {
	b, hasBlock := Split(data)
	if !hasBlock {
		return data, false
	}

	raw := b.Raw
	if checksumLineRe.MatchString(raw) {
		raw = checksumLineRe.ReplaceAllString(raw, "checksum_sha256: "+sum)
	} else {
		raw = strings.TrimRight(raw, "\n") + "\nchecksum_sha256: " + sum + "\n"
	}

	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	buf.WriteString(raw)
	buf.WriteString(delim + "\n")
	buf.WriteString(b.Body)
	return buf.Bytes(), true
}
