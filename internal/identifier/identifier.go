// Package identifier implements vault:// artifact identifiers.
//
// Form: vault://Domain/Resource[/Sub...]/vMAJOR.MINOR[.PATCH]
// Example: vault://Demo/Tools/Widget/v1.2.0
package identifier

import (
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/othala/internal/apperr"
)

// Scheme is the fixed URI prefix of every artifact identifier.
const Scheme = "vault://"

var (
	segmentRe     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	versionRe     = regexp.MustCompile(`^v\d+(\.\d+)*$`)
	versionLikeRe = regexp.MustCompile(`^v\d`)
)

// ID is an immutable artifact identifier. The zero value is invalid;
// construct via Parse or Generate. IDs compare by string equality.
type ID struct {
	Domain   string
	Resource string
	Version  string
}

// String renders the identifier; Parse(id.String()) round-trips.
func (id ID) String() string {
	if id.Version == "" {
		return Scheme + id.Domain + "/" + id.Resource
	}
	return Scheme + id.Domain + "/" + id.Resource + "/" + id.Version
}

// Validate checks the structural invariants of the identifier.
func (id ID) Validate() error {
	err := validation.ValidateStruct(&id,
		validation.Field(&id.Domain, validation.Required, validation.Match(segmentRe)),
		validation.Field(&id.Resource, validation.Required),
		validation.Field(&id.Version, validation.Match(versionRe)),
	)
	if err != nil {
		return fmt.Errorf("identifier: %v: %w", err, apperr.ErrFormat)
	}
	for _, seg := range strings.Split(id.Resource, "/") {
		if !segmentRe.MatchString(seg) {
			return fmt.Errorf("identifier: bad resource segment %q: %w", seg, apperr.ErrFormat)
		}
	}
	return nil
}

// Parse builds an ID from its string form. The final path segment is
// treated as the version when it matches v<dotted-numeric>; otherwise
// the identifier is version-less and every segment past the first is
// resource path.
func Parse(s string) (ID, error) {
	if !strings.HasPrefix(s, Scheme) {
		return ID{}, fmt.Errorf("identifier: %q lacks %s prefix: %w", s, Scheme, apperr.ErrFormat)
	}
	parts := strings.Split(s[len(Scheme):], "/")
	if len(parts) < 2 {
		return ID{}, fmt.Errorf("identifier: %q needs domain and at least one resource segment: %w", s, apperr.ErrFormat)
	}

	id := ID{Domain: parts[0]}
	last := parts[len(parts)-1]
	if versionLikeRe.MatchString(last) && len(parts) > 2 {
		if !versionRe.MatchString(last) {
			return ID{}, fmt.Errorf("identifier: bad version %q: %w", last, apperr.ErrFormat)
		}
		id.Version = last
		id.Resource = strings.Join(parts[1:len(parts)-1], "/")
	} else {
		id.Resource = strings.Join(parts[1:], "/")
	}

	if err := id.Validate(); err != nil {
		return ID{}, err
	}
	return id, nil
}

// Generate deterministically constructs an identifier. A nil patch
// yields a two-component version.
func Generate(domain, resource string, major, minor int, patch *int) ID {
	version := fmt.Sprintf("v%d.%d", major, minor)
	if patch != nil {
		version = fmt.Sprintf("v%d.%d.%d", major, minor, *patch)
	}
	return ID{Domain: domain, Resource: resource, Version: version}
}
