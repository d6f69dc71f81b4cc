package factlog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/factlog-protocol/factlog/internal/merkle"
)

// ErrMalformedReference wraps every parse failure so callers can map it to
// a client error rather than a store failure.
var ErrMalformedReference = errors.New("malformed commitment reference")

const (
	// RefPrefix starts every commitment reference on the wire.
	RefPrefix = "0x"

	// RefDelimiter separates the older and newer roots of an extension
	// proof reference. A bare root commitment contains no delimiter.
	RefDelimiter = ":"
)

// CommitmentReference is the parsed form of the opaque string handed to
// verifiers. It is either a bare root commitment or a previously issued
// extension proof carrying the older and newer roots it attested to.
//
// Wire format, preserved bit-for-bit for external verifiers:
//
//	bare:      0x<newer-hex>
//	extension: 0x<older-hex>:<newer-hex>
type CommitmentReference struct {
	// Older is set only for extension references.
	Older *merkle.Root

	// Newer is the most recently attested root: the root itself for a
	// bare commitment, the extension's current root otherwise.
	Newer merkle.Root
}

// Bare reports whether the reference is a bare root commitment.
func (r CommitmentReference) Bare() bool { return r.Older == nil }

// Baseline returns the root a future extension proof must extend from:
// always the most recently attested root.
func (r CommitmentReference) Baseline() merkle.Root { return r.Newer }

// String renders the wire form.
func (r CommitmentReference) String() string {
	if r.Older == nil {
		return RefPrefix + r.Newer.Hex()
	}
	return RefPrefix + r.Older.Hex() + RefDelimiter + r.Newer.Hex()
}

// BareReference wraps a root as a bare commitment reference.
func BareReference(root merkle.Root) CommitmentReference {
	return CommitmentReference{Newer: root}
}

// ExtensionReference wraps a proof's roots as an extension reference.
func ExtensionReference(older, newer merkle.Root) CommitmentReference {
	o := older
	return CommitmentReference{Older: &o, Newer: newer}
}

// ParseCommitmentReference parses the wire form. A reference that is not
// one or two hex-encoded roots joined by the delimiter is a hard error.
func ParseCommitmentReference(s string) (CommitmentReference, error) {
	trimmed := strings.TrimPrefix(s, RefPrefix)
	if trimmed == "" {
		return CommitmentReference{}, fmt.Errorf("%w: empty reference", ErrMalformedReference)
	}
	parts := strings.Split(trimmed, RefDelimiter)
	switch len(parts) {
	case 1:
		root, err := merkle.ParseRoot(parts[0])
		if err != nil {
			return CommitmentReference{}, fmt.Errorf("%w %q: %w", ErrMalformedReference, s, err)
		}
		return BareReference(root), nil
	case 2:
		older, err := merkle.ParseRoot(parts[0])
		if err != nil {
			return CommitmentReference{}, fmt.Errorf("%w %q: older component: %w", ErrMalformedReference, s, err)
		}
		newer, err := merkle.ParseRoot(parts[1])
		if err != nil {
			return CommitmentReference{}, fmt.Errorf("%w %q: newer component: %w", ErrMalformedReference, s, err)
		}
		return ExtensionReference(older, newer), nil
	default:
		return CommitmentReference{}, fmt.Errorf("%w %q: more than one delimiter", ErrMalformedReference, s)
	}
}
