// Package merkle implements the accumulator behind the fact log: an
// RFC 6962-style Merkle tree over an ordered sequence of serialized
// records, with canonical root commitments and strict extension proofs.
//
// The tree layout and hashing scheme are those of golang.org/x/mod/sumdb/tlog
// (SHA-256, leaf hashes domain-separated from interior nodes). A Tree is a
// value built from the full record sequence; two trees built from the same
// ordered sequence are identical regardless of how the records were batched
// into Build/Extend calls.
package merkle

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/sumdb/tlog"
)

// HashSize is the size in bytes of a root commitment.
const HashSize = tlog.HashSize

// Root is the canonical fixed-size commitment to a tree. Identical leaf
// sequences always produce identical roots.
type Root [HashSize]byte

// Hex returns the lowercase hex encoding of the root.
func (r Root) Hex() string {
	return hex.EncodeToString(r[:])
}

// ParseRoot decodes a hex-encoded root. A leading "0x" is accepted.
func ParseRoot(s string) (Root, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return Root{}, fmt.Errorf("decode root: %w", err)
	}
	if len(b) != HashSize {
		return Root{}, fmt.Errorf("decode root: want %d bytes, got %d", HashSize, len(b))
	}
	var r Root
	copy(r[:], b)
	return r, nil
}

// Tree is an accumulator over an ordered record sequence. It keeps the
// complete stored-hash array in tlog layout so that historical roots and
// extension proofs can be derived for any earlier size.
//
// Tree values are immutable once returned by Build or Extend.
type Tree struct {
	hashes []tlog.Hash // stored hashes, tlog indexing
	n      int64       // number of records committed
}

// Size returns the number of records committed to the tree.
func (t *Tree) Size() int64 { return t.n }

// ReadHashes implements tlog.HashReader over the stored-hash array.
func (t *Tree) ReadHashes(indexes []int64) ([]tlog.Hash, error) {
	out := make([]tlog.Hash, len(indexes))
	for i, x := range indexes {
		if x < 0 || x >= int64(len(t.hashes)) {
			return nil, fmt.Errorf("stored hash index %d out of range [0,%d)", x, len(t.hashes))
		}
		out[i] = t.hashes[x]
	}
	return out, nil
}

// Proof attests that the tree committed to by Newer strictly extends the
// tree committed to by Older. Path is the tlog consistency path; it is
// self-checked at construction time and re-checkable with VerifyExtension.
type Proof struct {
	Older Root
	Newer Root
	Path  tlog.TreeProof
}

// Engine builds, extends, and proves accumulators. It is stateless and safe
// for concurrent use; all state lives in Tree values.
type Engine struct{}

// NewEngine returns the tree engine.
func NewEngine() *Engine { return &Engine{} }

// Build constructs a one-leaf accumulator from a single serialized record.
func (e *Engine) Build(item []byte) (*Tree, error) {
	return e.Extend(&Tree{}, [][]byte{item})
}

// Extend folds additional records, in order, into an existing accumulator
// and returns the grown tree. The input tree is not modified. The result
// depends only on the ordered record sequence, not on call chunking.
func (e *Engine) Extend(t *Tree, items [][]byte) (*Tree, error) {
	grown := &Tree{
		hashes: append([]tlog.Hash(nil), t.hashes...),
		n:      t.n,
	}
	for _, item := range items {
		hs, err := tlog.StoredHashes(grown.n, item, grown)
		if err != nil {
			return nil, fmt.Errorf("hash record %d: %w", grown.n, err)
		}
		grown.hashes = append(grown.hashes, hs...)
		grown.n++
	}
	return grown, nil
}

// Prune canonicalizes the accumulator into its root commitment.
func (e *Engine) Prune(t *Tree) (Root, error) {
	if t.n == 0 {
		return Root{}, errors.New("prune: empty tree has no root")
	}
	return e.rootAt(t, t.n)
}

// rootAt computes the root the tree had when it held k records.
func (e *Engine) rootAt(t *Tree, k int64) (Root, error) {
	h, err := tlog.TreeHash(k, t)
	if err != nil {
		return Root{}, fmt.Errorf("tree hash at size %d: %w", k, err)
	}
	return Root(h), nil
}

// StrictExtensionProof produces a proof that newer's record sequence is a
// proper prefix-extension of the tree committed to by older. It returns
// (nil, false, nil) when the relationship does not hold: older matches no
// historical root of newer (foreign or forged reference), or older is
// newer's current root (no growth).
//
// The historical size matching older is found by a linear scan over all
// earlier sizes, so the call is quadratic in record count. The fact log
// recomputes trees in full on every read anyway; callers needing better
// amortized cost should cache at a higher layer.
func (e *Engine) StrictExtensionProof(newer *Tree, older Root) (*Proof, bool, error) {
	if newer.n == 0 {
		return nil, false, nil
	}
	newRoot, err := e.rootAt(newer, newer.n)
	if err != nil {
		return nil, false, err
	}
	for k := newer.n - 1; k >= 1; k-- {
		at, err := e.rootAt(newer, k)
		if err != nil {
			return nil, false, err
		}
		if at != older {
			continue
		}
		path, err := tlog.ProveTree(newer.n, k, newer)
		if err != nil {
			return nil, false, fmt.Errorf("prove tree %d contains %d: %w", newer.n, k, err)
		}
		if err := tlog.CheckTree(path, newer.n, tlog.Hash(newRoot), k, tlog.Hash(older)); err != nil {
			return nil, false, fmt.Errorf("self-check extension proof: %w", err)
		}
		return &Proof{Older: older, Newer: newRoot, Path: path}, true, nil
	}
	return nil, false, nil
}

// VerifyExtension checks a consistency path between two roots for the given
// sizes. It is the verifier-side counterpart of StrictExtensionProof.
func VerifyExtension(path tlog.TreeProof, newerSize int64, newer Root, olderSize int64, older Root) error {
	if olderSize < 1 || olderSize >= newerSize {
		return fmt.Errorf("verify extension: sizes %d -> %d are not a strict extension", olderSize, newerSize)
	}
	if err := tlog.CheckTree(path, newerSize, tlog.Hash(newer), olderSize, tlog.Hash(older)); err != nil {
		return fmt.Errorf("verify extension: %w", err)
	}
	return nil
}
