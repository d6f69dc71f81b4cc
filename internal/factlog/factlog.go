// Package factlog implements an append-only fact log that periodically
// commits its contents to a Merkle accumulator and proves, to a verifier
// holding an older commitment, that the log has only grown since that
// commitment was issued.
//
// The log owns a durable enable flag and a durable, append-only sequence of
// canonically serialized facts. The accumulator is derived in full from the
// stored sequence on every read; determinism of that derivation is the core
// invariant that makes extension proofs meaningful across independent
// recomputation.
//
// Three Store backends are provided:
//   - MemoryStore: in-process, for testing and ephemeral runs.
//   - PostgresStore: durable, for service deployments.
//   - SQLiteStore: durable, for standalone single-node deployments.
package factlog

import (
	"context"
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/factlog-protocol/factlog/internal/merkle"
)

// FactLog is the aggregate root: the enable gate, the fact sequence, and
// the commitment protocol over them. One logical writer per FactLog is
// assumed; readers tolerate eventual consistency of the backing store.
type FactLog struct {
	flags  FlagStore
	seq    SequenceStore
	engine *merkle.Engine
	logger *zap.Logger
}

// New creates a FactLog over the given stores and tree engine.
func New(flags FlagStore, seq SequenceStore, engine *merkle.Engine, logger *zap.Logger) *FactLog {
	return &FactLog{flags: flags, seq: seq, engine: engine, logger: logger}
}

// Enable turns fact collection on. Idempotent.
func (l *FactLog) Enable(ctx context.Context) error {
	if err := l.flags.Set(ctx, EnabledKey, true); err != nil {
		return fmt.Errorf("enable fact log: %w", err)
	}
	l.logger.Info("fact log enabled")
	return nil
}

// Disable turns fact collection off. Idempotent. Facts submitted while
// disabled are dropped, not queued; re-enabling does not replay them.
func (l *FactLog) Disable(ctx context.Context) error {
	if err := l.flags.Set(ctx, EnabledKey, false); err != nil {
		return fmt.Errorf("disable fact log: %w", err)
	}
	l.logger.Info("fact log disabled")
	return nil
}

// Enabled reports the gate. An absent flag reads as false.
func (l *FactLog) Enabled(ctx context.Context) (bool, error) {
	enabled, err := l.flags.Get(ctx, EnabledKey)
	if err != nil {
		return false, fmt.Errorf("read enable flag: %w", err)
	}
	return enabled, nil
}

// StoreFact canonically serializes fact and appends it to the sequence.
// When the log is disabled the fact is silently dropped and (false, nil)
// is returned; the gate is a pure filter, not a queue.
func (l *FactLog) StoreFact(ctx context.Context, fact any) (bool, error) {
	enabled, err := l.Enabled(ctx)
	if err != nil {
		return false, err
	}
	if !enabled {
		l.logger.Debug("fact dropped, log disabled")
		return false, nil
	}

	record, err := CanonicalJSON(fact)
	if err != nil {
		return false, err
	}
	if err := l.seq.Append(ctx, record); err != nil {
		return false, fmt.Errorf("append fact: %w", err)
	}
	return true, nil
}

// Facts iterates the stored serialized facts in insertion order. Each
// range starts a fresh pass over the store.
func (l *FactLog) Facts(ctx context.Context) iter.Seq2[[]byte, error] {
	return l.seq.Seq(ctx)
}

// FactsReverse iterates the stored serialized facts in reverse insertion
// order.
func (l *FactLog) FactsReverse(ctx context.Context) iter.Seq2[[]byte, error] {
	return l.seq.SeqReverse(ctx)
}

// Len returns the number of stored facts.
func (l *FactLog) Len(ctx context.Context) (int, error) {
	n, err := l.seq.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("count facts: %w", err)
	}
	return n, nil
}

// CurrentTree derives the accumulator from the full stored sequence, in
// insertion order. It returns (nil, false, nil) on an empty log: there is
// no tree for zero facts.
//
// The derivation is recomputed in full on every call and is O(total
// facts). Callers issuing it frequently should cache or rate-limit at
// their own layer.
func (l *FactLog) CurrentTree(ctx context.Context) (*merkle.Tree, bool, error) {
	var (
		tree *merkle.Tree
		rest [][]byte
	)
	for record, err := range l.seq.Seq(ctx) {
		if err != nil {
			return nil, false, fmt.Errorf("read fact sequence: %w", err)
		}
		if tree == nil {
			built, err := l.engine.Build(record)
			if err != nil {
				return nil, false, fmt.Errorf("build tree: %w", err)
			}
			tree = built
			continue
		}
		rest = append(rest, record)
	}
	if tree == nil {
		return nil, false, nil
	}
	if len(rest) > 0 {
		grown, err := l.engine.Extend(tree, rest)
		if err != nil {
			return nil, false, fmt.Errorf("extend tree: %w", err)
		}
		tree = grown
	}
	return tree, true, nil
}

// Commitment returns the bare root commitment of the current tree, or
// ("", false, nil) on an empty log.
func (l *FactLog) Commitment(ctx context.Context) (string, bool, error) {
	return l.ExtensionProof(ctx, "")
}

// Snapshot returns the fact count together with the bare root commitment
// over exactly those facts, both taken from a single pass over the stored
// sequence. Unlike separate Len and Commitment calls, the pair cannot be
// skewed by a concurrent append. ("", 0, false, nil) on an empty log.
func (l *FactLog) Snapshot(ctx context.Context) (string, int, bool, error) {
	tree, ok, err := l.CurrentTree(ctx)
	if err != nil {
		return "", 0, false, err
	}
	if !ok {
		return "", 0, false, nil
	}
	root, err := l.engine.Prune(tree)
	if err != nil {
		return "", 0, false, fmt.Errorf("prune tree: %w", err)
	}
	return BareReference(root).String(), int(tree.Size()), true, nil
}

// ExtensionProof runs the commitment protocol. With an empty latest it
// returns the bare root commitment of the current tree. Otherwise latest
// is parsed as a commitment reference, its most recently attested root is
// taken as the baseline, and a strict extension proof from that baseline
// to the current tree is produced.
//
// (_, false, nil) means "unavailable": the log is empty, the baseline is
// not a strict prefix of the current tree, or no facts were added since
// the baseline. A reference that cannot be parsed, or a store failure, is
// a hard error.
func (l *FactLog) ExtensionProof(ctx context.Context, latest string) (string, bool, error) {
	tree, ok, err := l.CurrentTree(ctx)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}

	if latest == "" {
		root, err := l.engine.Prune(tree)
		if err != nil {
			return "", false, fmt.Errorf("prune tree: %w", err)
		}
		return BareReference(root).String(), true, nil
	}

	ref, err := ParseCommitmentReference(latest)
	if err != nil {
		return "", false, err
	}

	proof, ok, err := l.engine.StrictExtensionProof(tree, ref.Baseline())
	if err != nil {
		return "", false, fmt.Errorf("extension proof: %w", err)
	}
	if !ok {
		l.logger.Debug("no strict extension from baseline",
			zap.String("baseline", ref.Baseline().Hex()),
			zap.Int64("tree_size", tree.Size()),
		)
		return "", false, nil
	}
	return ExtensionReference(proof.Older, proof.Newer).String(), true, nil
}

// VerifyReference checks that a previously issued commitment reference is
// consistent with the current log: every root it attests to must be either
// the current root or a historical root the current tree strictly extends.
func (l *FactLog) VerifyReference(ctx context.Context, reference string) (bool, error) {
	ref, err := ParseCommitmentReference(reference)
	if err != nil {
		return false, err
	}
	tree, ok, err := l.CurrentTree(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	current, err := l.engine.Prune(tree)
	if err != nil {
		return false, fmt.Errorf("prune tree: %w", err)
	}

	roots := []merkle.Root{ref.Newer}
	if ref.Older != nil {
		roots = append(roots, *ref.Older)
	}
	for _, root := range roots {
		if root == current {
			continue
		}
		if _, ok, err := l.engine.StrictExtensionProof(tree, root); err != nil {
			return false, err
		} else if !ok {
			return false, nil
		}
	}
	return true, nil
}
