package factlog_test

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/factlog-protocol/factlog/internal/factlog"
	"github.com/factlog-protocol/factlog/internal/merkle"
)

var ctx = context.Background()

func newLog(t *testing.T) *factlog.FactLog {
	t.Helper()
	return factlog.New(factlog.NewMemoryStore(), factlog.NewMemoryStore(), merkle.NewEngine(), zap.NewNop())
}

// newSharedLog builds a log whose flag and sequence stores are the same
// backend, the usual deployment shape.
func newSharedLog(t *testing.T) (*factlog.FactLog, *factlog.MemoryStore) {
	t.Helper()
	st := factlog.NewMemoryStore()
	return factlog.New(st, st, merkle.NewEngine(), zap.NewNop()), st
}

func mustStore(t *testing.T, l *factlog.FactLog, fact any) {
	t.Helper()
	stored, err := l.StoreFact(ctx, fact)
	if err != nil {
		t.Fatalf("StoreFact: %v", err)
	}
	if !stored {
		t.Fatalf("StoreFact dropped fact %v, expected stored", fact)
	}
}

func TestEnabled_defaultsFalse(t *testing.T) {
	l := newLog(t)

	enabled, err := l.Enabled(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if enabled {
		t.Error("fresh log must be disabled")
	}
}

func TestEnableDisable_idempotent(t *testing.T) {
	l := newLog(t)

	for i := 0; i < 2; i++ {
		if err := l.Enable(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if enabled, _ := l.Enabled(ctx); !enabled {
		t.Error("expected enabled after Enable")
	}

	for i := 0; i < 2; i++ {
		if err := l.Disable(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if enabled, _ := l.Enabled(ctx); enabled {
		t.Error("expected disabled after Disable")
	}
}

func TestStoreFact_droppedWhileDisabled(t *testing.T) {
	l := newLog(t)

	stored, err := l.StoreFact(ctx, map[string]string{"k": "v"})
	if err != nil {
		t.Fatal(err)
	}
	if stored {
		t.Error("fact stored while disabled")
	}
	if n, _ := l.Len(ctx); n != 0 {
		t.Errorf("sequence length = %d, want 0", n)
	}
}

func TestStoreFact_noReplayAfterReenable(t *testing.T) {
	l := newLog(t)

	if _, err := l.StoreFact(ctx, "dropped"); err != nil {
		t.Fatal(err)
	}
	if err := l.Enable(ctx); err != nil {
		t.Fatal(err)
	}
	mustStore(t, l, "kept")

	if n, _ := l.Len(ctx); n != 1 {
		t.Errorf("sequence length = %d, want 1 (dropped facts must not replay)", n)
	}
}

func TestIteration_orderAndRestart(t *testing.T) {
	l := newLog(t)
	if err := l.Enable(ctx); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"a", "b", "c"} {
		mustStore(t, l, f)
	}

	collect := func(seq func(func([]byte, error) bool)) []string {
		var out []string
		seq(func(rec []byte, err error) bool {
			if err != nil {
				t.Fatalf("iterate: %v", err)
			}
			out = append(out, string(rec))
			return true
		})
		return out
	}

	// Canonical JSON of a bare string is the quoted string.
	want := []string{`"a"`, `"b"`, `"c"`}
	wantRev := []string{`"c"`, `"b"`, `"a"`}

	for pass := 0; pass < 2; pass++ {
		got := collect(l.Facts(ctx))
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("pass %d forward: got %v, want %v", pass, got, want)
		}
		gotRev := collect(l.FactsReverse(ctx))
		if strings.Join(gotRev, ",") != strings.Join(wantRev, ",") {
			t.Errorf("pass %d backward: got %v, want %v", pass, gotRev, wantRev)
		}
	}
}

func TestCurrentTree_emptyLog(t *testing.T) {
	l := newLog(t)

	_, ok, err := l.CurrentTree(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("empty log must have no current tree")
	}
}

func TestCurrentTree_deterministic(t *testing.T) {
	l := newLog(t)
	if err := l.Enable(ctx); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"a", "b", "c"} {
		mustStore(t, l, f)
	}

	c1, ok, err := l.Commitment(ctx)
	if err != nil || !ok {
		t.Fatalf("commitment: ok=%v err=%v", ok, err)
	}
	c2, ok, err := l.Commitment(ctx)
	if err != nil || !ok {
		t.Fatalf("commitment: ok=%v err=%v", ok, err)
	}
	if c1 != c2 {
		t.Errorf("recomputed commitments differ: %s vs %s", c1, c2)
	}
}

func TestSnapshot_countMatchesCommitment(t *testing.T) {
	l := newLog(t)

	if _, n, ok, err := l.Snapshot(ctx); err != nil || ok || n != 0 {
		t.Errorf("empty log snapshot: n=%d ok=%v err=%v, want unavailable", n, ok, err)
	}

	if err := l.Enable(ctx); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"a", "b", "c"} {
		mustStore(t, l, f)
	}

	commitment, n, ok, err := l.Snapshot(ctx)
	if err != nil || !ok {
		t.Fatalf("snapshot: ok=%v err=%v", ok, err)
	}
	if n != 3 {
		t.Errorf("snapshot count = %d, want 3", n)
	}
	want, ok, err := l.Commitment(ctx)
	if err != nil || !ok {
		t.Fatalf("commitment: ok=%v err=%v", ok, err)
	}
	if commitment != want {
		t.Errorf("snapshot commitment = %s, want %s", commitment, want)
	}
}

func TestExtensionProof_emptyLog(t *testing.T) {
	l := newLog(t)

	if _, ok, err := l.ExtensionProof(ctx, ""); err != nil || ok {
		t.Errorf("empty log commitment: ok=%v err=%v, want unavailable", ok, err)
	}
	if _, ok, err := l.ExtensionProof(ctx, "0xdeadbeef"); err != nil || ok {
		t.Errorf("empty log proof: ok=%v err=%v, want unavailable", ok, err)
	}
}

func TestExtensionProof_protocol(t *testing.T) {
	l := newLog(t)
	if err := l.Enable(ctx); err != nil {
		t.Fatal(err)
	}
	mustStore(t, l, "a")

	// Genesis commitment: bare root, 0x-prefixed, no delimiter.
	r1, ok, err := l.ExtensionProof(ctx, "")
	if err != nil || !ok {
		t.Fatalf("genesis commitment: ok=%v err=%v", ok, err)
	}
	if !strings.HasPrefix(r1, factlog.RefPrefix) {
		t.Errorf("commitment %q missing %q prefix", r1, factlog.RefPrefix)
	}
	if strings.Contains(r1, factlog.RefDelimiter) {
		t.Errorf("bare commitment %q contains delimiter", r1)
	}

	// After appending, R1 is a strict prefix: proof available.
	mustStore(t, l, "b")
	proof, ok, err := l.ExtensionProof(ctx, r1)
	if err != nil || !ok {
		t.Fatalf("extension from R1: ok=%v err=%v", ok, err)
	}
	if !strings.Contains(proof, factlog.RefDelimiter) {
		t.Errorf("extension proof %q missing delimiter", proof)
	}

	// No new facts: the proof is not a strict extension of itself.
	if _, ok, err := l.ExtensionProof(ctx, proof); err != nil || ok {
		t.Errorf("immediate re-proof: ok=%v err=%v, want unavailable", ok, err)
	}

	// More growth: the delimited proof's second component is the baseline.
	mustStore(t, l, "c")
	next, ok, err := l.ExtensionProof(ctx, proof)
	if err != nil || !ok {
		t.Fatalf("extension from proof: ok=%v err=%v", ok, err)
	}
	ref, err := factlog.ParseCommitmentReference(next)
	if err != nil {
		t.Fatal(err)
	}
	prev, err := factlog.ParseCommitmentReference(proof)
	if err != nil {
		t.Fatal(err)
	}
	if ref.Older == nil || *ref.Older != prev.Newer {
		t.Error("new proof's older root should be the previous proof's newer root")
	}
}

func TestExtensionProof_foreignBaseline(t *testing.T) {
	foreign := newLog(t)
	if err := foreign.Enable(ctx); err != nil {
		t.Fatal(err)
	}
	mustStore(t, foreign, "x")
	baseline, ok, err := foreign.Commitment(ctx)
	if err != nil || !ok {
		t.Fatalf("foreign commitment: ok=%v err=%v", ok, err)
	}

	l := newLog(t)
	if err := l.Enable(ctx); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"a", "b", "c"} {
		mustStore(t, l, f)
	}

	if _, ok, err := l.ExtensionProof(ctx, baseline); err != nil || ok {
		t.Errorf("foreign baseline: ok=%v err=%v, want unavailable", ok, err)
	}
}

func TestExtensionProof_malformedReference(t *testing.T) {
	l := newLog(t)
	if err := l.Enable(ctx); err != nil {
		t.Fatal(err)
	}
	mustStore(t, l, "a")

	for _, ref := range []string{"nothex", "0x1234", "0xa:b:c"} {
		if _, _, err := l.ExtensionProof(ctx, ref); err == nil {
			t.Errorf("ExtensionProof(%q): expected hard error", ref)
		}
	}
}

func TestVerifyReference(t *testing.T) {
	l, _ := newSharedLog(t)
	if err := l.Enable(ctx); err != nil {
		t.Fatal(err)
	}
	mustStore(t, l, "a")
	r1, _, err := l.Commitment(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mustStore(t, l, "b")
	proof, _, err := l.ExtensionProof(ctx, r1)
	if err != nil {
		t.Fatal(err)
	}

	for _, ref := range []string{r1, proof} {
		ok, err := l.VerifyReference(ctx, ref)
		if err != nil {
			t.Fatalf("VerifyReference(%q): %v", ref, err)
		}
		if !ok {
			t.Errorf("VerifyReference(%q) = false, want true", ref)
		}
	}

	other := newLog(t)
	if err := other.Enable(ctx); err != nil {
		t.Fatal(err)
	}
	mustStore(t, other, "z")
	foreign, _, err := other.Commitment(ctx)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := l.VerifyReference(ctx, foreign)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("foreign reference verified against this log")
	}
}

func TestCanonicalJSON_stable(t *testing.T) {
	a, err := factlog.CanonicalJSON(map[string]any{"b": 2, "a": 1})
	if err != nil {
		t.Fatal(err)
	}
	b, err := factlog.CanonicalJSON(map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Errorf("key order leaked into encoding: %s vs %s", a, b)
	}
	if string(a) != `{"a":1,"b":2}` {
		t.Errorf("canonical form = %s, want sorted keys", a)
	}
}
