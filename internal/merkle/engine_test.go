package merkle_test

import (
	"fmt"
	"testing"

	"github.com/factlog-protocol/factlog/internal/merkle"
)

func buildFrom(t *testing.T, e *merkle.Engine, items ...string) *merkle.Tree {
	t.Helper()
	tree, err := e.Build([]byte(items[0]))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var rest [][]byte
	for _, it := range items[1:] {
		rest = append(rest, []byte(it))
	}
	if len(rest) > 0 {
		tree, err = e.Extend(tree, rest)
		if err != nil {
			t.Fatalf("extend: %v", err)
		}
	}
	return tree
}

func TestPrune_deterministic(t *testing.T) {
	e := merkle.NewEngine()

	r1, err := e.Prune(buildFrom(t, e, "a", "b", "c"))
	if err != nil {
		t.Fatal(err)
	}
	r2, err := e.Prune(buildFrom(t, e, "a", "b", "c"))
	if err != nil {
		t.Fatal(err)
	}
	if r1 != r2 {
		t.Errorf("recomputed roots differ: %s vs %s", r1.Hex(), r2.Hex())
	}
}

func TestPrune_orderSensitive(t *testing.T) {
	e := merkle.NewEngine()

	ab, _ := e.Prune(buildFrom(t, e, "a", "b"))
	ba, _ := e.Prune(buildFrom(t, e, "b", "a"))
	if ab == ba {
		t.Errorf("[a,b] and [b,a] produced the same root %s", ab.Hex())
	}
}

func TestExtend_chunkingIndependent(t *testing.T) {
	e := merkle.NewEngine()

	oneCall := buildFrom(t, e, "a", "b", "c", "d")

	tree, err := e.Build([]byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	tree, err = e.Extend(tree, [][]byte{[]byte("b"), []byte("c")})
	if err != nil {
		t.Fatal(err)
	}
	tree, err = e.Extend(tree, [][]byte{[]byte("d")})
	if err != nil {
		t.Fatal(err)
	}

	r1, _ := e.Prune(oneCall)
	r2, _ := e.Prune(tree)
	if r1 != r2 {
		t.Errorf("chunked extension changed root: %s vs %s", r1.Hex(), r2.Hex())
	}
}

func TestExtend_doesNotMutateInput(t *testing.T) {
	e := merkle.NewEngine()

	base := buildFrom(t, e, "a")
	before, _ := e.Prune(base)

	if _, err := e.Extend(base, [][]byte{[]byte("b")}); err != nil {
		t.Fatal(err)
	}

	after, _ := e.Prune(base)
	if before != after {
		t.Errorf("Extend mutated its input tree: %s -> %s", before.Hex(), after.Hex())
	}
	if base.Size() != 1 {
		t.Errorf("input tree size changed to %d", base.Size())
	}
}

func TestStrictExtensionProof_success(t *testing.T) {
	e := merkle.NewEngine()

	baseline, err := e.Prune(buildFrom(t, e, "a"))
	if err != nil {
		t.Fatal(err)
	}
	current := buildFrom(t, e, "a", "b", "c")

	proof, ok, err := e.StrictExtensionProof(current, baseline)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a strict extension proof, got none")
	}
	if proof.Older != baseline {
		t.Errorf("proof.Older = %s, want %s", proof.Older.Hex(), baseline.Hex())
	}

	want, _ := e.Prune(current)
	if proof.Newer != want {
		t.Errorf("proof.Newer = %s, want %s", proof.Newer.Hex(), want.Hex())
	}

	if err := merkle.VerifyExtension(proof.Path, current.Size(), proof.Newer, 1, proof.Older); err != nil {
		t.Errorf("VerifyExtension: %v", err)
	}
}

func TestStrictExtensionProof_identicalTree(t *testing.T) {
	e := merkle.NewEngine()

	tree := buildFrom(t, e, "a", "b")
	root, _ := e.Prune(tree)

	_, ok, err := e.StrictExtensionProof(tree, root)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("a tree must not be a strict extension of itself")
	}
}

func TestStrictExtensionProof_foreignBaseline(t *testing.T) {
	e := merkle.NewEngine()

	foreign, _ := e.Prune(buildFrom(t, e, "x"))
	current := buildFrom(t, e, "a", "b", "c")

	_, ok, err := e.StrictExtensionProof(current, foreign)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("foreign baseline must not yield a proof")
	}
}

func TestStrictExtensionProof_everyHistoricalSize(t *testing.T) {
	e := merkle.NewEngine()

	var items []string
	for i := 0; i < 9; i++ {
		items = append(items, fmt.Sprintf("fact-%d", i))
	}
	current := buildFrom(t, e, items...)

	for k := 1; k < len(items); k++ {
		baseline, err := e.Prune(buildFrom(t, e, items[:k]...))
		if err != nil {
			t.Fatal(err)
		}
		proof, ok, err := e.StrictExtensionProof(current, baseline)
		if err != nil {
			t.Fatalf("size %d: %v", k, err)
		}
		if !ok {
			t.Fatalf("size %d: expected proof", k)
		}
		if err := merkle.VerifyExtension(proof.Path, current.Size(), proof.Newer, int64(k), baseline); err != nil {
			t.Errorf("size %d: %v", k, err)
		}
	}
}

func TestVerifyExtension_rejects(t *testing.T) {
	e := merkle.NewEngine()

	baseline, _ := e.Prune(buildFrom(t, e, "a", "b"))
	current := buildFrom(t, e, "a", "b", "c", "d", "e")

	proof, ok, err := e.StrictExtensionProof(current, baseline)
	if err != nil || !ok {
		t.Fatalf("proof: ok=%v err=%v", ok, err)
	}

	if err := merkle.VerifyExtension(proof.Path, current.Size(), proof.Newer, current.Size(), proof.Older); err == nil {
		t.Error("equal sizes accepted, want strict-extension rejection")
	}
	if err := merkle.VerifyExtension(proof.Path, current.Size(), proof.Newer, 0, proof.Older); err == nil {
		t.Error("zero older size accepted")
	}

	tampered := append(proof.Path[:0:0], proof.Path...)
	tampered[0][0] ^= 1
	if err := merkle.VerifyExtension(tampered, current.Size(), proof.Newer, 2, proof.Older); err == nil {
		t.Error("tampered consistency path accepted")
	}
}

func TestParseRoot(t *testing.T) {
	e := merkle.NewEngine()
	root, _ := e.Prune(buildFrom(t, e, "a"))

	for _, in := range []string{root.Hex(), "0x" + root.Hex()} {
		got, err := merkle.ParseRoot(in)
		if err != nil {
			t.Fatalf("ParseRoot(%q): %v", in, err)
		}
		if got != root {
			t.Errorf("ParseRoot(%q) = %s, want %s", in, got.Hex(), root.Hex())
		}
	}

	for _, in := range []string{"", "zz", root.Hex()[:10], root.Hex() + "00"} {
		if _, err := merkle.ParseRoot(in); err == nil {
			t.Errorf("ParseRoot(%q): expected error", in)
		}
	}
}
