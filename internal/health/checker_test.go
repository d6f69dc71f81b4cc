package health_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/factlog-protocol/factlog/internal/factlog"
	"github.com/factlog-protocol/factlog/internal/health"
	"github.com/factlog-protocol/factlog/internal/merkle"
)

var ctx = context.Background()

func TestProbe_emptyLog(t *testing.T) {
	st := factlog.NewMemoryStore()
	log := factlog.New(st, st, merkle.NewEngine(), zap.NewNop())
	c := health.New(log, health.Config{}, zap.NewNop())

	if !c.Probe(ctx) {
		t.Error("probe failed on healthy empty log")
	}
}

func TestProbe_populatedLog(t *testing.T) {
	st := factlog.NewMemoryStore()
	log := factlog.New(st, st, merkle.NewEngine(), zap.NewNop())
	if err := log.Enable(ctx); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"a", "b"} {
		if _, err := log.StoreFact(ctx, f); err != nil {
			t.Fatal(err)
		}
	}

	c := health.New(log, health.Config{}, zap.NewNop())
	if !c.Probe(ctx) {
		t.Error("probe failed on healthy populated log")
	}

	ok, at := c.LastResult()
	if !ok || at.IsZero() {
		t.Errorf("LastResult = (%v, %v)", ok, at)
	}
}

// failingStore wraps a Store and fails all flag reads.
type failingStore struct {
	*factlog.MemoryStore
}

func (f *failingStore) Get(context.Context, string) (bool, error) {
	return false, errors.New("store unreachable")
}

var _ factlog.Store = (*failingStore)(nil)

func TestProbe_storeFailure(t *testing.T) {
	st := &failingStore{factlog.NewMemoryStore()}
	log := factlog.New(st, st, merkle.NewEngine(), zap.NewNop())

	c := health.New(log, health.Config{}, zap.NewNop())
	if c.Probe(ctx) {
		t.Error("probe succeeded despite unreachable store")
	}
}
