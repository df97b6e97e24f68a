package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/sciencelab-batchserver/internal/data/repos/testutil"
	types "github.com/yungbote/sciencelab-batchserver/internal/domain/batch"
)

func TestLeaseConcurrentBatchesNeverOverlap(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	const pool = 30
	h.seed(t, pool)
	client := testutil.SeedClient(t, ctx, h.db, "a@example.com")
	leases := NewLeaseManager(testutil.Logger(t), h.clock, h.inputs)

	const workers = 10
	var (
		mu   sync.Mutex
		seen = map[int64]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				got, err := leases.Lease(dbcFor(ctx), uuid.New(), 4, client, 0)
				if errors.Is(err, ErrNoInputsAvailable) {
					return
				}
				if err != nil {
					t.Errorf("Lease: %v", err)
					return
				}
				mu.Lock()
				for _, in := range got {
					seen[in.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != pool {
		t.Fatalf("leased: want=%d got=%d", pool, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("input %d leased %d times", id, n)
		}
	}
}

func TestLeaseRejectsBadArguments(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	leases := NewLeaseManager(testutil.Logger(t), h.clock, h.inputs)
	dbc := dbcFor(context.Background())
	client := &types.Client{ID: 1}

	if _, err := leases.Lease(dbc, uuid.New(), 0, client, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("size 0: want=%v got=%v", ErrValidation, err)
	}
	if _, err := leases.Lease(dbc, uuid.Nil, 1, client, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("nil label: want=%v got=%v", ErrValidation, err)
	}
	if _, err := leases.Lease(dbc, uuid.New(), 1, nil, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("nil client: want=%v got=%v", ErrValidation, err)
	}
}

func TestCapBatchSize(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	h.seed(t, 5)
	client := testutil.SeedClient(t, ctx, h.db, "a@example.com")
	leases := NewLeaseManager(testutil.Logger(t), h.clock, h.inputs)
	if _, err := leases.Lease(dbcFor(ctx), uuid.New(), 2, client, 0); err != nil {
		t.Fatalf("Lease: %v", err)
	}

	cases := []struct {
		name      string
		max       int
		requested int
		want      int
		wantErr   error
	}{
		{"disabled", 0, 50, 50, nil},
		{"under_cap", 10, 3, 3, nil},
		{"clamped", 5, 10, 3, nil},
		{"exact", 3, 1, 1, nil},
		{"full", 2, 1, 0, ErrQuotaExceeded},
		{"over", 1, 1, 0, ErrQuotaExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewQuotaGuard(testutil.Logger(t), h.inputs, tc.max)
			got, err := g.CapBatchSize(dbcFor(ctx), client, tc.requested)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err: want=%v got=%v", tc.wantErr, err)
			}
			if got != tc.want {
				t.Fatalf("size: want=%d got=%d", tc.want, got)
			}
		})
	}
}
