package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	types "github.com/yungbote/sciencelab-batchserver/internal/domain/batch"
)

func TestCancelIsAtomicPerCall(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	seeded := h.seed(t, 4)

	if _, err := h.svc.NewBatch(ctx, newBatchRequest("a@example.com", 2)); err != nil {
		t.Fatalf("NewBatch A: %v", err)
	}
	if _, err := h.svc.NewBatch(ctx, newBatchRequest("b@example.com", 1)); err != nil {
		t.Fatalf("NewBatch B: %v", err)
	}
	a, err := h.identity.Lookup(dbcFor(ctx), "a@example.com")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	cases := []struct {
		name string
		ids  []int64
		want error
	}{
		{"foreign_input", []int64{seeded[0].ID, seeded[2].ID}, ErrOwnershipMismatch},
		{"missing_input", []int64{seeded[0].ID, 999}, ErrInputNotFound},
		{"never_leased", []int64{seeded[1].ID, seeded[3].ID}, ErrOwnershipMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, err := h.canceller.Cancel(dbcFor(ctx), tc.ids, a)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want=%v got=%v", tc.want, err)
			}
			if n != 0 {
				t.Fatalf("released: want=0 got=%d", n)
			}
			for _, id := range []int64{seeded[0].ID, seeded[1].ID} {
				if got := h.reload(t, id); got.Status != types.InputStatusAssigned || !got.IsAssignedTo(a.ID) {
					t.Fatalf("input %d rolled forward: %+v", id, got)
				}
			}
		})
	}

	n, err := h.canceller.Cancel(dbcFor(ctx), []int64{seeded[0].ID, seeded[0].ID, seeded[1].ID}, a)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if n != 2 {
		t.Fatalf("released: want=2 got=%d", n)
	}
}

func TestCancelProcessedInput(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	seeded := h.seed(t, 1)

	if _, err := h.svc.NewBatch(ctx, newBatchRequest("a@example.com", 1)); err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	if _, err := h.svc.UploadOutput(ctx, seeded[0].ID, "a@example.com", strings.NewReader(sampleOutput)); err != nil {
		t.Fatalf("UploadOutput: %v", err)
	}
	if _, err := h.svc.Cancel(ctx, "a@example.com", []int64{seeded[0].ID}); !errors.Is(err, ErrInputNotLeased) {
		t.Fatalf("want=%v got=%v", ErrInputNotLeased, err)
	}
	if got := h.reload(t, seeded[0].ID).Status; got != types.InputStatusProcessed {
		t.Fatalf("status: want=%v got=%v", types.InputStatusProcessed, got)
	}
}

func TestDedupeIDs(t *testing.T) {
	got := dedupeIDs([]int64{3, 1, 3, 2, 1})
	want := []int64{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("dedupeIDs: want=%v got=%v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dedupeIDs: want=%v got=%v", want, got)
		}
	}
}
