package testutil

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/gorm"

	types "github.com/yungbote/sciencelab-batchserver/internal/domain/batch"
)

// SeedInputs inserts n Ready inputs keyed input{i}.txt and returns them in id order.
func SeedInputs(tb testing.TB, ctx context.Context, tx *gorm.DB, n int) []*types.Input {
	tb.Helper()
	out := make([]*types.Input, 0, n)
	for i := 1; i <= n; i++ {
		in := &types.Input{
			Status:     types.InputStatusReady,
			StorageKey: fmt.Sprintf("input%d.txt", i),
		}
		if err := tx.WithContext(ctx).Create(in).Error; err != nil {
			tb.Fatalf("seed input: %v", err)
		}
		out = append(out, in)
	}
	return out
}

func SeedClient(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.Client {
	tb.Helper()
	c := &types.Client{
		Email: types.NormalizeEmail(email),
		Profile: types.Profile{
			FullName:    "Ada Lovelace",
			TeamName:    "Analytical",
			CompanyName: "Engines Ltd",
			Location:    "London",
			CountryCode: "GB",
		},
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed client: %v", err)
	}
	return c
}

func ReloadInput(tb testing.TB, ctx context.Context, tx *gorm.DB, id int64) *types.Input {
	tb.Helper()
	var in types.Input
	if err := tx.WithContext(ctx).Where("id = ?", id).Take(&in).Error; err != nil {
		tb.Fatalf("reload input %d: %v", id, err)
	}
	return &in
}
