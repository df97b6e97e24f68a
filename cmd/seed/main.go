package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/yungbote/sciencelab-batchserver/internal/app"
	types "github.com/yungbote/sciencelab-batchserver/internal/domain/batch"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/dbctx"
)

func main() {
	var n int
	var prefix string
	var dryRun bool
	flag.IntVar(&n, "n", 100, "number of ready inputs to insert")
	flag.StringVar(&prefix, "prefix", "input", "storage key prefix; keys are <prefix><i>.txt")
	flag.BoolVar(&dryRun, "dry-run", false, "print planned keys without inserting")
	flag.Parse()

	if n <= 0 {
		fmt.Println("-n must be positive")
		os.Exit(2)
	}
	if dryRun {
		for i := 1; i <= n; i++ {
			fmt.Printf("%s%d.txt\n", prefix, i)
		}
		return
	}

	ctx := context.Background()
	application, err := app.New(ctx)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	inputs := make([]*types.Input, 0, n)
	for i := 1; i <= n; i++ {
		inputs = append(inputs, &types.Input{
			Status:     types.InputStatusReady,
			StorageKey: fmt.Sprintf("%s%d.txt", prefix, i),
		})
	}
	created, err := application.Repos.Input.Create(dbctx.Context{Ctx: ctx}, inputs)
	if err != nil {
		application.Log.Error("Seed inputs failed", "count", n, "error", err)
		application.Close()
		os.Exit(1)
	}
	application.Log.Info("Seeded inputs", "count", len(created), "first_id", created[0].ID, "last_id", created[len(created)-1].ID)
}
