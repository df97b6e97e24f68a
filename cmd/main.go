package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/sciencelab-batchserver/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx)
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	application.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(application.Run)
	g.Go(func() error {
		<-gctx.Done()
		application.Log.Info("Shutting down", "grace", application.Cfg.ShutdownGrace)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), application.Cfg.ShutdownGrace)
		defer cancel()
		return application.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		application.Log.Error("Server stopped with error", "error", err)
		application.Close()
		os.Exit(1)
	}
	application.Log.Info("Server stopped")
}
