package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/graphstore/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run("")
	}()

	select {
	case err := <-errCh:
		if err != nil {
			application.Log.Error("server failed", "error", err)
			application.Close()
			os.Exit(1)
		}
	case <-ctx.Done():
		application.Log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), application.Cfg.ShutdownTimeout())
		defer cancel()
		if err := application.Shutdown(sctx); err != nil {
			application.Log.Warn("graceful shutdown failed", "error", err)
		}
		<-errCh
	}
}
