package main

import (
	"context"
	stderrors "errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/heyjunin/m3u8grab/pkg/errors"
	"github.com/heyjunin/m3u8grab/pkg/logger"
)

func main() {
	logger.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signalChan
		logger.Info("Received signal, shutting down", "main", map[string]interface{}{
			"signal": sig.String(),
		})
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		data := map[string]interface{}{
			"error": err.Error(),
		}
		var se *errors.StructuredError
		if stderrors.As(err, &se) {
			data["code"] = se.Code
			data["hint"] = errors.GetErrorMessage(se.Code)
		}
		logger.Fatal("m3u8grab failed", "main", data)
	}
}
