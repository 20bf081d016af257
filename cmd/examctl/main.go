// Command examctl runs maintenance jobs against the exam engine database.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-engine/internal/bootstrap"
	"github.com/noah-isme/sma-exam-engine/pkg/config"
	"github.com/noah-isme/sma-exam-engine/pkg/logger"
)

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return exitFailure
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Printf("failed to init logger: %v", err)
		return exitFailure
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logr)
	if err != nil {
		logr.Error("failed to build services", zap.Error(err))
		return exitFailure
	}
	defer app.Close()

	cli := &commandLine{
		cards:    app.ReportCards,
		ranks:    app.Ranking,
		attempts: app.Attempts,
		outbox:   app.Outbox,
		out:      os.Stdout,
		now:      time.Now,
	}
	if err := cli.run(ctx, args); err != nil {
		code := exitCode(err)
		if err != errUsage {
			fmt.Fprintf(os.Stderr, "examctl: %v\n", err)
		}
		return code
	}
	return exitOK
}
