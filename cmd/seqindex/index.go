package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/viant/seqindex/builder"
	"github.com/viant/seqindex/job"
)

func indexCmd(args []string) {
	flags := flag.NewFlagSet("index", flag.ExitOnError)
	common := registerCommon(flags)
	file := flags.String("file", "", "FASTA file to index (required)")
	flags.Parse(args)
	if *file == "" {
		log.Fatalf("index: --file is required")
	}

	cfg, err := common.load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	logger := newLogger(*common.debug)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	rt, err := openRuntime(ctx, cfg, logger.Infof)
	if err != nil {
		logger.Fatalf("index: %v", err)
	}
	defer func() { _ = rt.Close() }()
	if err := runIndex(ctx, rt, *file, os.Stdout); err != nil {
		logger.Fatalf("index: %v", err)
	}
}

// runIndex builds synchronously, taking the same job slot a server upload would.
func runIndex(ctx context.Context, rt *runtime, path string, out io.Writer) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return err
	}
	candidate := job.New(uuid.NewString(), filepath.Base(abs), time.Now())
	current, started, err := job.NewGate(rt.store).Acquire(ctx, candidate)
	if err != nil {
		return err
	}
	if !started {
		return fmt.Errorf("build %s is %s (%d%%)", current.Run, current.Status, current.Percent)
	}
	b := builder.New(rt.index, rt.store, rt.store,
		builder.WithBatchSize(rt.config.Index.BatchSize),
		builder.WithTimeout(rt.config.Index.BuildTimeout()),
		builder.WithLogf(rt.logf),
	)
	outcome := b.Build(ctx, builder.Request{Job: candidate, Path: abs})
	if err := writeJSON(out, outcome.Snapshot); err != nil {
		return err
	}
	if outcome.Status != job.Done {
		return fmt.Errorf("build %s: %s", outcome.Status, outcome.Snapshot.Message)
	}
	return nil
}

func writeJSON(out io.Writer, payload any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
