package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
)

func statusCmd(args []string) {
	flags := flag.NewFlagSet("status", flag.ExitOnError)
	common := registerCommon(flags)
	flags.Parse(args)

	cfg, err := common.load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	ctx := context.Background()
	rt, err := openRuntime(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("status: %v", err)
	}
	defer func() { _ = rt.Close() }()
	if err := runStatus(ctx, rt, os.Stdout); err != nil {
		log.Fatalf("status: %v", err)
	}
}

func runStatus(ctx context.Context, rt *runtime, out io.Writer) error {
	svc, err := readOnlyService(rt)
	if err != nil {
		return err
	}
	if err := rt.index.Load(ctx, false); err != nil {
		return err
	}
	stats, err := svc.Stats(ctx)
	if err != nil {
		return err
	}
	return writeJSON(out, stats)
}
