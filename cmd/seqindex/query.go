package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"

	"github.com/viant/seqindex/service"
)

func queryCmd(args []string) {
	flags := flag.NewFlagSet("query", flag.ExitOnError)
	common := registerCommon(flags)
	seq := flags.String("seq", "", "query sequence (required)")
	dist := flags.Int("dist", -1, "max edit distance (default from config)")
	flags.Parse(args)

	cfg, err := common.load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	ctx := context.Background()
	rt, err := openRuntime(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("query: %v", err)
	}
	defer func() { _ = rt.Close() }()
	var distance *int
	if *dist >= 0 {
		distance = dist
	}
	if err := runQuery(ctx, rt, &service.QueryRequest{Sequence: *seq, Distance: distance}, os.Stdout); err != nil {
		log.Fatalf("query: %v", err)
	}
}

func runQuery(ctx context.Context, rt *runtime, req *service.QueryRequest, out io.Writer) error {
	svc, err := readOnlyService(rt)
	if err != nil {
		return err
	}
	if err := rt.index.Load(ctx, false); err != nil {
		return err
	}
	results, err := svc.Query(ctx, req)
	if err != nil {
		return err
	}
	return writeJSON(out, results)
}

func readOnlyService(rt *runtime) (*service.Service, error) {
	return service.NewService(
		service.WithStore(rt.store),
		service.WithIndex(rt.index),
		service.WithDefaultDistance(rt.config.Index.DefaultDistance),
		service.WithSpoolDir(rt.config.Index.SpoolDir),
		service.WithLogf(rt.logf),
	)
}
