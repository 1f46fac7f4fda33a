package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/viant/seqindex/builder"
	"github.com/viant/seqindex/server"
	"github.com/viant/seqindex/service"
	"golang.org/x/sync/errgroup"
)

func serveCmd(args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	common := registerCommon(flags)
	addr := flags.String("addr", "", "listen address (default from config or 127.0.0.1:8888)")
	flags.Parse(args)

	cfg, err := common.load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	logger := newLogger(*common.debug)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := serve(ctx, cfg, logger.Infof); err != nil {
		logger.Fatalf("serve: %v", err)
	}
}

func serve(ctx context.Context, cfg *service.Config, logf func(format string, args ...any)) error {
	rt, err := openRuntime(ctx, cfg, logf)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	metrics := server.NewMetrics(rt.index)
	build := builder.New(rt.index, rt.store, rt.store,
		builder.WithBatchSize(cfg.Index.BatchSize),
		builder.WithTimeout(cfg.Index.BuildTimeout()),
		builder.WithLogf(logf),
		builder.WithObserver(metrics.ObserveBuild),
	)
	worker := builder.NewWorker(build)
	svc, err := service.NewService(
		service.WithStore(rt.store),
		service.WithIndex(rt.index),
		service.WithWorker(worker),
		service.WithDefaultDistance(cfg.Index.DefaultDistance),
		service.WithSpoolDir(cfg.Index.SpoolDir),
		service.WithCacheSize(cfg.Index.CacheSize),
		service.WithLogf(logf),
	)
	if err != nil {
		return err
	}
	if err := svc.Recover(ctx); err != nil {
		return err
	}
	srv := server.New(svc,
		server.WithMetrics(metrics),
		server.WithUploadLimit(cfg.Server.UploadRate, cfg.Server.UploadBurst),
		server.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		server.WithLogf(logf),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	worker.Start(groupCtx)
	group.Go(func() error {
		return srv.ListenAndServe(groupCtx, cfg.Server.Addr)
	})
	err = group.Wait()
	worker.Close()
	return err
}
