package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/gops/agent"
	"github.com/viant/seqindex/index"
	"github.com/viant/seqindex/service"
	"github.com/viant/seqindex/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	startGops()
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "serve":
		serveCmd(os.Args[2:])
	case "index":
		indexCmd(os.Args[2:])
	case "query":
		queryCmd(os.Args[2:])
	case "status":
		statusCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: seqindex <command> [options]")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  serve   Run the HTTP API (upload, query, job status, metrics)")
	fmt.Fprintln(os.Stderr, "  index   Rebuild the index from a FASTA file and wait for it")
	fmt.Fprintln(os.Stderr, "  query   Find sequences within an edit distance of a query")
	fmt.Fprintln(os.Stderr, "  status  Show the last index job and index statistics")
}

func startGops() {
	if err := agent.Listen(agent.Options{ShutdownCleanup: true}); err != nil {
		log.Printf("gops: %v", err)
	}
}

// commonFlags are shared by every subcommand.
type commonFlags struct {
	config   *string
	driver   *string
	dsn      *string
	indexDir *string
	debug    *bool
}

type flagSet interface {
	String(name, value, usage string) *string
	Bool(name string, value bool, usage string) *bool
}

func registerCommon(flags flagSet) *commonFlags {
	return &commonFlags{
		config:   flags.String("config", "", "config yaml (optional, defaults to ~/seqindex/config.yaml if present)"),
		driver:   flags.String("driver", "", "store driver: sqlite|mysql|postgres (auto-detect if empty)"),
		dsn:      flags.String("dsn", "", "store dsn (overrides config)"),
		indexDir: flags.String("index-dir", "", "index snapshot directory (overrides config)"),
		debug:    flags.Bool("debug", false, "debug logging"),
	}
}

func (c *commonFlags) load() (*service.Config, error) {
	cfg, err := service.ReadConfig(resolveConfigPath(*c.config))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if *c.driver != "" {
		cfg.Store.Driver = *c.driver
	}
	if *c.dsn != "" {
		cfg.Store.DSN = *c.dsn
		if *c.driver == "" {
			cfg.Store.Driver = ""
		}
	}
	if *c.indexDir != "" {
		cfg.Index.Dir = *c.indexDir
		cfg.Index.SpoolDir = ""
	}
	if err := cfg.Init(context.Background()); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	candidate := filepath.Join(home, "seqindex", "config.yaml")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

func newLogger(debug bool) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	return logger.Sugar()
}

// runtime holds the components every command opens.
type runtime struct {
	config *service.Config
	store  *store.DB
	index  *index.Index
	logf   func(format string, args ...any)
}

func openRuntime(ctx context.Context, cfg *service.Config, logf func(format string, args ...any)) (*runtime, error) {
	db, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	idx, err := index.New(cfg.Index.Dir, index.WithLogf(logf))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &runtime{config: cfg, store: db, index: idx, logf: logf}, nil
}

func (r *runtime) Close() error {
	return r.store.Close()
}
