package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/viant/seqindex/job"
	"github.com/viant/seqindex/service"
)

func testConfig(t *testing.T) *service.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := service.DefaultConfig()
	cfg.Store.DSN = filepath.Join(dir, "seqindex.sqlite")
	cfg.Index.Dir = filepath.Join(dir, "index")
	cfg.Index.SpoolDir = ""
	if err := cfg.Init(context.Background()); err != nil {
		t.Fatalf("config init: %v", err)
	}
	return cfg
}

func TestCLIFlow_IndexQueryStatus(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	fastaPath := filepath.Join(t.TempDir(), "seqs.fasta")
	if err := os.WriteFile(fastaPath, []byte(">A first\nACGT\n>B\nACGA\n>C\nGGGGGGGG\n"), 0o644); err != nil {
		t.Fatalf("write fasta: %v", err)
	}

	rt, err := openRuntime(ctx, cfg, t.Logf)
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()

	out := &bytes.Buffer{}
	if err := runIndex(ctx, rt, fastaPath, out); err != nil {
		t.Fatalf("index: %v", err)
	}
	var finished job.Job
	if err := json.Unmarshal(out.Bytes(), &finished); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if finished.Status != job.Done || finished.Total != 3 {
		t.Fatalf("unexpected job: %+v", finished)
	}

	out.Reset()
	one := 1
	if err := runQuery(ctx, rt, &service.QueryRequest{Sequence: "ACGT", Distance: &one}, out); err != nil {
		t.Fatalf("query: %v", err)
	}
	var results []service.QueryResult
	if err := json.Unmarshal(out.Bytes(), &results); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if len(results) != 2 || results[0].ID != "A" || results[1].ID != "B" || results[1].Distance != 1 {
		t.Fatalf("unexpected results: %+v", results)
	}

	out.Reset()
	if err := runStatus(ctx, rt, out); err != nil {
		t.Fatalf("status: %v", err)
	}
	var stats service.Stats
	if err := json.Unmarshal(out.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Sequences != 3 || stats.Index.Entries != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	fresh, err := openRuntime(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("reopen runtime: %v", err)
	}
	defer fresh.Close()
	out.Reset()
	zero := 0
	if err := runQuery(ctx, fresh, &service.QueryRequest{Sequence: "GGGGGGGG", Distance: &zero}, out); err != nil {
		t.Fatalf("query after reopen: %v", err)
	}
	if !strings.Contains(out.String(), `"id": "C"`) {
		t.Fatalf("expected C in %s", out.String())
	}
}

func TestCLIFlow_IndexMalformed(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	fastaPath := filepath.Join(t.TempDir(), "bad.fasta")
	if err := os.WriteFile(fastaPath, []byte("ACGT\n"), 0o644); err != nil {
		t.Fatalf("write fasta: %v", err)
	}
	rt, err := openRuntime(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := runIndex(ctx, rt, fastaPath, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected malformed file to fail")
	}
	last, err := rt.store.GetJob(ctx, job.Key)
	if err != nil || last == nil || last.Status != job.Failed {
		t.Fatalf("expected failed job, got %+v (%v)", last, err)
	}
}

func TestServe(t *testing.T) {
	cfg := testConfig(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	cfg.Server.Addr = listener.Addr().String()
	_ = listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, t.Logf) }()

	var resp *http.Response
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if resp, err = http.Get("http://" + cfg.Server.Addr + "/healthz"); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status: %d", resp.StatusCode)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatalf("serve did not stop")
	}
}
