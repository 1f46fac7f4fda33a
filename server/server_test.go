package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/seqindex/builder"
	"github.com/viant/seqindex/index"
	"github.com/viant/seqindex/job"
	"github.com/viant/seqindex/service"
	"github.com/viant/seqindex/store"
)

func newTestServer(t *testing.T, start bool, opts ...Option) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	dir := t.TempDir()
	db, err := store.Open(ctx, "", filepath.Join(dir, "seq.sqlite"))
	require.NoError(t, err)
	idx, err := index.New(filepath.Join(dir, "index"))
	require.NoError(t, err)
	metrics := NewMetrics(idx)
	worker := builder.NewWorker(builder.New(idx, db, db, builder.WithObserver(metrics.ObserveBuild)))
	if start {
		worker.Start(ctx)
	}
	svc, err := service.NewService(service.WithStore(db), service.WithIndex(idx), service.WithWorker(worker))
	require.NoError(t, err)
	require.NoError(t, svc.Recover(ctx))
	srv := httptest.NewServer(New(svc, append([]Option{WithMetrics(metrics)}, opts...)...).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		worker.Close()
		_ = db.Close()
	})
	return srv
}

func upload(t *testing.T, srv *httptest.Server, name, content string) *http.Response {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	resp, err := http.Post(srv.URL+"/api/sequence/upload", writer.FormDataContentType(), body)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var ret T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ret))
	return ret
}

func waitForJob(t *testing.T, srv *httptest.Server) *job.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(srv.URL + "/api/sequence/job")
		require.NoError(t, err)
		current := decode[*job.Job](t, resp)
		if current.Status.Terminal() {
			return current
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job did not finish")
	return nil
}

func query(t *testing.T, srv *httptest.Server, payload string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/sequence/query", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func TestServer_UploadAndQuery(t *testing.T) {
	srv := newTestServer(t, true)

	resp, err := http.Get(srv.URL + "/api/sequence/job")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = upload(t, srv, "seqs.fasta", ">A\nACGT\n>B\nACGA\n")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	accepted := decode[*job.Job](t, resp)
	assert.Equal(t, job.Starting, accepted.Status)

	final := waitForJob(t, srv)
	assert.Equal(t, job.Done, final.Status)
	assert.Equal(t, 100, final.Percent)

	resp, err = http.Get(srv.URL + "/api/sequence/upload")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{}, decode[map[string]any](t, resp))

	resp = query(t, srv, `{"seq":"ACGT","dist":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := decode[[]service.QueryResult](t, resp)
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].ID)
	assert.Equal(t, 0, results[0].Distance)
	assert.Equal(t, "B", results[1].ID)
	assert.Equal(t, 1, results[1].Distance)

	resp = query(t, srv, `{"seq":"ACGT","dist":0}`)
	assert.Len(t, decode[[]service.QueryResult](t, resp), 1)

	resp, err = http.Get(srv.URL + "/api/sequence/record/B")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ACGA", decode[store.Sequence](t, resp).Sequence)

	resp, err = http.Get(srv.URL + "/api/sequence/record/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var exposition string
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/metrics")
		if err != nil {
			return false
		}
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		exposition = string(data)
		return strings.Contains(exposition, `seqindex_builds_total{status="DONE"} 1`)
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, exposition, "seqindex_index_entries 2")
	assert.Contains(t, exposition, `seqindex_queries_total{outcome="ok"} 2`)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	stats := decode[service.Stats](t, resp)
	assert.Equal(t, 2, stats.Sequences)
}

func TestServer_RecordNamedLikeRoute(t *testing.T) {
	srv := newTestServer(t, true)
	resp := upload(t, srv, "seqs.fasta", ">upload\nACGT\n>job\nACGA\n")
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, job.Done, waitForJob(t, srv).Status)

	for id, expect := range map[string]string{"upload": "ACGT", "job": "ACGA"} {
		resp, err := http.Get(srv.URL + "/api/sequence/record/" + id)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, id)
		assert.Equal(t, expect, decode[store.Sequence](t, resp).Sequence, id)
	}
}

func TestServer_AccessLog(t *testing.T) {
	var (
		mux   sync.Mutex
		lines []string
	)
	logf := func(format string, args ...any) {
		mux.Lock()
		defer mux.Unlock()
		lines = append(lines, fmt.Sprintf(format, args...))
	}
	srv := newTestServer(t, false, WithLogf(logf))
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		mux.Lock()
		defer mux.Unlock()
		for _, line := range lines {
			if strings.Contains(line, "GET /healthz 200") {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServer_UploadWhileBuilding(t *testing.T) {
	srv := newTestServer(t, false)
	resp := upload(t, srv, "a.fasta", ">A\nACGT\n")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	first := decode[*job.Job](t, resp)

	resp = upload(t, srv, "b.fasta", ">B\nACGA\n")
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, first.Run, decode[*job.Job](t, resp).Run)

	resp, err := http.Get(srv.URL + "/api/sequence/upload")
	require.NoError(t, err)
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, job.Starting, decode[*job.Job](t, resp).Status)
}

func TestServer_FailedBuildReported(t *testing.T) {
	srv := newTestServer(t, true)
	resp := upload(t, srv, "bad.fasta", "no header here\n")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()
	final := waitForJob(t, srv)
	assert.Equal(t, job.Failed, final.Status)
	assert.Equal(t, 100, final.Percent)
	assert.NotEmpty(t, final.Message)
}

func TestServer_BadRequests(t *testing.T) {
	srv := newTestServer(t, false, WithMaxUploadBytes(64))
	var testCases = []struct {
		description string
		payload     string
	}{
		{description: "missing seq", payload: `{"dist":3}`},
		{description: "empty seq", payload: `{"seq":""}`},
		{description: "negative dist", payload: `{"seq":"ACGT","dist":-2}`},
		{description: "not json", payload: `seq=ACGT`},
	}
	for _, testCase := range testCases {
		resp := query(t, srv, testCase.payload)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, testCase.description)
	}

	resp, err := http.Post(srv.URL+"/api/sequence/upload", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = upload(t, srv, "big.fasta", ">A\n"+strings.Repeat("ACGT", 100)+"\n")
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestServer_UploadThrottled(t *testing.T) {
	srv := newTestServer(t, false, WithUploadLimit(0.001, 1))
	resp := upload(t, srv, "a.fasta", ">A\nACGT\n")
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp = upload(t, srv, "b.fasta", ">B\nACGT\n")
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
