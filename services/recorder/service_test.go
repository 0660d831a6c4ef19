package recorder

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"fahstats/lib/extract"
	"fahstats/lib/recordstore"
	"fahstats/lib/snapshotdb"
	"fahstats/lib/telemetry"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// serves whatever document is currently set, gzip-compressed
type summaryServer struct {
	mu  sync.Mutex
	doc string
}

func (s *summaryServer) set(doc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
}

func (s *summaryServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte(s.doc))
	gz.Close()
	w.Write(buf.Bytes())
}

func TestRunTwiceAppends(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:recorder")
	defer cleanup()

	summary := &summaryServer{}
	server := httptest.NewServer(summary)
	defer server.Close()

	storePath := filepath.Join(t.TempDir(), "fahuserdata.csv")
	svc := NewService(nil)
	req := RunRequest{
		SourceURL: server.URL + "/daily_user_summary.txt.gz",
		Username:  "PS3EdOlkkola",
		StorePath: storePath,
	}
	ctx := context.Background()

	summary.set("PS3EdOlkkola,42,1000000,TeamX\n")
	first, err := svc.Run(ctx, req)
	require.NoError(t, err)
	require.Equal(t, int64(42), first.Score)
	require.WithinDuration(t, time.Now(), first.Time, time.Minute)

	summary.set("PS3EdOlkkola,43,1000001,TeamX\n")
	second, err := svc.Run(ctx, req)
	require.NoError(t, err)
	require.Equal(t, int64(43), second.Score)

	content, err := os.ReadFile(storePath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "timestamp,username,score,workunits,team", lines[0])
	require.True(t, strings.HasSuffix(lines[1], ",PS3EdOlkkola,42,1000000,TeamX"))
	require.True(t, strings.HasSuffix(lines[2], ",PS3EdOlkkola,43,1000001,TeamX"))

	records, err := recordstore.Read(storePath)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, extract.UserStats{
		Username:  "PS3EdOlkkola",
		Score:     42,
		WorkUnits: 1000000,
		Team:      "TeamX",
	}, records[0].UserStats)
}

func TestRunUnknownUserLeavesStoreUntouched(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:recorder")
	defer cleanup()

	summary := &summaryServer{}
	summary.set("PS3EdOlkkola,42,1000000,TeamX\n")
	server := httptest.NewServer(summary)
	defer server.Close()

	storePath := filepath.Join(t.TempDir(), "fahuserdata.csv")
	svc := NewService(nil)

	_, err := svc.Run(context.Background(), RunRequest{
		SourceURL: server.URL,
		Username:  "Z",
		StorePath: storePath,
	})
	require.ErrorIs(t, err, extract.ErrUserNotFound)

	_, statErr := os.Stat(storePath)
	require.True(t, os.IsNotExist(statErr))
}

func TestRunFetchFailureLeavesStoreUntouched(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:recorder")
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone fishing", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	storePath := filepath.Join(t.TempDir(), "fahuserdata.csv")
	svc := NewService(nil)

	_, err := svc.Run(context.Background(), RunRequest{
		SourceURL: server.URL,
		Username:  "PS3EdOlkkola",
		StorePath: storePath,
	})
	require.Error(t, err)

	_, statErr := os.Stat(storePath)
	require.True(t, os.IsNotExist(statErr))
}

func TestRunEmitsStageSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		provider.Shutdown(context.Background())
	})

	summary := &summaryServer{}
	summary.set("PS3EdOlkkola,42,1000000,TeamX\n")
	server := httptest.NewServer(summary)
	defer server.Close()

	storePath := filepath.Join(t.TempDir(), "fahuserdata.csv")
	svc := NewService(nil)

	_, err := svc.Run(context.Background(), RunRequest{
		SourceURL: server.URL,
		Username:  "PS3EdOlkkola",
		StorePath: storePath,
	})
	require.NoError(t, err)

	spans := exporter.GetSpans()
	names := make(map[string]tracetest.SpanStub, len(spans))
	for _, s := range spans {
		names[s.Name] = s
	}
	for _, stage := range []string{"Fetch", "Extract", "Append", "Run"} {
		require.Contains(t, names, stage)
	}
	runCtx := names["Run"].SpanContext
	for _, stage := range []string{"Fetch", "Extract", "Append"} {
		require.Equal(t, runCtx.SpanID(), names[stage].Parent.SpanID())
	}
}

func TestRunMirrorsToSnapshotDB(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:recorder")
	defer cleanup()

	summary := &summaryServer{}
	summary.set("PS3EdOlkkola,42,1000000,TeamX\n")
	server := httptest.NewServer(summary)
	defer server.Close()

	mirror, err := snapshotdb.Open(":memory:")
	require.NoError(t, err)
	defer mirror.Close()

	storePath := filepath.Join(t.TempDir(), "fahuserdata.csv")
	svc := NewService(&mirror)

	ctx := context.Background()
	record, err := svc.Run(ctx, RunRequest{
		SourceURL: server.URL,
		Username:  "PS3EdOlkkola",
		StorePath: storePath,
	})
	require.NoError(t, err)

	mirrored, err := mirror.History(ctx, "PS3EdOlkkola")
	require.NoError(t, err)
	require.Len(t, mirrored, 1)
	require.Equal(t, record.UserStats, mirrored[0].UserStats)
	require.Equal(t, record.Time.Unix(), mirrored[0].Time.Unix())

	fromCsv, err := recordstore.Read(storePath)
	require.NoError(t, err)
	require.Equal(t, mirrored[0].UserStats, fromCsv[0].UserStats)
}
