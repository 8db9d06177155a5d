package benchapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/pocketbench/internal/benchmock"
	"github.com/tOgg1/pocketbench/internal/models"
	"github.com/tOgg1/pocketbench/internal/stream"
)

func newTestClient(t *testing.T, cfg benchmock.Config) (*Client, *benchmock.Server) {
	t.Helper()
	mock := benchmock.New(cfg)
	srv := httptest.NewServer(mock)
	t.Cleanup(srv.Close)
	client, err := New(srv.URL)
	require.NoError(t, err)
	return client, mock
}

func TestNewValidatesURL(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
	_, err = New("ftp://example.com")
	require.Error(t, err)

	c, err := New("http://localhost:5000/")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:5000", c.BaseURL())
}

func TestRunStreamsDecodableFrames(t *testing.T) {
	client, mock := newTestClient(t, benchmock.Config{FragmentSize: 5})
	req := models.NewRunRequest(
		[]models.QueueItem{{RepoID: "org/a", Filename: "a.gguf"}},
		[]string{"mmlu"},
		models.DefaultSettings(),
	)

	body, err := client.Run(context.Background(), req)
	require.NoError(t, err)
	defer body.Close()

	consumer := stream.NewConsumer(body)
	var logFile string
	var text strings.Builder
	done, err := consumer.Drain(context.Background(), func(ev models.StreamEvent) {
		if ev.LogFile() != "" {
			logFile = ev.LogFile()
		}
		text.WriteString(ev.Log)
	})
	require.NoError(t, err)
	require.True(t, done)
	require.NotEmpty(t, logFile)

	stored, ok := mock.Log(logFile)
	require.True(t, ok)
	require.Equal(t, stored, text.String())

	got := mock.Requests()
	require.Len(t, got, 1)
	require.Equal(t, 0, got[0].Jobs[0].Limit)
	require.Equal(t, []string{"mmlu"}, got[0].Jobs[0].Tasks)
}

func TestRunRejectedWhileBusy(t *testing.T) {
	client, mock := newTestClient(t, benchmock.Config{HoldOpen: true})
	req := models.RunRequest{Jobs: []models.Job{{RepoID: "r", Filename: "f"}}}

	body, err := client.Run(context.Background(), req)
	require.NoError(t, err)
	defer body.Close()
	require.Eventually(t, mock.Running, time.Second, 5*time.Millisecond)

	_, err = client.Run(context.Background(), req)
	require.True(t, models.IsTransport(err))
	var status *StatusError
	require.ErrorAs(t, err, &status)
	require.Equal(t, http.StatusConflict, status.Code)

	resp, err := client.Stop(context.Background())
	require.NoError(t, err)
	require.True(t, resp.OK())
	require.Equal(t, "Process stopped", resp.Msg)

	rest, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Contains(t, string(rest), "[STOPPED] User Cancelled.")
}

func TestStopWhenIdle(t *testing.T) {
	client, _ := newTestClient(t, benchmock.Config{})
	resp, err := client.Stop(context.Background())
	require.NoError(t, err)
	require.False(t, resp.OK())
	require.Equal(t, "No running process found", resp.Msg)
}

func TestTasksAndFallback(t *testing.T) {
	client, _ := newTestClient(t, benchmock.Config{})
	tasks := client.Tasks(context.Background())
	require.Equal(t, []string{"arc_challenge", "gsm8k", "hellaswag", "lambada_openai", "mmlu", "piqa", "truthfulqa_mc2", "winogrande"}, tasks)

	failing, _ := newTestClient(t, benchmock.Config{FailTasks: true})
	_, err := failing.FetchTasks(context.Background())
	require.True(t, models.IsTransport(err))
	require.Equal(t, []string{"mmlu", "gsm8k"}, failing.Tasks(context.Background()))

	unreachable, err := New("http://127.0.0.1:1", WithTimeout(200*time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, FallbackTasks, unreachable.Tasks(context.Background()))
}

func TestLogHistoryEndpoints(t *testing.T) {
	client, mock := newTestClient(t, benchmock.Config{})
	mock.AddLog("BATCH_20250101_120000.log", "hello")
	ctx := context.Background()

	entries, err := client.ListLogs(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	text, err := client.LogContent(ctx, "BATCH_20250101_120000.log")
	require.NoError(t, err)
	require.Equal(t, "hello", text)

	_, err = client.LogContent(ctx, "missing.log")
	var nf *models.NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "missing.log", nf.Filename)

	require.NoError(t, client.DeleteLog(ctx, "BATCH_20250101_120000.log"))
	var de *models.DeleteError
	require.ErrorAs(t, client.DeleteLog(ctx, "BATCH_20250101_120000.log"), &de)
	require.Equal(t, "File not found", de.Message)

	entries, err = client.ListLogs(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestListLogsErrorObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"permission denied"}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)
	_, err = client.ListLogs(context.Background())
	require.True(t, models.IsTransport(err))
	require.Contains(t, err.Error(), "permission denied")
}

func TestLogContentPlainTextFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Query().Get("filename") == "" {
			_, _ = w.Write([]byte("No filename"))
			return
		}
		_, _ = w.Write([]byte("Error reading log: 404 Not Found: The requested URL was not found on the server."))
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	_, err = client.LogContent(context.Background(), "BATCH_9.log")
	var nf *models.NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "BATCH_9.log", nf.Filename)
	require.True(t, strings.HasPrefix(nf.Message, "Error reading log:"))

	_, err = client.LogContent(context.Background(), "")
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "No filename", nf.Message)
}

func TestWithTimeoutCopiesCallerClient(t *testing.T) {
	hc := &http.Client{Timeout: time.Minute}
	client, err := New("http://127.0.0.1:5000", WithHTTPClient(hc), WithTimeout(time.Second))
	require.NoError(t, err)
	require.Equal(t, time.Minute, hc.Timeout)
	require.Equal(t, time.Second, client.http.Timeout)
}

func TestCollaborators(t *testing.T) {
	client, _ := newTestClient(t, benchmock.Config{})
	ctx := context.Background()

	results, err := client.Search(ctx, "mistral")
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = client.Search(ctx, "  ")
	require.NoError(t, err)
	require.Empty(t, results)

	files, err := client.Files(ctx, "TheBloke/Llama-2-7B-GGUF")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	local, err := client.LocalModels(ctx)
	require.NoError(t, err)
	require.Len(t, local, 2)
	require.True(t, local[0].Queueable())
	require.False(t, local[1].Queueable())

	status, err := client.DeleteModel(ctx, models.DeleteModelRequest{Path: local[1].Path})
	require.NoError(t, err)
	require.True(t, status.OK())

	status, err = client.DeleteModel(ctx, models.DeleteModelRequest{RepoID: "x"})
	require.NoError(t, err)
	require.Equal(t, "Missing parameters", status.Msg)

	info, err := client.SystemInfo(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, info.Display)
}

func TestTransportErrorOnRefusedConnection(t *testing.T) {
	client, err := New("http://127.0.0.1:1")
	require.NoError(t, err)
	_, err = client.Stop(context.Background())
	var te *models.TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, "stop", te.Op)
}
