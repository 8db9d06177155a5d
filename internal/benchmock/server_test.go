package benchmock

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/pocketbench/internal/models"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
}

func postJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestRunStreamsFramesAndWritesLog(t *testing.T) {
	mock := New(Config{Now: fixedClock})
	srv := httptest.NewServer(mock)
	defer srv.Close()

	req := models.RunRequest{
		Jobs:      []models.Job{{RepoID: "org/repo", Filename: "m.gguf", Tasks: []string{"gsm8k"}}},
		Batch:     1,
		Device:    "cpu",
		Verbosity: "INFO",
	}
	resp := postJSON(t, srv.URL+"/api/run", req)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	blocks := strings.Split(strings.TrimSuffix(string(body), "\n\n"), "\n\n")
	require.GreaterOrEqual(t, len(blocks), 4)

	var first, last framePayload
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(blocks[0], "data: ")), &first))
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(blocks[len(blocks)-1], "data: ")), &last))
	require.Equal(t, "BATCH_20260314_092653.log", first.StartInfo.LogFile)
	require.False(t, first.Done)
	require.True(t, last.Done)

	content, ok := mock.Log("BATCH_20260314_092653.log")
	require.True(t, ok)
	require.Contains(t, content, "JOB 1/1: m.gguf")
	require.Contains(t, content, batchComplete)
	require.Len(t, mock.Requests(), 1)
	require.False(t, mock.Running())
}

func TestFragmentedStreamReassemblesToSameBytes(t *testing.T) {
	whole := New(Config{Now: fixedClock})
	split := New(Config{Now: fixedClock, FragmentSize: 3})
	req := models.RunRequest{Jobs: []models.Job{{RepoID: "r", Filename: "f", Tasks: []string{"a", "b"}}}}

	read := func(h http.Handler) string {
		srv := httptest.NewServer(h)
		defer srv.Close()
		resp := postJSON(t, srv.URL+"/api/run", req)
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(data)
	}
	require.Equal(t, read(whole), read(split))
}

func TestLogNamesAreUnique(t *testing.T) {
	mock := New(Config{Now: fixedClock})
	mock.mu.Lock()
	first := mock.newLogNameLocked()
	mock.logs[first] = &logFile{}
	second := mock.newLogNameLocked()
	mock.mu.Unlock()
	require.Equal(t, "BATCH_20260314_092653.log", first)
	require.Equal(t, "BATCH_20260314_092653_1.log", second)
}

func TestStopWithoutRun(t *testing.T) {
	srv := httptest.NewServer(New(Config{}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/stop", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out models.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "error", out.Status)
	require.Equal(t, "No running process found", out.Msg)
}

func TestLogsListContentDelete(t *testing.T) {
	mock := New(Config{Now: fixedClock})
	mock.AddLog("BATCH_20250101_120000.log", strings.Repeat("x", 2048))
	mock.AddLog("BATCH_20250202_080000.log", "second")
	mock.AddLog("manual__qwen.log", "custom")
	srv := httptest.NewServer(mock)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/logs_list")
	require.NoError(t, err)
	var entries []models.LogHistoryEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	resp.Body.Close()

	require.Len(t, entries, 3)
	require.Equal(t, "manual__qwen.log", entries[0].Filename)
	require.Equal(t, "qwen", entries[0].Name)
	require.Equal(t, "2026-03-14 09:26", entries[0].Date)
	require.Equal(t, "BATCH_20250202_080000.log", entries[1].Filename)
	require.Equal(t, "2025-02-02 08:00", entries[1].Date)
	require.Equal(t, "2.0 KB", entries[2].Size)

	resp, err = http.Get(srv.URL + "/api/logs_content?filename=missing.log")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/logs_delete", map[string]string{"filename": "manual__qwen.log"})
	var status models.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	require.True(t, status.OK())

	_, ok := mock.Log("manual__qwen.log")
	require.False(t, ok)
}

func TestDisplayHelpers(t *testing.T) {
	mod := time.Date(2024, 5, 6, 7, 8, 0, 0, time.UTC)
	require.Equal(t, "BATCH_20240101_000000.log", displayName("BATCH_20240101_000000.log"))
	require.Equal(t, "model", displayName("20240101__model.log"))
	require.Equal(t, "2024-01-01 00:00", displayDate("BATCH_20240101_000000.log", mod))
	require.Equal(t, "2024-05-06 07:08", displayDate("BATCH_bad.log", mod))
	require.Equal(t, "2024-05-06 07:08", displayDate("other.log", mod))
}
