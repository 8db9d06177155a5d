package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/pocketbench/internal/models"
)

// chunkReader returns one chunk per Read call.
type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func collect(t *testing.T, chunks ...string) ([]models.StreamEvent, *Consumer) {
	t.Helper()
	c := NewConsumer(&chunkReader{chunks: chunks})
	var events []models.StreamEvent
	_, err := c.Drain(context.Background(), func(ev models.StreamEvent) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	return events, c
}

func TestFramerCarriesPartialBlocks(t *testing.T) {
	var f Framer
	require.Empty(t, f.Push([]byte(`data: {"lo`)))
	require.Empty(t, f.Push([]byte(`g":"hi"}`)))
	require.Equal(t, `data: {"log":"hi"}`, string(f.Pending().Data))
	require.False(t, f.Pending().Complete)

	frags := f.Push([]byte("\n\n"))
	require.Len(t, frags, 1)
	require.True(t, frags[0].Complete)
	require.Equal(t, `data: {"log":"hi"}`, string(frags[0].Data))
	require.Empty(t, f.Pending().Data)
}

func TestFramerSplitsSeparatorAcrossChunks(t *testing.T) {
	var f Framer
	require.Empty(t, f.Push([]byte("data: {}\n")))
	frags := f.Push([]byte("\ndata: {\"log\":\"x\"}\n\ndata"))
	require.Len(t, frags, 2)
	require.Equal(t, "data: {}", string(frags[0].Data))
	require.Equal(t, `data: {"log":"x"}`, string(frags[1].Data))
	require.Equal(t, "data", string(f.Pending().Data))
}

func TestFragmentedFrameYieldsOneLog(t *testing.T) {
	events, _ := collect(t, `data: {"lo`, `g":"hi"}`, "\n\n")
	require.Len(t, events, 1)
	require.True(t, events[0].HasLog)
	require.Equal(t, "hi", events[0].Log)
}

func TestStartInfoThenDone(t *testing.T) {
	c := NewConsumer(&chunkReader{chunks: []string{
		"data: {\"start_info\":{\"log_file\":\"BATCH_1.log\"}}\n\n",
		"data: {\"done\":true}\n\n",
		"data: {\"log\":\"after done\"}\n\n",
	}})

	var events []models.StreamEvent
	done, err := c.Drain(context.Background(), func(ev models.StreamEvent) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	require.True(t, done)
	require.Len(t, events, 2)
	require.Equal(t, "BATCH_1.log", events[0].LogFile())
	require.True(t, events[1].Done)

	_, err = c.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestMalformedBlockBetweenValidBlocks(t *testing.T) {
	events, c := collect(t,
		"data: {\"log\":\"a\"}\n\n",
		"data: {not json\n\n",
		"garbage\n\n",
		"data: {\"log\":\"b\"}\n\n",
	)
	require.Len(t, events, 2)
	require.Equal(t, "a", events[0].Log)
	require.Equal(t, "b", events[1].Log)
	require.Equal(t, 2, c.Stats().Discarded)
}

func TestSingleFrameCarriesAllFields(t *testing.T) {
	events, _ := collect(t, "data: {\"log\":\"x\",\"start_info\":{\"log_file\":\"f.log\"},\"done\":true}\n\n")
	require.Len(t, events, 1)
	require.Equal(t, "x", events[0].Log)
	require.Equal(t, "f.log", events[0].LogFile())
	require.True(t, events[0].Done)
}

func TestUnrecognizedAndNullFieldsIgnored(t *testing.T) {
	events, c := collect(t,
		"data: {\"results\":[],\"start_info\":null,\"done\":false}\n\n",
		"data: {\"log\":\"\"}\n\n",
		"data: {\"log\":\"ok\",\"start_info\":null,\"done\":0}\n\n",
	)
	require.Len(t, events, 1)
	require.Equal(t, "ok", events[0].Log)
	require.Nil(t, events[0].StartInfo)
	require.False(t, events[0].Done)
	require.Equal(t, 2, c.Stats().Ignored)
}

func TestTruthyDone(t *testing.T) {
	cases := map[string]bool{
		`true`: true, `1`: true, `"yes"`: true, `{}`: true,
		`false`: false, `0`: false, `""`: false, `null`: false,
	}
	for raw, want := range cases {
		require.Equal(t, want, truthy([]byte(raw)), raw)
	}
}

func TestUnterminatedTailDiscardedAtEOF(t *testing.T) {
	events, c := collect(t, "data: {\"log\":\"a\"}\n\n", `data: {"log":"tail"}`)
	require.Len(t, events, 1)
	require.Equal(t, 1, c.Stats().Discarded)
}

func TestEndOfBodyWithoutDone(t *testing.T) {
	c := NewConsumer(strings.NewReader("data: {\"log\":\"a\"}\n\n"))
	done, err := c.Drain(context.Background(), func(models.StreamEvent) {})
	require.NoError(t, err)
	require.False(t, done)
}

func TestReadErrorSurfaced(t *testing.T) {
	boom := errors.New("connection reset")
	c := NewConsumer(io.MultiReader(strings.NewReader("data: {\"log\":\"a\"}\n\n"), errReader{boom}))

	ev, err := c.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a", ev.Log)

	_, err = c.Next(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestIdleTimeoutEndsStream(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	c := NewConsumer(pr, WithIdleTimeout(20*time.Millisecond, func() {
		_ = pr.CloseWithError(errors.New("cancelled"))
	}))
	go func() {
		_, _ = pw.Write([]byte("data: {\"log\":\"a\"}\n\n"))
	}()

	ev, err := c.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a", ev.Log)

	_, err = c.Next(context.Background())
	require.ErrorIs(t, err, ErrIdleTimeout)
}

// pacedReader yields one chunk per Read after waiting gap.
type pacedReader struct {
	chunks []string
	gap    time.Duration
}

func (r *pacedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	time.Sleep(r.gap)
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

func TestIdleTimeoutIgnoresTimeSpentHandlingEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &pacedReader{gap: 60 * time.Millisecond, chunks: []string{
		"data: {\"log\":\"a\"}\n\n",
		"data: {\"log\":\"b\"}\n\n",
		"data: {\"log\":\"c\"}\n\n",
		"data: {\"done\":true}\n\n",
	}}
	c := NewConsumer(r, WithIdleTimeout(100*time.Millisecond, cancel))

	var logs []string
	sawDone, err := c.Drain(ctx, func(ev models.StreamEvent) {
		time.Sleep(50 * time.Millisecond)
		if ev.Log != "" {
			logs = append(logs, ev.Log)
		}
	})
	require.NoError(t, err)
	require.True(t, sawDone)
	require.Equal(t, []string{"a", "b", "c"}, logs)
}

func TestIdleTimeoutReportedAfterContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The read outlasts the timeout but still returns data; the watchdog has
	// already cancelled ctx by then.
	r := &pacedReader{gap: 80 * time.Millisecond, chunks: []string{
		"data: {\"log\":\"a\"}\n\n",
		"data: {\"log\":\"b\"}\n\n",
	}}
	c := NewConsumer(r, WithIdleTimeout(20*time.Millisecond, cancel))

	ev, err := c.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", ev.Log)

	_, err = c.Next(ctx)
	require.ErrorIs(t, err, ErrIdleTimeout)
}

func TestCancelledContextStopsBeforeRead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewConsumer(strings.NewReader("data: {\"log\":\"a\"}\n\n"))
	_, err := c.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
