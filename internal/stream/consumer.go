package stream

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/pocketbench/internal/logging"
	"github.com/tOgg1/pocketbench/internal/models"
)

const defaultReadSize = 32 * 1024

// ErrIdleTimeout is returned when no bytes arrived within the idle timeout.
var ErrIdleTimeout = errors.New("run stream idle timeout")

// Stats counts what the consumer saw.
type Stats struct {
	Bytes     int64
	Frames    int
	Delivered int
	Discarded int
	Ignored   int
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithIdleTimeout ends the stream when no bytes arrive for d. onIdle is
// called once when the timeout fires and must unblock the pending Read,
// typically by cancelling the request context.
func WithIdleTimeout(d time.Duration, onIdle func()) Option {
	return func(c *Consumer) {
		c.idleTimeout = d
		c.onIdle = onIdle
	}
}

// WithLogger sets the logger used for discarded-frame diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// WithReadSize sets the read buffer size.
func WithReadSize(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.readSize = n
		}
	}
}

// Consumer is a lazy, finite, non-restartable sequence of StreamEvents read
// from a run response body. The sequence ends at the first done event or when
// the body ends, whichever comes first.
type Consumer struct {
	reader   io.Reader
	framer   Framer
	readSize int
	buf      []byte

	queue    []models.StreamEvent
	finished bool
	endErr   error

	idleTimeout time.Duration
	onIdle      func()
	idleTimer   *time.Timer
	idleFired   atomic.Bool

	stats  Stats
	logger zerolog.Logger
}

// NewConsumer creates a consumer over r.
func NewConsumer(r io.Reader, opts ...Option) *Consumer {
	c := &Consumer{
		reader:   r,
		readSize: defaultReadSize,
		logger:   logging.Component("stream"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.buf = make([]byte, c.readSize)
	return c
}

// Next returns the next event. It returns io.EOF once the sequence has ended
// normally (done observed or body closed), ErrIdleTimeout when the idle
// watchdog ended it, or the underlying read error.
func (c *Consumer) Next(ctx context.Context) (models.StreamEvent, error) {
	for {
		if len(c.queue) > 0 {
			event := c.queue[0]
			c.queue = c.queue[1:]
			c.stats.Delivered++
			if event.Done {
				c.finish(io.EOF)
				c.queue = nil
			}
			return event, nil
		}
		if c.finished {
			return models.StreamEvent{}, c.endErr
		}
		if err := ctx.Err(); err != nil {
			c.finish(c.classify(err))
			continue
		}

		c.armIdle()
		n, err := c.reader.Read(c.buf)
		c.disarmIdle()
		if n > 0 {
			c.stats.Bytes += int64(n)
			c.ingest(c.buf[:n])
		}
		if err != nil {
			c.finish(c.classify(err))
		}
	}
}

// Stats returns a copy of the counters.
func (c *Consumer) Stats() Stats {
	return c.stats
}

// Drain consumes the whole sequence, calling fn for every event in order. It
// returns true when a done event ended the sequence. A normal end of body is
// not an error.
func (c *Consumer) Drain(ctx context.Context, fn func(models.StreamEvent)) (bool, error) {
	for {
		event, err := c.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, err
		}
		fn(event)
		if event.Done {
			return true, nil
		}
	}
}

func (c *Consumer) ingest(chunk []byte) {
	for _, frag := range c.framer.Push(chunk) {
		c.stats.Frames++
		event, ok := decodeOrSkip(frag)
		if !ok {
			c.stats.Discarded++
			c.logger.Debug().Int("bytes", len(frag.Data)).Msg("discarded malformed frame")
			continue
		}
		if !event.Recognized() {
			c.stats.Ignored++
			continue
		}
		c.queue = append(c.queue, event)
	}
}

func (c *Consumer) classify(err error) error {
	if c.idleFired.Load() {
		return ErrIdleTimeout
	}
	return err
}

func (c *Consumer) finish(err error) {
	if c.finished {
		return
	}
	c.finished = true
	c.endErr = err
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	if tail := c.framer.Pending(); len(tail.Data) > 0 {
		c.stats.Discarded++
		c.logger.Debug().Int("bytes", len(tail.Data)).Msg("discarded unterminated trailing frame")
	}
	c.framer.Reset()
}

func (c *Consumer) armIdle() {
	if c.idleTimeout <= 0 || c.onIdle == nil {
		return
	}
	if c.idleTimer == nil {
		c.idleTimer = time.AfterFunc(c.idleTimeout, func() {
			c.idleFired.Store(true)
			c.onIdle()
		})
		return
	}
	c.idleTimer.Reset(c.idleTimeout)
}

// disarmIdle stops the watchdog once a Read returns, so time spent handling
// events never counts as silence.
func (c *Consumer) disarmIdle() {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
}
