//go:build test_unit

package status

import (
	"context"
	"sync"
	"testing"

	aurena "github.com/devgianlu/go-aurena"
	"github.com/devgianlu/go-aurena/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var _ engine.Callbacks = (*Reporter)(nil)

type recordingSink struct {
	loop *Loop

	labels     []string
	positions  []aurena.PositionSample
	messages   []string
	violations int
}

func (s *recordingSink) check() {
	if !s.loop.InLoop() {
		s.violations++
	}
}

func (s *recordingSink) SetState(state aurena.PlaybackState) {
	s.check()
	s.labels = append(s.labels, state.String())
}

func (s *recordingSink) SetPosition(sample aurena.PositionSample) {
	s.check()
	s.positions = append(s.positions, sample)
}

func (s *recordingSink) SetMessage(text string) {
	s.check()
	s.messages = append(s.messages, text)
}

func runLoop(t *testing.T, loop *Loop) func() {
	t.Helper()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, loop.Run(context.Background()))
	}()

	return func() {
		loop.Close()
		wg.Wait()
	}
}

func TestReporterStateLabels(t *testing.T) {
	defer goleak.VerifyNone(t)

	loop := NewLoop()
	sink := &recordingSink{loop: loop}
	r := NewReporter(&ReporterOptions{Log: &aurena.NullLogger{}, Loop: loop, Sink: sink})

	stop := runLoop(t, loop)

	// callbacks come from a foreign goroutine
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, code := range []int{2, 0, 4, 3, 9, 4} {
			r.OnStateChanged(code)
		}
	}()
	wg.Wait()

	stop()

	assert.Equal(t, []string{"READY", "PLAYING", "PAUSED", "PLAYING"}, sink.labels)
	assert.Zero(t, sink.violations)
	assert.Equal(t, aurena.PlaybackStatePlaying, r.State())
}

func TestReporterCoalescesPositions(t *testing.T) {
	loop := NewLoop()
	sink := &recordingSink{loop: loop}
	r := NewReporter(&ReporterOptions{Loop: loop, Sink: sink})

	// nothing runs before the loop does
	r.OnPositionChanged(1000, 60000)
	r.OnPositionChanged(1250, 60000)
	r.OnPositionChanged(1500, 60000)
	r.OnMessage("error received from media pipeline")

	loop.Close()
	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, []aurena.PositionSample{{Position: 1500, Duration: 60000}}, sink.positions)
	assert.Equal(t, []string{"error received from media pipeline"}, sink.messages)
	assert.Zero(t, sink.violations)
	assert.Equal(t, aurena.PositionSample{Position: 1500, Duration: 60000}, r.Position())
}

func TestReporterEngineReady(t *testing.T) {
	loop := NewLoop()

	var ready, inLoop bool
	r := NewReporter(&ReporterOptions{Loop: loop, Sink: Sinks{}, OnEngineReady: func() {
		ready = true
		inLoop = loop.InLoop()
	}})

	r.OnEngineReady()
	assert.False(t, ready)

	loop.Close()
	require.NoError(t, loop.Run(context.Background()))
	assert.True(t, ready)
	assert.True(t, inLoop)
}

func TestLoopClosed(t *testing.T) {
	loop := NewLoop()
	loop.Close()

	assert.False(t, loop.Post(func() {}))
	assert.NoError(t, loop.Run(context.Background()))
	assert.False(t, loop.InLoop())
}

func TestLoopContext(t *testing.T) {
	loop := NewLoop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, loop.Run(ctx), context.Canceled)
}

func TestDisplay(t *testing.T) {
	d := NewDisplay()
	assert.Equal(t, "NULL", d.Snapshot().State)
	assert.Equal(t, "00:00:00 / 00:00:00", d.Snapshot().TimeText)

	Sinks{d, &LogSink{Log: &aurena.NullLogger{}}}.SetState(aurena.PlaybackStatePaused)
	d.SetPosition(aurena.PositionSample{Position: 61000, Duration: 3723000})
	d.SetMessage("hello")

	snap := d.Snapshot()
	assert.Equal(t, "PAUSED", snap.State)
	assert.Equal(t, "00:01:01 / 01:02:03", snap.TimeText)
	assert.Equal(t, "hello", snap.Message)
}
