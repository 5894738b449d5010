package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	mu   sync.Mutex
	line string
}

func (s *stubSource) LatestLog() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.line
}

func (s *stubSource) set(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.line = line
}

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestObserver_PollPublishesOnlyNewLines(t *testing.T) {
	src := &stubSource{}
	rec := &recorder{}
	o := NewObserver(src, WithClock(NewManualClock(time.Unix(0, 0))))
	o.Start(rec.add)
	defer o.Stop()

	o.Poll()
	src.set("frame=  10")
	o.Poll()
	o.Poll()
	src.set("   ")
	o.Poll()
	src.set("frame=  20")
	o.Poll()

	assert.Equal(t, []string{"frame=  10", "frame=  20"}, rec.snapshot())
}

func TestObserver_TicksDriveUpdates(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	src := &stubSource{line: "size=  1kB"}
	rec := &recorder{}
	o := NewObserver(src, WithClock(clock))

	o.Start(rec.add)
	assert.Equal(t, StatePolling, o.State())
	require.Equal(t, 1, clock.Tickers())

	clock.Advance(DefaultInterval - time.Millisecond)
	assert.Empty(t, rec.snapshot())

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, time.Millisecond)

	src.set("size=  2kB")
	clock.Advance(DefaultInterval)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, time.Millisecond)

	assert.Equal(t, []string{"size=  1kB", "size=  2kB"}, rec.snapshot())
}

func TestObserver_Stop(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	o := NewObserver(&stubSource{line: "x"}, WithClock(clock), WithInterval(time.Second))
	assert.Equal(t, StateIdle, o.State())

	o.Stop()
	o.Start(func(string) {})
	o.Stop()
	o.Stop()

	assert.Equal(t, StateIdle, o.State())
	assert.Equal(t, 0, clock.Tickers())
}

func TestObserver_RestartResetsLastLine(t *testing.T) {
	src := &stubSource{line: "done"}
	rec := &recorder{}
	o := NewObserver(src, WithClock(NewManualClock(time.Unix(0, 0))))

	o.Start(rec.add)
	o.Poll()
	o.Start(rec.add)
	o.Poll()
	o.Stop()

	assert.Equal(t, []string{"done", "done"}, rec.snapshot())
}

func TestManualClock_DropsUnreadTicks(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	ticker := clock.NewTicker(time.Second)

	clock.Advance(3 * time.Second)
	got := <-ticker.C()
	assert.True(t, time.Unix(1, 0).Equal(got))
	select {
	case <-ticker.C():
		t.Fatal("expected pending ticks to be dropped")
	default:
	}
	assert.True(t, time.Unix(3, 0).Equal(clock.Now()))

	ticker.Stop()
	assert.Equal(t, 0, clock.Tickers())
}

func TestRealClock(t *testing.T) {
	ticker := RealClock{}.NewTicker(time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker never fired")
	}
}
