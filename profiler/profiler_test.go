package profiler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestProfiler_Record(t *testing.T) {
	p := New(Options{MaxSamples: 2}, nil)

	p.record("get", 10*time.Millisecond)
	p.record("get", 30*time.Millisecond)
	p.record("get", 20*time.Millisecond)

	st, ok := p.Stats("get")
	require.True(t, ok)
	assert.Equal(t, int64(3), st.Count)
	assert.Equal(t, 10*time.Millisecond, st.Min)
	assert.Equal(t, 30*time.Millisecond, st.Max)
	assert.Equal(t, 25*time.Millisecond, st.Mean, "the mean covers the retained samples only")

	_, ok = p.Stats("collate")
	assert.False(t, ok)
}

func TestProfiler_TrackAndCounters(t *testing.T) {
	p := New(Options{}, nil)

	done := p.Track("fetch")
	time.Sleep(time.Millisecond)
	done()
	p.Add("images", 4)
	p.Add("images", 2)

	st, ok := p.Stats("fetch")
	require.True(t, ok)
	assert.Equal(t, int64(1), st.Count)
	assert.GreaterOrEqual(t, st.Min, time.Millisecond)
	assert.Equal(t, int64(6), p.Counter("images"))
}

func TestProfiler_NilIsNoop(t *testing.T) {
	var p *Profiler

	p.Track("get")()
	p.Add("images", 1)
	p.Start(context.Background())
	p.Stop()
	p.Report()

	_, ok := p.Stats("get")
	assert.False(t, ok)
	assert.Zero(t, p.Counter("images"))
}

func TestProfiler_Report(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := New(Options{}, zap.New(core).Sugar())

	p.record("get", time.Millisecond)
	p.Add("images", 3)
	p.Report()

	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	assert.Equal(t, "pipeline profile", entries[0].Message)
	assert.Equal(t, int64(3), entries[0].ContextMap()["images"])
	assert.Equal(t, "stage timing", entries[1].Message)
	assert.Equal(t, "get", entries[1].ContextMap()["stage"])
}

func TestProfiler_StartStop(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := New(Options{ReportInterval: 5 * time.Millisecond}, zap.New(core).Sugar())

	p.Start(context.Background())
	p.Start(context.Background())

	require.Eventually(t, func() bool {
		return logs.FilterMessage("pipeline profile").Len() >= 2
	}, 5*time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()

	n := logs.FilterMessage("pipeline profile").Len()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, logs.FilterMessage("pipeline profile").Len(), "no reports after Stop")
}
