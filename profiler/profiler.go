// Package profiler times pipeline stages and reports throughput and memory
// use while batches are produced.
package profiler

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Options configures a Profiler.
type Options struct {
	// ReportInterval is how often Start logs a report (default: 10s).
	ReportInterval time.Duration
	// MaxSamples bounds the durations kept per stage (default: 1000).
	MaxSamples int
}

// OpStats summarizes the timings of one stage.
type OpStats struct {
	// Count is the number of completed operations, including trimmed samples.
	Count int64
	// Mean is over the retained samples.
	Mean     time.Duration
	Min, Max time.Duration
}

type timer struct {
	durations []time.Duration
	total     time.Duration
	min, max  time.Duration
	count     int64
}

// Profiler collects stage timings and counters. A nil *Profiler is valid and
// records nothing.
type Profiler struct {
	log            *zap.SugaredLogger
	reportInterval time.Duration
	maxSamples     int

	mu       sync.RWMutex
	start    time.Time
	timers   map[string]*timer
	counters map[string]int64
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New returns a profiler that logs its reports to log.
func New(opts Options, log *zap.SugaredLogger) *Profiler {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = 10 * time.Second
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 1000
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Profiler{
		log:            log,
		reportInterval: opts.ReportInterval,
		maxSamples:     opts.MaxSamples,
		start:          time.Now(),
		timers:         make(map[string]*timer),
		counters:       make(map[string]int64),
	}
}

// Start logs a report every ReportInterval until Stop or ctx is done.
// Calling it again while running has no effect.
func (p *Profiler) Start(ctx context.Context) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.start = time.Now()

	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.reportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Report()
			}
		}
	}()
}

// Stop ends periodic reporting and logs a final report.
func (p *Profiler) Stop() {
	if p == nil {
		return
	}
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	p.Report()
}

// Track starts timing one operation of stage name. Call the returned
// function when it completes.
//
// @example
// defer prof.Track("get")()
func (p *Profiler) Track(name string) func() {
	if p == nil {
		return func() {}
	}
	start := time.Now()
	return func() { p.record(name, time.Since(start)) }
}

func (p *Profiler) record(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.timers[name]
	if !ok {
		t = &timer{min: d, max: d}
		p.timers[name] = t
	}

	t.durations = append(t.durations, d)
	t.total += d
	if len(t.durations) > p.maxSamples {
		t.total -= t.durations[0]
		t.durations = t.durations[1:]
	}
	t.count++
	t.min = min(t.min, d)
	t.max = max(t.max, d)
}

// Add increments counter name by n, e.g. the number of images produced.
func (p *Profiler) Add(name string, n int64) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counters[name] += n
}

// Stats returns the timings of stage name.
func (p *Profiler) Stats(name string) (OpStats, bool) {
	if p == nil {
		return OpStats{}, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	t, ok := p.timers[name]
	if !ok {
		return OpStats{}, false
	}
	return OpStats{
		Count: t.count,
		Mean:  t.total / time.Duration(len(t.durations)),
		Min:   t.min,
		Max:   t.max,
	}, true
}

// Counter returns the value of counter name.
func (p *Profiler) Counter(name string) int64 {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.counters[name]
}

// Report logs memory use, counter rates and stage timings.
func (p *Profiler) Report() {
	if p == nil {
		return
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	p.mu.RLock()
	defer p.mu.RUnlock()

	uptime := time.Since(p.start)
	fields := []any{
		"uptime", uptime.Truncate(time.Millisecond),
		"goroutines", runtime.NumGoroutine(),
		"heap", humanize.Bytes(mem.HeapAlloc),
		"sys", humanize.Bytes(mem.Sys),
		"gc", mem.NumGC,
	}
	for _, name := range sortedKeys(p.counters) {
		n := p.counters[name]
		fields = append(fields, name, n, name+"_per_sec", float64(n)/max(uptime.Seconds(), 1e-9))
	}
	p.log.Infow("pipeline profile", fields...)

	for _, name := range sortedKeys(p.timers) {
		t := p.timers[name]
		p.log.Infow("stage timing",
			"stage", name,
			"count", t.count,
			"avg", (t.total / time.Duration(len(t.durations))).Truncate(time.Microsecond),
			"min", t.min.Truncate(time.Microsecond),
			"max", t.max.Truncate(time.Microsecond),
		)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
