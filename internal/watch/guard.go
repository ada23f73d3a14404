package watch

import (
	"runtime"
	"sync/atomic"

	"streamwatch/internal/config"
	"streamwatch/pkg/logx"
)

const (
	defaultMemoryLimitMB     = 512
	defaultSampleEveryCycles = 10
)

// Guard samples process memory every few completed poll cycles and trips a
// restart flag when usage crosses the configured limit. It never terminates
// anything itself: the poller checks the flag after a cycle and exits only
// once every tracked streamer is offline.
type Guard struct {
	log        logx.Logger
	limitBytes uint64
	every      uint64

	cycles  atomic.Uint64
	tripped atomic.Bool

	// readMem is swappable in tests.
	readMem func() uint64
}

func NewGuard(cfg config.GuardConfig, log logx.Logger) *Guard {
	limitMB := cfg.MemoryLimitMB
	if limitMB <= 0 {
		limitMB = defaultMemoryLimitMB
	}
	every := cfg.SampleEveryCycles
	if every <= 0 {
		every = defaultSampleEveryCycles
	}
	return &Guard{
		log:        log,
		limitBytes: uint64(limitMB) * 1024 * 1024,
		every:      uint64(every),
		readMem:    readRuntimeMem,
	}
}

func readRuntimeMem() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Sys
}

// Tick records one completed poll cycle and samples memory when due.
// Once tripped, the guard stays tripped.
func (g *Guard) Tick() {
	if g == nil || g.tripped.Load() {
		return
	}
	n := g.cycles.Add(1)
	if n%g.every != 0 {
		return
	}

	used := g.readMem()
	if used <= g.limitBytes {
		g.log.Debug("memory sample ok",
			logx.Uint64("used_bytes", used),
			logx.Uint64("limit_bytes", g.limitBytes))
		return
	}

	g.tripped.Store(true)
	g.log.Warn("memory limit exceeded, restart requested once all streams end",
		logx.Uint64("used_bytes", used),
		logx.Uint64("limit_bytes", g.limitBytes))
}

// Tripped reports whether a restart has been requested.
func (g *Guard) Tripped() bool {
	return g != nil && g.tripped.Load()
}
