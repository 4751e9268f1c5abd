package common

import (
	"os"
	"runtime"
	"runtime/debug"

	"github.com/rs/zerolog/log"
)

const (
	smallHostGOGC     = 400
	smallHostMemLimit = 2 * 1024 * 1024 * 1024

	largeHostGOGC     = 800
	largeHostMemLimit = 8 * 1024 * 1024 * 1024
)

// InitRuntime tunes GC and scheduler for the search loops. GOGC, GOMAXPROCS
// and GOMEMLIMIT set in the environment take precedence.
func InitRuntime() {
	cpus := runtime.NumCPU()
	gogc, memLimit := largeHostGOGC, int64(largeHostMemLimit)
	if cpus <= 2 {
		gogc, memLimit = smallHostGOGC, int64(smallHostMemLimit)
	}

	if os.Getenv("GOGC") == "" {
		debug.SetGCPercent(gogc)
	}
	if os.Getenv("GOMEMLIMIT") == "" {
		debug.SetMemoryLimit(memLimit)
	}
	// every mint group runs its own cycle goroutine; keep all cores available
	if os.Getenv("GOMAXPROCS") == "" {
		runtime.GOMAXPROCS(cpus)
	}

	log.Info().
		Int("num_cpu", cpus).
		Int("gomaxprocs", runtime.GOMAXPROCS(0)).
		Int("gogc", gogc).
		Float64("gomemlimit_gb", float64(memLimit)/1024/1024/1024).
		Str("go_version", runtime.Version()).
		Msg("[runtime] settings applied")
}
