package telemetry

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/grafana/pyroscope-go"
)

// ProfilingConfig selects Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// Endpoint is the Pyroscope server URL.
	Endpoint     string
	ProfileTypes []string
}

// contentionRate is the sampling rate set for mutex and block profiles.
const contentionRate = 5

var (
	profilingEnabled atomic.Bool

	profileTypes = map[string]pyroscope.ProfileType{
		"cpu":            pyroscope.ProfileCPU,
		"alloc_objects":  pyroscope.ProfileAllocObjects,
		"alloc_space":    pyroscope.ProfileAllocSpace,
		"inuse_objects":  pyroscope.ProfileInuseObjects,
		"inuse_space":    pyroscope.ProfileInuseSpace,
		"goroutines":     pyroscope.ProfileGoroutines,
		"mutex_count":    pyroscope.ProfileMutexCount,
		"mutex_duration": pyroscope.ProfileMutexDuration,
		"block_count":    pyroscope.ProfileBlockCount,
		"block_duration": pyroscope.ProfileBlockDuration,
	}
)

func ValidProfileType(name string) bool {
	_, ok := profileTypes[name]
	return ok
}

// InitProfiling starts pushing profiles to Pyroscope. The returned function
// stops the profiler.
func InitProfiling(cfg ProfilingConfig) (func() error, error) {
	if !cfg.Enabled {
		profilingEnabled.Store(false)
		return func() error { return nil }, nil
	}

	types := make([]pyroscope.ProfileType, 0, len(cfg.ProfileTypes))
	for _, name := range cfg.ProfileTypes {
		pt, ok := profileTypes[name]
		if !ok {
			return nil, fmt.Errorf("unknown profile type %q", name)
		}
		types = append(types, pt)
		switch pt {
		case pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration:
			runtime.SetMutexProfileFraction(contentionRate)
		case pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration:
			runtime.SetBlockProfileRate(contentionRate)
		}
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: Config{ServiceName: cfg.ServiceName}.serviceName(),
		ServerAddress:   cfg.Endpoint,
		Tags:            map[string]string{"version": cfg.ServiceVersion},
		ProfileTypes:    types,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	profilingEnabled.Store(true)

	return func() error {
		profilingEnabled.Store(false)
		return profiler.Stop()
	}, nil
}

func IsProfilingEnabled() bool { return profilingEnabled.Load() }
