package telemetry

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// ProfilerConfig configures Pyroscope continuous profiling
type ProfilerConfig struct {
	Enabled         bool
	ServerAddress   string // e.g. http://pyroscope:4040
	ApplicationName string
	Tags            map[string]string

	// Contention profiles cost a runtime sampling rate; off unless asked for
	Contention bool
}

// ledgerProfileTypes are the profiles the ledger ships by default
var ledgerProfileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
}

var contentionProfileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileMutexCount,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockCount,
	pyroscope.ProfileBlockDuration,
}

// Profiler is a started Pyroscope session; the zero value is a disabled profiler
type Profiler struct {
	session *pyroscope.Profiler
	once    sync.Once
}

// StartProfiler starts profiling when cfg.Enabled, otherwise returns a disabled Profiler
func StartProfiler(cfg ProfilerConfig, logger *zap.Logger) (*Profiler, error) {
	if !cfg.Enabled {
		return &Profiler{}, nil
	}
	if cfg.ServerAddress == "" || cfg.ApplicationName == "" {
		return nil, errors.New("profiler: server address and application name are required")
	}

	types := append([]pyroscope.ProfileType(nil), ledgerProfileTypes...)
	if cfg.Contention {
		runtime.SetMutexProfileFraction(5)
		runtime.SetBlockProfileRate(5)
		types = append(types, contentionProfileTypes...)
	}

	tags := map[string]string{}
	if host, err := os.Hostname(); err == nil {
		tags["hostname"] = host
	}
	for k, v := range cfg.Tags {
		tags[k] = v
	}

	session, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Logger:          pyroscopeLogger{logger.Sugar()},
		Tags:            tags,
		ProfileTypes:    types,
	})
	if err != nil {
		return nil, fmt.Errorf("profiler: start pyroscope: %w", err)
	}
	logger.Info("Continuous profiling started",
		zap.String("server_address", cfg.ServerAddress),
		zap.Int("profile_types", len(types)),
	)
	return &Profiler{session: session}, nil
}

// IsEnabled reports whether a session is running
func (p *Profiler) IsEnabled() bool { return p != nil && p.session != nil }

// Stop flushes and ends the session; later calls do nothing
func (p *Profiler) Stop() error {
	if !p.IsEnabled() {
		return nil
	}
	var err error
	p.once.Do(func() { err = p.session.Stop() })
	return err
}

// pyroscopeLogger routes the agent's logs into zap
type pyroscopeLogger struct {
	l *zap.SugaredLogger
}

func (p pyroscopeLogger) Infof(format string, args ...any)  { p.l.Debugf(format, args...) }
func (p pyroscopeLogger) Debugf(format string, args ...any) { p.l.Debugf(format, args...) }
func (p pyroscopeLogger) Errorf(format string, args ...any) { p.l.Errorf(format, args...) }
