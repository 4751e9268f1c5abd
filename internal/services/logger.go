package services

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ServiceIdentifier interface {
	ID() string
}

var (
	whiteListMu  sync.RWMutex
	whiteListSvc = make(map[string]struct{})
)

// EnableDebugForServices lets the listed services log at debug level while
// the rest stay at the global level. It affects loggers created afterwards.
func EnableDebugForServices(ids []string) {
	whiteListMu.Lock()
	defer whiteListMu.Unlock()
	for _, id := range ids {
		whiteListSvc[id] = struct{}{}
	}
}

func debugEnabled(id string) bool {
	whiteListMu.RLock()
	defer whiteListMu.RUnlock()
	_, ok := whiteListSvc[id]
	return ok
}

// ConfigureLogging applies the process wide level. Whitelisted services need
// the global level lowered to debug, so the base logger carries the
// configured level instead.
func ConfigureLogging(level zerolog.Level, debugServices []string) {
	EnableDebugForServices(debugServices)
	log.Logger = log.Logger.Level(level)
	if len(debugServices) > 0 && level > zerolog.DebugLevel {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(level)
}

type ServiceLogger struct {
	logger zerolog.Logger
}

func NewServiceLogger(svc ServiceIdentifier) *ServiceLogger {
	logger := log.With().Str("service", svc.ID()).Logger()
	if debugEnabled(svc.ID()) {
		logger = logger.Level(zerolog.DebugLevel)
	}
	return &ServiceLogger{logger: logger}
}

func (l *ServiceLogger) Info() *zerolog.Event {
	return l.logger.Info()
}

func (l *ServiceLogger) Error() *zerolog.Event {
	return l.logger.Error()
}

func (l *ServiceLogger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

func (l *ServiceLogger) Debug() *zerolog.Event {
	return l.logger.Debug()
}
