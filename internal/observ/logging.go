package observ

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

func init() {
	zerolog.TimestampFieldName = "ts"
	zerolog.MessageFieldName = "event"
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
}

// Log emits one JSON line: {"level":"info","ts":...,"event":event, ...kv}.
func Log(event string, kv map[string]any) {
	l := current()
	l.Info().Fields(kv).Msg(event)
}

func Warn(event string, kv map[string]any) {
	l := current()
	l.Warn().Fields(kv).Msg(event)
}

// Error logs event at error level with err attached under "error".
func Error(event string, err error, kv map[string]any) {
	l := current()
	l.Error().Err(err).Fields(kv).Msg(event)
}

// Critical is used for alerts that have no external sink.
func Critical(event string, kv map[string]any) {
	l := current()
	l.WithLevel(zerolog.FatalLevel).Str("severity", "critical").Fields(kv).Msg(event)
}

// SetOutput redirects all events to w and returns a func restoring stdout.
func SetOutput(w io.Writer) func() {
	mu.Lock()
	prev := logger
	logger = zerolog.New(w).With().Timestamp().Logger()
	mu.Unlock()
	return func() {
		mu.Lock()
		logger = prev
		mu.Unlock()
	}
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := logger
	return &l
}
