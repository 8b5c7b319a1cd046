package utils

import (
	"strings"

	"github.com/rs/zerolog"
)

// LogWriterCtx forwards everything written to it to logger at the given level.
type LogWriterCtx struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func LogWriter(l zerolog.Logger, level zerolog.Level) *LogWriterCtx {
	return &LogWriterCtx{
		logger: l,
		level:  level,
	}
}

func (l LogWriterCtx) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		l.logger.WithLevel(l.level).Msg(msg)
	}
	return len(p), nil
}
