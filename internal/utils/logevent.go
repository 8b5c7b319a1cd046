package utils

import "strings"

// LogEventCtx calls event once per non-empty line written to it.
type LogEventCtx struct {
	event func(message string)
}

func LogEvent(event func(message string)) *LogEventCtx {
	return &LogEventCtx{
		event: event,
	}
}

func (l LogEventCtx) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		l.event(line)
	}
	return len(p), nil
}
