package logger

import (
	"log"
	"strings"
)

// logWriter adapts the repocore logger to the io.Writer the standard
// library log package and net/http.Server.ErrorLog expect, so output from
// dependencies that only know how to call log.Print still lands in our
// formatted, level-aware stream instead of bypassing it.
type logWriter struct{}

func (lw *logWriter) Write(p []byte) (n int, err error) {
	message := strings.TrimSpace(string(p))
	if message == "" {
		return len(p), nil
	}

	switch {
	case strings.Contains(message, "TLS") || strings.Contains(message, "tls"):
		Warn("diagnostics listener: %s", message)
	case strings.Contains(message, "error") || strings.Contains(message, "Error"):
		Error("diagnostics listener: %s", message)
	default:
		Info("diagnostics listener: %s", message)
	}
	return len(p), nil
}

// InitLogBridge points the standard library's global logger at repocore's
// own logger, so any dependency that logs via the stdlib log package
// (rather than taking an explicit *log.Logger) still produces consistently
// formatted output.
func InitLogBridge() {
	log.SetOutput(&logWriter{})
	log.SetFlags(0)
	Debug("standard library log output redirected to repocore logger")
}

// SetHTTPServerErrorLog returns a *log.Logger suitable for
// http.Server.ErrorLog, routing the listener's own error reports (failed
// accepts, TLS handshake failures) through the repocore logger.
func SetHTTPServerErrorLog() *log.Logger {
	return log.New(&logWriter{}, "", 0)
}
