package logger

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// TraceContext represents a traced operation context: one repocore command
// (commit, merge, rebuild, ...) from entry to the point its transaction
// either commits or rolls back.
type TraceContext struct {
	TraceID     string
	Operation   string
	StartTime   time.Time
	GoroutineID int
	mu          sync.Mutex
	spans       []TraceSpan
	isActive    bool
}

// TraceSpan represents a named sub-phase within a trace (e.g. "resolve",
// "cross-link", "pivot", "merge-files").
type TraceSpan struct {
	Name       string
	StartTime  time.Time
	EndTime    time.Time
	Attributes map[string]string
}

var (
	activeTraces   = make(map[string]*TraceContext)
	activeTracesMu sync.RWMutex

	traceCounter uint64

	tracingEnabled atomic.Bool
)

// EnableTracing turns on command-level span tracing.
func EnableTracing(enabled bool) {
	tracingEnabled.Store(enabled)
	if enabled {
		Info("command tracing enabled")
	} else {
		Info("command tracing disabled")
	}
}

// IsTracingEnabled reports whether span tracing is active.
func IsTracingEnabled() bool {
	return tracingEnabled.Load()
}

// StartTrace begins a new trace context for a command invocation.
func StartTrace(operation string) *TraceContext {
	if !IsTracingEnabled() {
		return nil
	}

	traceID := fmt.Sprintf("trace_%d_%d", time.Now().UnixNano(), atomic.AddUint64(&traceCounter, 1))

	ctx := &TraceContext{
		TraceID:     traceID,
		Operation:   operation,
		StartTime:   time.Now(),
		GoroutineID: getGoroutineID(),
		spans:       make([]TraceSpan, 0),
		isActive:    true,
	}

	activeTracesMu.Lock()
	activeTraces[traceID] = ctx
	activeTracesMu.Unlock()

	Trace("[TRACE_START] ID=%s Op=%s Goroutine=%d", traceID, operation, ctx.GoroutineID)

	return ctx
}

// StartSpan begins a new span within a trace.
func (tc *TraceContext) StartSpan(name string, attributes ...string) {
	if tc == nil || !tc.isActive {
		return
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	span := TraceSpan{
		Name:       name,
		StartTime:  time.Now(),
		Attributes: make(map[string]string),
	}

	for _, attr := range attributes {
		parts := strings.SplitN(attr, "=", 2)
		if len(parts) == 2 {
			span.Attributes[parts[0]] = parts[1]
		}
	}

	tc.spans = append(tc.spans, span)

	elapsed := time.Since(tc.StartTime)
	Trace("[SPAN_START] Trace=%s Span=%s Elapsed=%v Attrs=%v", tc.TraceID, name, elapsed, span.Attributes)
}

// EndSpan completes the most recent open span with the given name.
func (tc *TraceContext) EndSpan(name string) {
	if tc == nil || !tc.isActive {
		return
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	for i := len(tc.spans) - 1; i >= 0; i-- {
		if tc.spans[i].Name == name && tc.spans[i].EndTime.IsZero() {
			tc.spans[i].EndTime = time.Now()
			duration := tc.spans[i].EndTime.Sub(tc.spans[i].StartTime)
			Trace("[SPAN_END] Trace=%s Span=%s Duration=%v", tc.TraceID, name, duration)
			break
		}
	}
}

// EndTrace closes the trace, logging a summary and flagging any span that
// never closed (a hint that the command aborted mid-phase).
func (tc *TraceContext) EndTrace() {
	if tc == nil || !tc.isActive {
		return
	}

	tc.mu.Lock()
	tc.isActive = false
	duration := time.Since(tc.StartTime)
	tc.mu.Unlock()

	activeTracesMu.Lock()
	delete(activeTraces, tc.TraceID)
	activeTracesMu.Unlock()

	tc.mu.Lock()
	defer tc.mu.Unlock()

	Trace("[TRACE_END] ID=%s Op=%s Duration=%v Spans=%d", tc.TraceID, tc.Operation, duration, len(tc.spans))

	for _, span := range tc.spans {
		if span.EndTime.IsZero() {
			Warn("[UNCLOSED_SPAN] Trace=%s Span=%s Started=%v", tc.TraceID, span.Name, span.StartTime)
		}
	}
}

// LogLockOperation logs acquire/release of the store's write gate, useful
// for diagnosing a command that appears to hang waiting for exclusive
// access to the repository file.
func LogLockOperation(traceID, lockName, operation string) {
	if !IsTracingEnabled() {
		return
	}
	Trace("[LOCK_%s] Name=%s Goroutine=%d TraceID=%s", strings.ToUpper(operation), lockName, getGoroutineID(), traceID)
}

// GetActiveTraces returns a human-readable summary of in-flight traces, for
// diagnostics when a command appears stuck.
func GetActiveTraces() []string {
	activeTracesMu.RLock()
	defer activeTracesMu.RUnlock()

	traces := make([]string, 0, len(activeTraces))
	for traceID, ctx := range activeTraces {
		duration := time.Since(ctx.StartTime)
		traces = append(traces, fmt.Sprintf("%s: %s (duration: %v)", traceID, ctx.Operation, duration))
	}
	return traces
}
