package vismem

import (
	"encoding/json"
	"log"
)

// Logger receives structured diagnostics from the engine.
//
// This is intentionally minimal to avoid coupling the engine to a specific
// logging library. Fields are a stable machine-readable contract.
type Logger interface {
	Log(level string, msg string, fields map[string]any)
}

type defaultLogger struct{}

func (defaultLogger) Log(level string, msg string, fields map[string]any) {
	payload := map[string]any{
		"level": level,
		"msg":   msg,
	}
	for k, v := range fields {
		payload[k] = v
	}
	b, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[vismem] level=%s msg=%s fields=%v", level, msg, fields)
		return
	}
	log.Printf("[vismem] %s", string(b))
}

// NopLogger discards everything.
type NopLogger struct{}

// Log implements Logger.
func (NopLogger) Log(string, string, map[string]any) {}

// DefaultLogger returns the logger used when Config.Logger is nil.
func DefaultLogger() Logger { return defaultLogger{} }

var levelRank = map[string]int{"info": 0, "warn": 1, "error": 2}

type levelLogger struct {
	min  int
	next Logger
}

// NewLevelLogger forwards entries at or above level min to next. Unknown
// levels are always forwarded.
func NewLevelLogger(min string, next Logger) Logger {
	return levelLogger{min: levelRank[min], next: next}
}

func (l levelLogger) Log(level string, msg string, fields map[string]any) {
	if rank, ok := levelRank[level]; ok && rank < l.min {
		return
	}
	l.next.Log(level, msg, fields)
}
