package vismem

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLevelLogger(t *testing.T) {
	capture := &captureLogger{}
	l := NewLevelLogger("warn", capture)

	l.Log("info", "chatter", nil)
	l.Log("warn", "slow", nil)
	l.Log("error", "broken", nil)
	l.Log("debug", "unknown level", nil)

	assert.Equal(t, []string{"warn: slow", "error: broken", "debug: unknown level"}, capture.entries)
}

func TestDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	prev, flags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(prev)
		log.SetFlags(flags)
	}()

	DefaultLogger().Log("info", "memory geometry", map[string]any{"cells": 8})

	line := strings.TrimSpace(buf.String())
	assert.Equal(t, `[vismem] {"cells":8,"level":"info","msg":"memory geometry"}`, line)
}
