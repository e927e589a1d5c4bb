package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := New("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	assert.NotPanics(t, func() {
		l.Debugf("debug %d", 1)
		l.Debugw("debug", map[string]any{"k": 1})
		l.Infof("info %s", "test")
		l.Warnf("warn")
		l.Errorf("error")
	})
}

func TestLoggerJSONMode(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	l := New("json")
	assert.NotPanics(t, func() {
		l.Infof("info")
	})
}
