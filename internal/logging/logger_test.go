package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLoggerInitialization(t *testing.T) {
	initLogger()
	if logger == nil {
		t.Fatal("Logger is not initialized")
	}
	if sugar == nil {
		t.Fatal("Sugared logger is not initialized")
	}
}

func TestSetLevel(t *testing.T) {
	defer level.SetLevel(zapcore.WarnLevel)

	cases := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{0, zapcore.WarnLevel},
		{1, zapcore.InfoLevel},
		{2, zapcore.DebugLevel},
		{5, zapcore.DebugLevel},
	}
	for _, c := range cases {
		SetLevel(c.verbosity)
		if got := level.Level(); got != c.want {
			t.Errorf("SetLevel(%d) = %v, want %v", c.verbosity, got, c.want)
		}
	}
}

func TestNamed(t *testing.T) {
	l := Named("router")
	if l == nil {
		t.Fatal("Named returned nil logger")
	}
}

func TestLoggingDoesNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("logging panicked: %v", r)
		}
	}()

	Info("test message", zap.String("key", "value"))
	Infof("test formatted: %s", "value")
	Warn("test warning", zap.String("key", "value"))
	Warnf("test formatted warning: %s", "value")
	Error("test error", zap.String("key", "value"))
	Errorf("test formatted error: %s", "value")
	Debug("test debug", zap.String("key", "value"))
}
