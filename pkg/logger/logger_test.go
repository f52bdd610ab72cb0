package logger

import "testing"

// TestInit tests logger initialization with all levels
func TestInit(t *testing.T) {
	levels := []LogLevel{DebugLevel, InfoLevel, WarnLevel, ErrorLevel}
	for _, level := range levels {
		Init(level, "text")
		if globalLogger == nil {
			t.Fatalf("Init(%s) left global logger nil", level)
		}
	}
}

// TestInitJSONFormat tests JSON handler selection
func TestInitJSONFormat(t *testing.T) {
	Init(InfoLevel, "json")
	if globalLogger == nil {
		t.Fatal("Init with json format left global logger nil")
	}
}

// TestGetWithoutInit tests fallback logger
func TestGetWithoutInit(t *testing.T) {
	globalLogger = nil
	l := Get()
	if l == nil {
		t.Fatal("Get() returned nil without Init")
	}
}

// TestWith tests attribute chaining
func TestWith(t *testing.T) {
	Init(InfoLevel, "text")
	l := Get().With("channel", "command")
	if l == nil {
		t.Fatal("With() returned nil")
	}
}
