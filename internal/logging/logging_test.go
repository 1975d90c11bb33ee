package logging

import "testing"

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, err := New(Config{Level: level, Format: "json"})
		if err != nil {
			t.Errorf("New(level=%s): %v", level, err)
			continue
		}
		logger.Debug("probe")
	}
}

func TestNewConsoleFormat(t *testing.T) {
	if _, err := New(Config{Level: "info", Format: "console"}); err != nil {
		t.Fatal(err)
	}
}

func TestNewInvalidLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud", Format: "json"}); err == nil {
		t.Error("New must reject unknown levels")
	}
}
