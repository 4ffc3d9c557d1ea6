package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T, root string, cfg loggingConfig) {
	t.Helper()
	data, err := json.Marshal(configFile{Logging: cfg})
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "config.json"), data, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func resetState() {
	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
	configMu.Lock()
	config = loggingConfig{}
	configLoaded = false
	configMu.Unlock()
	logsDir = ""
	storageRoot = ""
}

func TestInitializeProductionModeIsSilent(t *testing.T) {
	resetState()
	root := t.TempDir()
	// No config.json written -> debug_mode defaults to false.
	if err := Initialize(root); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "logs")); !os.IsNotExist(err) {
		t.Fatalf("expected no logs directory in production mode, got err=%v", err)
	}
	Boot("this should be a no-op")
}

func TestInitializeDebugModeCreatesLogs(t *testing.T) {
	resetState()
	root := t.TempDir()
	writeTestConfig(t, root, loggingConfig{DebugMode: true, Level: "debug"})

	if err := Initialize(root); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	if _, err := os.Stat(filepath.Join(root, "logs")); err != nil {
		t.Fatalf("expected logs directory to exist: %v", err)
	}

	GHAP("test message %d", 1)
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(root, "logs"))
	if err != nil {
		t.Fatalf("read logs dir: %v", err)
	}
	found := false
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".log" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected at least one .log file, got %v", entries)
	}
}

func TestIsCategoryEnabledRespectsFilter(t *testing.T) {
	resetState()
	root := t.TempDir()
	writeTestConfig(t, root, loggingConfig{
		DebugMode:  true,
		Level:      "debug",
		Categories: map[string]bool{string(CategoryGHAP): true, string(CategorySearcher): false},
	})
	if err := Initialize(root); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	if !IsCategoryEnabled(CategoryGHAP) {
		t.Fatalf("expected ghap category enabled")
	}
	if IsCategoryEnabled(CategorySearcher) {
		t.Fatalf("expected searcher category disabled")
	}
	if !IsCategoryEnabled(CategoryEmbedding) {
		t.Fatalf("expected unlisted category to default enabled")
	}
}

func TestTimerStopWithThreshold(t *testing.T) {
	resetState()
	root := t.TempDir()
	writeTestConfig(t, root, loggingConfig{DebugMode: true, Level: "debug"})
	if err := Initialize(root); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	timer := StartTimer(CategoryClusterer, "test-op")
	elapsed := timer.StopWithThreshold(0)
	if elapsed < 0 {
		t.Fatalf("expected non-negative elapsed duration, got %v", elapsed)
	}
}
