package log

import (
	"context"
	"fmt"
	"sync"
	"testing"

	pkgerrors "github.com/YuminosukeSato/ghgforest/pkg/errors"
)

func TestLoggerInterface(t *testing.T) {
	testLogger := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationFit)
	testLogger.Warn("warning message", FeatureKey, "precipitation")
	testLogger.Error("error message", ErrAttrKey, fmt.Errorf("test error"))

	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		if !testLogger.ContainsMessage(msg) {
			t.Errorf("%q not found in output", msg)
		}
	}
	if !testLogger.ContainsField("key1", "value1") {
		t.Error("Expected field key1=value1 not found")
	}
	if !testLogger.ContainsField("number", 42.0) {
		t.Error("Expected field number=42 not found")
	}
	if !testLogger.ContainsField(ErrAttrKey, "test error") {
		t.Error("Expected error field not found")
	}
}

func TestLoggerWith(t *testing.T) {
	testLogger := NewTestLogger(LevelDebug)

	contextLogger := testLogger.With(
		ModelNameKey, "ConditionalForest",
		RunIDKey, "run-001",
	)
	contextLogger.Info("contextual message", StageKey, "fit")

	if !testLogger.ContainsField(ModelNameKey, "ConditionalForest") {
		t.Error("Model name context not found")
	}
	if !testLogger.ContainsField(RunIDKey, "run-001") {
		t.Error("Run id context not found")
	}
	if !testLogger.ContainsField(StageKey, "fit") {
		t.Error("Stage field not found")
	}
}

func TestLoggerEnabled(t *testing.T) {
	testLogger := NewTestLogger(LevelInfo)
	ctx := context.Background()

	if !testLogger.Enabled(ctx, LevelInfo) {
		t.Error("Logger should be enabled for Info level")
	}
	if !testLogger.Enabled(ctx, LevelError) {
		t.Error("Logger should be enabled for Error level")
	}
	if testLogger.Enabled(ctx, LevelDebug) {
		t.Error("Logger should not be enabled for Debug level")
	}

	testLogger.Debug("this should not appear")
	testLogger.Info("this should appear")

	if testLogger.ContainsMessage("this should not appear") {
		t.Error("Debug message should not appear when level is Info")
	}
	if !testLogger.ContainsMessage("this should appear") {
		t.Error("Info message should appear when level is Info")
	}
}

func TestGlobalLoggerWithName(t *testing.T) {
	testLogger := NewTestLogger(LevelDebug)
	prev := SetLogger(testLogger)
	defer SetLogger(prev)

	GetLoggerWithName("ensemble.forest").Info("named logger message")

	if !testLogger.ContainsField(ComponentKey, "ensemble.forest") {
		t.Error("component name not found in named logger output")
	}
}

func TestWarningsRoutedToZerolog(t *testing.T) {
	buf := &syncBuffer{}
	prevLogger := GetLogger()
	prevHandler := pkgerrors.SetWarningHandler(nil)
	defer func() {
		SetLogger(prevLogger)
		pkgerrors.SetWarningHandler(prevHandler)
		pkgerrors.SetZerologWarnFunc(nil)
	}()

	SetupLoggerWithWriter(buf, LevelDebug)
	pkgerrors.Warn(pkgerrors.NewNumericDegeneracyWarning("ale", "water_table_lag2", "zero variance"))

	capture := &TestLogger{ZerologLogger: NewLogger(buf, LevelDebug), buffer: buf}
	entries, err := capture.GetLogEntries()
	if err != nil {
		t.Fatalf("Failed to parse log entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}
	warning, ok := entries[0]["warning"].(map[string]interface{})
	if !ok {
		t.Fatalf("warning object missing: %v", entries[0])
	}
	if warning["feature"] != "water_table_lag2" || warning["type"] != "NumericDegeneracyWarning" {
		t.Errorf("unexpected warning payload %v", warning)
	}
	if entries[0]["level"] != "warn" {
		t.Errorf("level = %v, want warn", entries[0]["level"])
	}
}

func TestToLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ToLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ToLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestConcurrentLogging(t *testing.T) {
	testLogger := NewTestLogger(LevelInfo)

	const workers, perWorker = 4, 5
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				testLogger.Info("tree fitted", workerKey, id, "tree", j)
			}
		}(i)
	}
	wg.Wait()

	entries, err := testLogger.GetLogEntries()
	if err != nil {
		t.Fatalf("Failed to parse log entries: %v", err)
	}
	if len(entries) != workers*perWorker {
		t.Errorf("Expected %d log entries, got %d", workers*perWorker, len(entries))
	}
}

const workerKey = "worker"
