package errors

import (
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestNewInvalidConfigurationError(t *testing.T) {
	tests := []struct {
		name    string
		stage   string
		param   string
		value   interface{}
		reason  string
		wantMsg string
	}{
		{
			name:    "train fraction",
			stage:   "partition",
			param:   "train_fraction",
			value:   1.5,
			reason:  "must be in (0, 1)",
			wantMsg: "ghgforest: partition: invalid configuration for parameter 'train_fraction': must be in (0, 1) (got: 1.5)",
		},
		{
			name:    "tree count",
			stage:   "forest",
			param:   "n_trees",
			value:   0,
			reason:  "must be positive",
			wantMsg: "ghgforest: forest: invalid configuration for parameter 'n_trees': must be positive (got: 0)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewInvalidConfigurationError(tt.stage, tt.param, tt.value, tt.reason)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}

			if !Is(err, ErrInvalidConfiguration) {
				t.Error("Expected errors.Is(err, ErrInvalidConfiguration)")
			}
			if Is(err, ErrInsufficientData) {
				t.Error("Configuration error must not match ErrInsufficientData")
			}

			var cfgErr *InvalidConfigurationError
			if !As(err, &cfgErr) {
				t.Fatal("Error should be castable to *InvalidConfigurationError")
			}
			if cfgErr.Param != tt.param || cfgErr.Stage != tt.stage {
				t.Errorf("got stage=%s param=%s", cfgErr.Stage, cfgErr.Param)
			}
		})
	}
}

func TestNewInsufficientDataError(t *testing.T) {
	err := NewInsufficientDataError("evaluate", "paired values", 2, 1)

	expected := "ghgforest: evaluate: insufficient data in paired values: need at least 2, got 1"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
	if !Is(err, ErrInsufficientData) {
		t.Error("Expected errors.Is(err, ErrInsufficientData)")
	}

	wrapped := Wrap(err, "eval_future")
	var dataErr *InsufficientDataError
	if !As(wrapped, &dataErr) {
		t.Fatal("wrapped error should still be an *InsufficientDataError")
	}
	if dataErr.Got != 1 {
		t.Errorf("Got = %d, want 1", dataErr.Got)
	}
}

func TestWarnDispatch(t *testing.T) {
	var received []error
	prev := SetWarningHandler(func(w error) { received = append(received, w) })
	defer SetWarningHandler(prev)

	w := NewNumericDegeneracyWarning("ale", "precipitation_lag3", "zero variance")
	Warn(w)

	if len(received) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(received))
	}
	if !Is(received[0], ErrNumericDegeneracy) {
		t.Error("warning should match ErrNumericDegeneracy")
	}
	if !strings.Contains(received[0].Error(), "precipitation_lag3") {
		t.Errorf("warning message missing feature: %v", received[0])
	}
}

func TestStageErrorUnwrap(t *testing.T) {
	inner := NewInsufficientDataError("resample", "relevance class 2", 2, 1)
	err := NewStageError("resample", inner)

	if !Is(err, ErrInsufficientData) {
		t.Error("StageError should expose its cause")
	}
	if !strings.Contains(err.Error(), "stage resample failed") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestRecover(t *testing.T) {
	fn := func() (err error) {
		defer Recover(&err, "forest.fit")
		panic("index out of range")
	}

	err := fn()
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	var panicErr *PanicError
	if !As(err, &panicErr) {
		t.Fatalf("expected *PanicError, got %T", err)
	}
	if panicErr.Stage != "forest.fit" {
		t.Errorf("Stage = %s", panicErr.Stage)
	}
	if !strings.Contains(panicErr.String(), "Stack trace") {
		t.Error("String() should include the stack trace")
	}

	if err := SafeExecute("noop", func() error { return nil }); err != nil {
		t.Errorf("SafeExecute returned %v", err)
	}
}

func TestCheckFinite(t *testing.T) {
	if err := CheckFinite("dataset", "target", []float64{1, 2, 3}); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	err := CheckFinite("dataset", "target", []float64{1, math.NaN()})
	if err == nil {
		t.Fatal("expected error for NaN")
	}
	var nf *NonFiniteValueError
	if !As(err, &nf) || nf.Index != 1 {
		t.Errorf("expected NonFiniteValueError at index 1, got %v", err)
	}
}
