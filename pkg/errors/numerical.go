package errors

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
)

// NonFiniteValueError は入力に NaN や Inf が含まれている場合のエラーです。
type NonFiniteValueError struct {
	Stage string
	What  string
	Index int
	Value float64
}

func (e *NonFiniteValueError) Error() string {
	return fmt.Sprintf("ghgforest: %s: non-finite value %v in %s at index %d", e.Stage, e.Value, e.What, e.Index)
}

// CheckFinite は値に NaN や Inf が含まれていないかを検査します。
func CheckFinite(stage, what string, values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.WithStack(&NonFiniteValueError{Stage: stage, What: what, Index: i, Value: v})
		}
	}
	return nil
}
