package preprocessing

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ghgforest/pkg/errors"
)

func TestStandardScaler(t *testing.T) {
	X := mat.NewDense(4, 3, []float64{
		1, 10, 5,
		2, 20, 5,
		3, 30, 5,
		4, 40, 5,
	})

	tests := []struct {
		name     string
		withMean bool
		withStd  bool
		wantMean []float64
		wantStd  []float64
	}{
		{
			name:     "mean and std",
			withMean: true,
			withStd:  true,
			wantMean: []float64{2.5, 25, 5},
			wantStd:  []float64{math.Sqrt(1.25), math.Sqrt(125), 1},
		},
		{
			name:     "std only",
			withMean: false,
			withStd:  true,
			wantMean: []float64{0, 0, 0},
			wantStd:  []float64{math.Sqrt(1.25), math.Sqrt(125), 1},
		},
		{
			name:     "mean only",
			withMean: true,
			withStd:  false,
			wantMean: []float64{2.5, 25, 5},
			wantStd:  []float64{1, 1, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStandardScaler(tt.withMean, tt.withStd)
			if err := s.Fit(X); err != nil {
				t.Fatalf("Fit() error = %v", err)
			}
			for j := range tt.wantMean {
				if math.Abs(s.Mean[j]-tt.wantMean[j]) > 1e-10 {
					t.Errorf("Mean[%d] = %v, want %v", j, s.Mean[j], tt.wantMean[j])
				}
				if math.Abs(s.Scale[j]-tt.wantStd[j]) > 1e-10 {
					t.Errorf("Scale[%d] = %v, want %v", j, s.Scale[j], tt.wantStd[j])
				}
			}
			if got := s.Degenerate(); len(got) != 1 || got[0] != 2 {
				t.Errorf("Degenerate() = %v, want [2]", got)
			}

			scaled, err := s.Transform(X)
			if err != nil {
				t.Fatalf("Transform() error = %v", err)
			}
			r, _ := scaled.Dims()
			for j := range tt.wantMean {
				if !tt.withMean {
					break
				}
				var sum float64
				for i := 0; i < r; i++ {
					sum += scaled.At(i, j)
				}
				if math.Abs(sum) > 1e-10 {
					t.Errorf("column %d mean after Transform = %v, want 0", j, sum/float64(r))
				}
			}
		})
	}
}

func TestStandardScalerErrors(t *testing.T) {
	s := NewStandardScalerDefault()
	if _, err := s.Transform(mat.NewDense(1, 1, nil)); err == nil {
		t.Error("Transform() before Fit should fail")
	}
	if err := s.Fit(&mat.Dense{}); !errors.Is(err, errors.ErrInsufficientData) {
		t.Errorf("Fit(empty) error = %v, want InsufficientData", err)
	}
	if err := s.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Transform(mat.NewDense(2, 3, nil)); err == nil {
		t.Error("Transform() with wrong width should fail")
	}
}
