// Package metrics は予測精度の評価指標を提供する
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/ghgforest/pkg/errors"
	"github.com/YuminosukeSato/ghgforest/pkg/log"
)

const stage = "evaluate"

// Scores は一つのパーティションに対する評価結果
type Scores struct {
	// RMSE は平方根平均二乗誤差
	RMSE float64 `json:"rmse"`
	// RSquared は予測値と観測値のピアソン相関係数の二乗
	RSquared float64 `json:"r_squared"`
	// MAE は平均絶対誤差
	MAE float64 `json:"mae"`
	// N は評価に使ったペアの数
	N int `json:"n"`
}

// Evaluate は予測値と観測値から RMSE と R² を計算する
//
// R² は決定係数ではなく pearson(pred, obs)² である。
// どちらかの分散がゼロの場合は R² = 0 とし、UndefinedMetricWarning を発生させる
//
// エラー:
//   - 長さが異なる場合 DimensionError
//   - ペアが2つ未満の場合 InsufficientDataError
//   - NaN や Inf を含む場合 NonFiniteValueError
func Evaluate(pred, obs mat.Vector) (Scores, error) {
	n := obs.Len()
	if pred.Len() != n {
		return Scores{}, errors.NewDimensionError("Evaluate", n, pred.Len(), 0)
	}
	if n < 2 {
		return Scores{}, errors.NewInsufficientDataError(stage, "prediction pairs", 2, n)
	}

	p := make([]float64, n)
	o := make([]float64, n)
	for i := 0; i < n; i++ {
		p[i], o[i] = pred.AtVec(i), obs.AtVec(i)
	}
	if err := errors.CheckFinite(stage, "predictions", p); err != nil {
		return Scores{}, err
	}
	if err := errors.CheckFinite(stage, "observations", o); err != nil {
		return Scores{}, err
	}

	yTrue, yPred := mat.NewVecDense(n, o), mat.NewVecDense(n, p)
	rmse, err := RMSE(yTrue, yPred)
	if err != nil {
		return Scores{}, err
	}
	mae, err := MAE(yTrue, yPred)
	if err != nil {
		return Scores{}, err
	}
	r2, err := PearsonR2(yTrue, yPred)
	if err != nil {
		return Scores{}, err
	}
	return Scores{RMSE: rmse, RSquared: r2, MAE: mae, N: n}, nil
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewInsufficientDataError("MSE", "observations", 1, 0)
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("MSE", n, yPred.Len(), 0)
	}

	// MSE = (1/n) * Σ(yTrue - yPred)²
	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}
	return sum / float64(n), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewInsufficientDataError("MAE", "observations", 1, 0)
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("MAE", n, yPred.Len(), 0)
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}
	return sum / float64(n), nil
}

// PearsonR2 はピアソン相関係数の二乗を計算する
func PearsonR2(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n < 2 {
		return 0, errors.NewInsufficientDataError("PearsonR2", "observations", 2, n)
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("PearsonR2", n, yPred.Len(), 0)
	}

	o := mat.Col(nil, 0, yTrue)
	p := mat.Col(nil, 0, yPred)
	if constant(o) || constant(p) {
		w := errors.NewUndefinedMetricWarning("r_squared", "zero variance in predictions or observations", 0)
		errors.Warn(w)
		log.GetLoggerWithName("metrics").Debug("R² undefined", log.SamplesKey, n)
		return 0, nil
	}
	r := stat.Correlation(o, p, nil)
	return r * r, nil
}

func constant(v []float64) bool {
	for _, x := range v[1:] {
		if x != v[0] {
			return false
		}
	}
	return true
}
