package model

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Regressor は連続値の目的変数を学習するモデルのインターフェース
type Regressor interface {
	// Fit はモデルを訓練データで学習させる。長時間の学習は ctx で中断できる
	Fit(ctx context.Context, X mat.Matrix, y []float64) error
}

// Predictor は予測可能なモデルのインターフェース。
// ALE のようにモデルの内部構造を必要としない説明手法はこれだけに依存する
type Predictor interface {
	// Predict は入力データの各行に対する予測値を返す
	Predict(X mat.Matrix) (*mat.VecDense, error)
}

// Transformer はデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)
}

// PredictorFunc は関数を Predictor として扱うためのアダプタ
type PredictorFunc func(X mat.Matrix) (*mat.VecDense, error)

// Predict は f(X) を呼び出す
func (f PredictorFunc) Predict(X mat.Matrix) (*mat.VecDense, error) {
	return f(X)
}
