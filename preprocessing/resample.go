// Package preprocessing prepares the training set before model fitting:
// feature standardization and imbalance-aware resampling of a continuous
// target.
package preprocessing

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ghgforest/core/parallel"
	"github.com/YuminosukeSato/ghgforest/dataset"
	"github.com/YuminosukeSato/ghgforest/pkg/errors"
	"github.com/YuminosukeSato/ghgforest/pkg/log"
)

const stage = "resample"

// Distance は近傍探索で使う距離の名前
type Distance string

// 対応している距離
const (
	Euclidean Distance = "euclidean"
	Manhattan Distance = "manhattan"
	Chebyshev Distance = "chebyshev"
)

// norm は floats.Distance に渡す L の値を返す
func (d Distance) norm() (float64, bool) {
	switch d {
	case Euclidean, "":
		return 2, true
	case Manhattan:
		return 1, true
	case Chebyshev:
		return math.Inf(1), true
	}
	return 0, false
}

// ResampleConfig はリサンプリングの設定
type ResampleConfig struct {
	// Bands が空の場合は AutoBands で導出する
	Bands []RelevanceBand `yaml:"bands,omitempty"`

	// RelevanceThreshold 以上の関連度を持つ値が UnderRepresented になる
	RelevanceThreshold float64 `yaml:"relevance_threshold"`

	// UnderSample は OverRepresented クラスで残す行の割合
	UnderSample float64 `yaml:"under_sample"`

	// OverSample は UnderRepresented クラスの拡大倍率
	OverSample float64 `yaml:"over_sample"`

	// K は補間に使う近傍数
	K int `yaml:"k"`

	Distance Distance `yaml:"distance"`

	Seed    uint64 `yaml:"-"`
	Workers int    `yaml:"-"`
}

// DefaultResampleConfig は参照設定を返す
func DefaultResampleConfig() ResampleConfig {
	return ResampleConfig{
		RelevanceThreshold: 0.5,
		UnderSample:        0.7,
		OverSample:         2,
		K:                  5,
		Distance:           Euclidean,
	}
}

// Validate は設定値を検査する
func (c ResampleConfig) Validate() error {
	if !(c.UnderSample > 0 && c.UnderSample <= 1) {
		return errors.NewInvalidConfigurationError(stage, "under_sample", c.UnderSample, "must be in (0, 1]")
	}
	if !(c.OverSample >= 1) || math.IsInf(c.OverSample, 0) {
		return errors.NewInvalidConfigurationError(stage, "over_sample", c.OverSample, "must be a finite value >= 1")
	}
	if c.K < 1 {
		return errors.NewInvalidConfigurationError(stage, "k", c.K, "must be at least 1")
	}
	if _, ok := c.Distance.norm(); !ok {
		return errors.NewInvalidConfigurationError(stage, "distance", c.Distance, "must be one of euclidean, manhattan, chebyshev")
	}
	if len(c.Bands) > 0 {
		return ValidateBands(c.Bands)
	}
	if !(c.RelevanceThreshold > 0 && c.RelevanceThreshold <= 1) {
		return errors.NewInvalidConfigurationError(stage, "relevance_threshold", c.RelevanceThreshold, "must be in (0, 1]")
	}
	return nil
}

// ClassSummary はクラスごとのリサンプリング前後の行数
type ClassSummary struct {
	Band      RelevanceBand
	Before    int
	After     int
	Synthetic int
}

// ResampleResult はリサンプリング後の訓練データ。
// 元データから残った行が時系列順に並び、その後に合成行が続く
type ResampleResult struct {
	Dataset *dataset.Dataset

	// Synthetic[i] は行 i が補間で作られた行かどうか
	Synthetic []bool

	// Source[i] は行 i の元になった入力行。合成行では補間の起点
	Source []int

	Bands   []RelevanceBand
	Classes []ClassSummary
}

// NumSynthetic は合成行の数を返す
func (r *ResampleResult) NumSynthetic() int {
	n := 0
	for _, s := range r.Synthetic {
		if s {
			n++
		}
	}
	return n
}

type syntheticRow struct {
	seed int
	x    []float64
	y    float64
	date time.Time
}

// Resample は SMOGN 方式で訓練データの不均衡を補正する。
//
// OverRepresented クラスからは round(UnderSample × n) 行を無作為に残し、
// UnderRepresented クラスには round((OverSample − 1) × n) 行を追加する。
// 追加する行は、起点の行と同じクラスの k 近傍のうち一つとの間を
// 同じ割合で特徴量と目的変数の両方について線形補間したもの。
// Normal クラスは変更しない
func Resample(ctx context.Context, ds *dataset.Dataset, cfg ResampleConfig) (*ResampleResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := log.GetLoggerWithName("preprocessing.resample")

	y := ds.Target()
	bands := cfg.Bands
	if len(bands) == 0 {
		var err error
		bands, err = AutoBands(y, cfg.RelevanceThreshold)
		if err != nil {
			return nil, err
		}
	}

	members := make([][]int, len(bands))
	for i, v := range y {
		c := classOf(bands, v)
		members[c] = append(members[c], i)
	}

	// 距離は標準化した特徴量で測る。分散ゼロの列は距離から除外する
	scaler := NewStandardScalerDefault()
	scaled, err := scaler.FitTransform(ds.X())
	if err != nil {
		return nil, err
	}
	features := ds.Features()
	excluded := make(map[int]bool)
	for _, j := range scaler.Degenerate() {
		excluded[j] = true
		errors.Warn(errors.NewNumericDegeneracyWarning(stage, features[j].Name(), "zero variance, excluded from neighbor distance"))
	}
	active := make([]int, 0, ds.NumFeatures())
	for j := 0; j < ds.NumFeatures(); j++ {
		if !excluded[j] {
			active = append(active, j)
		}
	}
	points := make([][]float64, ds.Len())
	for i := range points {
		p := make([]float64, len(active))
		for k, j := range active {
			p[k] = scaled.At(i, j)
		}
		points[i] = p
	}
	l, _ := cfg.Distance.norm()

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d))
	var kept []int
	var synthetic []syntheticRow
	summaries := make([]ClassSummary, len(bands))

	for c, band := range bands {
		idx := members[c]
		summaries[c] = ClassSummary{Band: band, Before: len(idx)}
		if len(idx) == 0 {
			continue
		}

		switch band.Status {
		case Normal:
			kept = append(kept, idx...)
			summaries[c].After = len(idx)

		case OverRepresented:
			keep := int(math.Round(cfg.UnderSample * float64(len(idx))))
			shuffled := slices.Clone(idx)
			rng.Shuffle(len(shuffled), func(a, b int) {
				shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
			})
			kept = append(kept, shuffled[:keep]...)
			summaries[c].After = keep

		case UnderRepresented:
			kept = append(kept, idx...)
			nSyn := int(math.Round((cfg.OverSample - 1) * float64(len(idx))))
			if nSyn == 0 {
				summaries[c].After = len(idx)
				continue
			}
			if len(idx) < 2 {
				return nil, errors.NewInsufficientDataError(stage,
					fmt.Sprintf("members of under-represented class %d", c), 2, len(idx))
			}
			k := min(cfg.K, len(idx)-1)
			if k < cfg.K {
				logger.Debug("Reduced neighbor count for small class",
					log.ClassKey, c,
					"k", k,
					log.SamplesKey, len(idx),
				)
			}

			neighbors := make([][]int, len(idx))
			err := parallel.ForEach(ctx, len(idx), cfg.Workers, func(_ context.Context, s int) error {
				neighbors[s] = nearest(points, idx, s, k, l)
				return nil
			})
			if err != nil {
				return nil, err
			}

			counts := make([]int, len(idx))
			per, rem := nSyn/len(idx), nSyn%len(idx)
			for s := range counts {
				counts[s] = per
			}
			for _, s := range rng.Perm(len(idx))[:rem] {
				counts[s]++
			}

			X := ds.X()
			for s, seed := range idx {
				for n := 0; n < counts[s]; n++ {
					nb := neighbors[s][rng.IntN(len(neighbors[s]))]
					frac := rng.Float64()
					for frac == 0 {
						frac = rng.Float64()
					}
					row := make([]float64, ds.NumFeatures())
					for j := range row {
						a := X.At(seed, j)
						row[j] = a + frac*(X.At(nb, j)-a)
					}
					synthetic = append(synthetic, syntheticRow{
						seed: seed,
						x:    row,
						y:    y[seed] + frac*(y[nb]-y[seed]),
						date: ds.Date(seed),
					})
				}
			}
			summaries[c].After = len(idx) + nSyn
			summaries[c].Synthetic = nSyn
		}
	}
	slices.Sort(kept)

	total := len(kept) + len(synthetic)
	if total == 0 {
		return nil, errors.NewInsufficientDataError(stage, "rows after resampling", 1, 0)
	}
	out := mat.NewDense(total, ds.NumFeatures(), nil)
	dates := make([]time.Time, 0, total)
	target := make([]float64, 0, total)
	isSynthetic := make([]bool, total)
	source := make([]int, 0, total)
	X := ds.X()
	for r, i := range kept {
		out.SetRow(r, mat.Row(nil, i, X))
		dates = append(dates, ds.Date(i))
		target = append(target, y[i])
		source = append(source, i)
	}
	for s, row := range synthetic {
		r := len(kept) + s
		out.SetRow(r, row.x)
		dates = append(dates, row.date)
		target = append(target, row.y)
		source = append(source, row.seed)
		isSynthetic[r] = true
	}

	resampled, err := dataset.FromMatrix(dates, target, out, features)
	if err != nil {
		return nil, err
	}
	resampled.TargetName = ds.TargetName

	for c, s := range summaries {
		logger.Debug("Resampled class",
			log.ClassKey, c,
			"status", s.Band.Status.String(),
			"upper", s.Band.Upper,
			"before", s.Before,
			"after", s.After,
		)
	}
	logger.Info("Resampled training set",
		log.OperationKey, log.OperationResample,
		log.SamplesKey, total,
		"input_samples", ds.Len(),
		"synthetic", len(synthetic),
	)

	return &ResampleResult{
		Dataset:   resampled,
		Synthetic: isSynthetic,
		Source:    source,
		Bands:     bands,
		Classes:   summaries,
	}, nil
}

type neighbor struct {
	dist float64
	row  int
}

// nearest は idx[s] と同じクラスの中で距離の近い k 行を返す。
// 距離が等しい場合は行番号の小さい方を優先する
func nearest(points [][]float64, idx []int, s, k int, l float64) []int {
	origin := points[idx[s]]
	cands := make([]neighbor, 0, len(idx)-1)
	for t, row := range idx {
		if t == s {
			continue
		}
		cands = append(cands, neighbor{dist: distance(origin, points[row], l), row: row})
	}
	slices.SortFunc(cands, func(a, b neighbor) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.row, b.row)
	})
	out := make([]int, k)
	for i := range out {
		out[i] = cands[i].row
	}
	return out
}

func distance(a, b []float64, l float64) float64 {
	if len(a) == 0 {
		return 0
	}
	return floats.Distance(a, b, l)
}
