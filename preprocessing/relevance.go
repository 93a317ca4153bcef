package preprocessing

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/ghgforest/pkg/errors"
)

// Status は関連度クラスの扱いを表す
type Status int

const (
	// Normal のクラスはそのままコピーされる
	Normal Status = iota
	// OverRepresented のクラスはアンダーサンプリングされる
	OverRepresented
	// UnderRepresented のクラスは合成サンプルで増やされる
	UnderRepresented
)

func (s Status) String() string {
	switch s {
	case Normal:
		return "normal"
	case OverRepresented:
		return "over"
	case UnderRepresented:
		return "under"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText は設定ファイル向けに名前を返す
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText は "normal", "over", "under" を受け付ける
func (s *Status) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "normal":
		*s = Normal
	case "over", "over_represented":
		*s = OverRepresented
	case "under", "under_represented":
		*s = UnderRepresented
	default:
		return errors.NewInvalidConfigurationError(stage, "bands.status", string(text), "must be one of normal, over, under")
	}
	return nil
}

// RelevanceBand は目的変数の区間 (前のバンドの Upper, Upper] とその扱い。
// 最後のバンドはそれより大きい値も含む
type RelevanceBand struct {
	Upper  float64 `yaml:"upper"`
	Status Status  `yaml:"status"`
}

// ValidateBands はバンドの Upper が狭義単調増加であることを確認する
func ValidateBands(bands []RelevanceBand) error {
	if len(bands) == 0 {
		return errors.NewInvalidConfigurationError(stage, "bands", 0, "at least one band is required")
	}
	for i := 1; i < len(bands); i++ {
		if !(bands[i].Upper > bands[i-1].Upper) {
			return errors.NewInvalidConfigurationError(stage, fmt.Sprintf("bands[%d].upper", i), bands[i].Upper,
				"band upper bounds must be strictly increasing")
		}
	}
	for i, b := range bands {
		if b.Status < Normal || b.Status > UnderRepresented {
			return errors.NewInvalidConfigurationError(stage, fmt.Sprintf("bands[%d].status", i), int(b.Status), "unknown status")
		}
	}
	return nil
}

// classOf は y が属するバンドの番号を返す
func classOf(bands []RelevanceBand, y float64) int {
	i, _ := slices.BinarySearchFunc(bands, y, func(b RelevanceBand, v float64) int {
		switch {
		case b.Upper < v:
			return -1
		case b.Upper > v:
			return 1
		}
		return 0
	})
	if i >= len(bands) {
		return len(bands) - 1
	}
	return i
}

// BoxplotRelevance は箱ひげ図の統計量に基づく関連度関数。
// 中央値で0、隣接値（ひげの端）で1、その間は線形に変化する
type BoxplotRelevance struct {
	Median    float64
	LowerAdj  float64
	UpperAdj  float64
	Quartile1 float64
	Quartile3 float64
}

// NewBoxplotRelevance は y から関連度関数を作る
func NewBoxplotRelevance(y []float64) (*BoxplotRelevance, error) {
	if len(y) == 0 {
		return nil, errors.NewInsufficientDataError(stage, "target values", 1, 0)
	}
	sorted := slices.Clone(y)
	slices.Sort(sorted)

	q1 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	median := stat.Quantile(0.5, stat.LinInterp, sorted, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	iqr := q3 - q1

	// 隣接値はフェンス内で最も外側の観測値
	lowFence, highFence := q1-1.5*iqr, q3+1.5*iqr
	lower, upper := sorted[0], sorted[len(sorted)-1]
	for _, v := range sorted {
		if v >= lowFence {
			lower = v
			break
		}
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i] <= highFence {
			upper = sorted[i]
			break
		}
	}
	return &BoxplotRelevance{
		Median:    median,
		LowerAdj:  lower,
		UpperAdj:  upper,
		Quartile1: q1,
		Quartile3: q3,
	}, nil
}

// Relevance は y の関連度を [0, 1] で返す
func (r *BoxplotRelevance) Relevance(y float64) float64 {
	var phi float64
	switch {
	case y < r.Median && r.Median > r.LowerAdj:
		phi = (r.Median - y) / (r.Median - r.LowerAdj)
	case y > r.Median && r.UpperAdj > r.Median:
		phi = (y - r.Median) / (r.UpperAdj - r.Median)
	}
	return math.Min(math.Max(phi, 0), 1)
}

// Bands は関連度が threshold 以上の区間を UnderRepresented、
// 中央の区間を OverRepresented とするバンドを返す。
// 広がりのない側には UnderRepresented のバンドを作らない
func (r *BoxplotRelevance) Bands(threshold float64) []RelevanceBand {
	var bands []RelevanceBand
	if r.Median > r.LowerAdj {
		bands = append(bands, RelevanceBand{
			Upper:  r.Median - threshold*(r.Median-r.LowerAdj),
			Status: UnderRepresented,
		})
	}
	if r.UpperAdj > r.Median {
		// 上側の境界値そのものは UnderRepresented に含める
		cut := r.Median + threshold*(r.UpperAdj-r.Median)
		bands = append(bands,
			RelevanceBand{Upper: math.Nextafter(cut, math.Inf(-1)), Status: OverRepresented},
			RelevanceBand{Upper: math.Inf(1), Status: UnderRepresented},
		)
	} else {
		bands = append(bands, RelevanceBand{Upper: math.Inf(1), Status: OverRepresented})
	}
	if len(bands) == 1 {
		// 目的変数がほぼ定数
		return []RelevanceBand{{Upper: math.Inf(1), Status: Normal}}
	}
	return bands
}

// AutoBands は y の箱ひげ図関連度から threshold でバンドを導出する
func AutoBands(y []float64, threshold float64) ([]RelevanceBand, error) {
	if !(threshold > 0 && threshold <= 1) {
		return nil, errors.NewInvalidConfigurationError(stage, "relevance_threshold", threshold, "must be in (0, 1]")
	}
	rel, err := NewBoxplotRelevance(y)
	if err != nil {
		return nil, err
	}
	return rel.Bands(threshold), nil
}
