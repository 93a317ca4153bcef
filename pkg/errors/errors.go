// Package errors はパイプライン全体のエラーハンドリングと警告システムを提供します。
// 設定エラー・データ不足・数値的退化の3種類を構造化された型として表現し、
// どのステージ・どのパラメータ・どの値が原因かを常に報告します。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("ghgforest-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler は警告ハンドラを設定し、以前のハンドラを返します。
//
// 例:
//
//	prev := errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
//	defer errors.SetWarningHandler(prev)
func SetWarningHandler(handler func(w error)) func(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	prev := warningHandler
	warningHandler = handler
	return prev
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// カスタムハンドラとzerologの両方が設定されている場合は両方に通知します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
	}
	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	センチネルエラー
//
// ===========================================================================

var (
	// ErrInvalidConfiguration はパラメータが許容範囲外の場合のエラー種別です。
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInsufficientData はデータ量が必要最小限に満たない場合のエラー種別です。
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNumericDegeneracy は分散ゼロの特徴量などで計算が退化した場合の種別です。
	ErrNumericDegeneracy = errors.New("numeric degeneracy")

	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = errors.New("empty data")
)

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// InvalidConfigurationError はステージのパラメータが許容範囲外の場合のエラーです。
// 計算開始前に検出され、致命的として扱われます。
type InvalidConfigurationError struct {
	Stage  string
	Param  string
	Value  interface{}
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("ghgforest: %s: invalid configuration for parameter '%s': %s (got: %v)",
		e.Stage, e.Param, e.Reason, e.Value)
}

// Is は errors.Is(err, ErrInvalidConfiguration) を満たします。
func (e *InvalidConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InvalidConfigurationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("stage", e.Stage).
		Str("param_name", e.Param).
		Interface("value", e.Value).
		Str("reason", e.Reason).
		Str("type", "InvalidConfigurationError")
}

// NewInvalidConfigurationError は新しいInvalidConfigurationErrorを作成し、スタックトレースを付与します。
func NewInvalidConfigurationError(stage, param string, value interface{}, reason string) error {
	err := &InvalidConfigurationError{Stage: stage, Param: param, Value: value, Reason: reason}
	return errors.WithStack(err)
}

// InsufficientDataError はパーティション・関連度クラス・評価ペアが
// 必要最小限に満たない場合のエラーです。該当ステージのみ致命的です。
type InsufficientDataError struct {
	Stage string
	What  string
	Need  int
	Got   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("ghgforest: %s: insufficient data in %s: need at least %d, got %d",
		e.Stage, e.What, e.Need, e.Got)
}

// Is は errors.Is(err, ErrInsufficientData) を満たします。
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InsufficientDataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("stage", e.Stage).
		Str("what", e.What).
		Int("need", e.Need).
		Int("got", e.Got).
		Str("type", "InsufficientDataError")
}

// NewInsufficientDataError は新しいInsufficientDataErrorを作成し、スタックトレースを付与します。
func NewInsufficientDataError(stage, what string, need, got int) error {
	err := &InsufficientDataError{Stage: stage, What: what, Need: need, Got: got}
	return errors.WithStack(err)
}

// NumericDegeneracyWarning は分散ゼロなどで特徴量やビンを処理できない場合の警告です。
// 計算全体は中断せず、対象をスキップします。
type NumericDegeneracyWarning struct {
	Stage   string
	Feature string
	Reason  string
}

func (w *NumericDegeneracyWarning) Error() string {
	return fmt.Sprintf("%s: skipping feature '%s': %s", w.Stage, w.Feature, w.Reason)
}

// Is は errors.Is(w, ErrNumericDegeneracy) を満たします。
func (w *NumericDegeneracyWarning) Is(target error) bool {
	return target == ErrNumericDegeneracy
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *NumericDegeneracyWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("stage", w.Stage).
		Str("feature", w.Feature).
		Str("reason", w.Reason).
		Str("type", "NumericDegeneracyWarning")
}

// NewNumericDegeneracyWarning は新しいNumericDegeneracyWarningを作成します。
func NewNumericDegeneracyWarning(stage, feature, reason string) *NumericDegeneracyWarning {
	return &NumericDegeneracyWarning{Stage: stage, Feature: feature, Reason: reason}
}

// UndefinedMetricWarning は評価指標が計算できない場合に発生する警告です。
// 例えば、予測値の分散がゼロで相関係数が定義できない場合など。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64 // この条件で返される値
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result).
		Str("type", "UndefinedMetricWarning")
}

// NewUndefinedMetricWarning は新しいUndefinedMetricWarningを作成します。
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// NotFittedError はモデルが未学習の状態で `Predict` などを呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("ghgforest: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("ghgforest: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// StageError はパイプラインのステージ名を伴ってエラーをラップします。
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("ghgforest: stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError は新しいStageErrorを作成し、スタックトレースを付与します。
func NewStageError(stage string, err error) error {
	return errors.WithStack(&StageError{Stage: stage, Err: err})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}
