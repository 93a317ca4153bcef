package report

import (
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/YuminosukeSato/ghgforest/dataset"
	"github.com/YuminosukeSato/ghgforest/metrics"
	"github.com/YuminosukeSato/ghgforest/pipeline"
	"github.com/YuminosukeSato/ghgforest/pkg/errors"
	"github.com/YuminosukeSato/ghgforest/pkg/log"
	"github.com/YuminosukeSato/ghgforest/sklearn/inspection"
)

// Float encodes NaN and ±Inf as JSON null.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

// PartitionSummary is the exported view of one pipeline.Evaluation.
type PartitionSummary struct {
	Partition string          `json:"partition"`
	Mode      string          `json:"mode"`
	Scores    *metrics.Scores `json:"scores,omitempty"`
	Error     string          `json:"error,omitempty"`
	Dates     []string        `json:"dates"`
	Observed  []float64       `json:"observed"`
	Predicted []Float         `json:"predicted"`
}

// Summary is the JSON document written for a run.
type Summary struct {
	RunID       string                        `json:"run_id"`
	Seed        uint64                        `json:"seed"`
	DurationMs  int64                         `json:"duration_ms"`
	Drivers     []inspection.DriverImportance `json:"drivers"`
	Importance  *inspection.ImportanceTable   `json:"importance"`
	ALE         []*inspection.ALECurve        `json:"ale"`
	SkippedALE  []string                      `json:"skipped_ale,omitempty"`
	Synthetic   int                           `json:"synthetic_rows"`
	Partitions  []PartitionSummary            `json:"partitions"`
	OOBErrorMSE Float                         `json:"oob_mse"`
}

// NewSummary builds the export of res.
func NewSummary(res *pipeline.Result) *Summary {
	s := &Summary{
		RunID:      res.RunID.String(),
		Seed:       res.Config.Seed,
		DurationMs: res.Duration.Milliseconds(),
		Drivers:    res.Drivers,
		Importance: res.Importance,
		ALE:        res.ALE,
	}
	for _, f := range res.SkippedALE {
		s.SkippedALE = append(s.SkippedALE, f.Name())
	}
	if res.Resampled != nil {
		s.Synthetic = res.Resampled.NumSynthetic()
	}
	if res.Forest != nil {
		s.OOBErrorMSE = Float(res.Forest.OOBError())
	}
	for _, e := range res.Evaluations {
		ps := PartitionSummary{
			Partition: e.Partition,
			Mode:      e.Mode.String(),
			Observed:  e.Observed,
			Dates:     make([]string, len(e.Dates)),
			Predicted: make([]Float, len(e.Predicted)),
		}
		if e.Err != nil {
			ps.Error = e.Err.Error()
		} else {
			scores := e.Scores
			ps.Scores = &scores
		}
		for i, d := range e.Dates {
			ps.Dates[i] = d.Format(time.DateOnly)
		}
		for i, v := range e.Predicted {
			ps.Predicted[i] = Float(v)
		}
		s.Partitions = append(s.Partitions, ps)
	}
	return s
}

// WriteSummary encodes the summary of res as indented JSON.
func WriteSummary(w io.Writer, res *pipeline.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewSummary(res)); err != nil {
		return errors.Wrap(err, "encode summary")
	}
	return nil
}

// WriteAll writes summary.json, importance.png, one predictions_<partition>.png
// per scored partition and one ale_<feature>.png per curve into dir, which
// is created if needed. It returns the written paths.
func WriteAll(res *pipeline.Result, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", dir)
	}
	logger := log.GetLoggerWithName("report").With(log.RunIDKey, res.RunID.String())
	var written []string

	path := filepath.Join(dir, "summary.json")
	if err := writeFile(path, func(w io.Writer) error { return WriteSummary(w, res) }); err != nil {
		return written, err
	}
	written = append(written, path)

	if len(res.Drivers) > 0 {
		p, err := ImportancePlot(res.Drivers, "Driver importance")
		if err != nil {
			return written, err
		}
		path = filepath.Join(dir, "importance.png")
		if err := Save(p, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	for _, e := range res.Evaluations {
		if e.Err != nil {
			continue
		}
		p, err := PredictionPlot(e)
		if err != nil {
			return written, err
		}
		path = filepath.Join(dir, "predictions_"+e.Partition+".png")
		if err := Save(p, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	for _, c := range res.ALE {
		p, err := ALEPlot(c)
		if err != nil {
			return written, err
		}
		path = filepath.Join(dir, aleFileName(c.Feature))
		if err := Save(p, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	logger.Info("Wrote report", "files", len(written), "dir", dir)
	return written, nil
}

func aleFileName(f dataset.Feature) string {
	return "ale_" + f.Name() + ".png"
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}
