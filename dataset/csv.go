package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ghgforest/pkg/errors"
)

// CSVOptions selects the columns of a flux table.
type CSVOptions struct {
	DateColumn   string   `yaml:"date_column"`
	TargetColumn string   `yaml:"target_column"`
	DateLayout   string   `yaml:"date_layout"`
	Exclude      []string `yaml:"exclude,omitempty"`
}

// DefaultCSVOptions expects "date" in YYYY-MM-DD and a "flux" target.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		DateColumn:   "date",
		TargetColumn: "flux",
		DateLayout:   time.DateOnly,
	}
}

// ReadCSVFile opens path and calls ReadCSV.
func ReadCSVFile(path string, opts CSVOptions) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return ReadCSV(f, opts)
}

// ReadCSV parses a header-first CSV. Every column other than the date,
// the target and the excluded ones is a numeric feature whose name is
// parsed with ParseFeature. Rows are not reordered, so the file must
// already be in date order.
func ReadCSV(r io.Reader, opts CSVOptions) (*Dataset, error) {
	if opts.DateLayout == "" {
		opts.DateLayout = time.DateOnly
	}
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Wrap(errors.ErrEmptyData, "read csv header")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read csv header")
	}

	dateCol, targetCol := -1, -1
	excluded := make(map[string]bool, len(opts.Exclude))
	for _, name := range opts.Exclude {
		excluded[name] = true
	}
	var featureCols []int
	var features []Feature
	for i, name := range header {
		name = strings.TrimSpace(name)
		switch {
		case name == opts.DateColumn:
			dateCol = i
		case name == opts.TargetColumn:
			targetCol = i
		case excluded[name]:
		default:
			f, err := ParseFeature(name)
			if err != nil {
				return nil, errors.Wrapf(err, "column %d", i)
			}
			featureCols = append(featureCols, i)
			features = append(features, f)
		}
	}
	if dateCol < 0 {
		return nil, errors.NewInvalidConfigurationError("dataset", "date_column", opts.DateColumn, "column not found in header")
	}
	if targetCol < 0 {
		return nil, errors.NewInvalidConfigurationError("dataset", "target_column", opts.TargetColumn, "column not found in header")
	}

	var (
		dates  []time.Time
		target []float64
		values []float64
	)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(err, "read csv line %d", line)
		}
		date, err := time.Parse(opts.DateLayout, strings.TrimSpace(record[dateCol]))
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: parse date", line)
		}
		y, err := parseValue(record[targetCol])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: column %s", line, opts.TargetColumn)
		}
		dates = append(dates, date)
		target = append(target, y)
		for k, col := range featureCols {
			v, err := parseValue(record[col])
			if err != nil {
				return nil, errors.Wrapf(err, "line %d: column %s", line, features[k].Name())
			}
			values = append(values, v)
		}
	}
	if len(dates) == 0 {
		return nil, errors.NewInsufficientDataError("dataset", "csv rows", 1, 0)
	}
	if len(features) == 0 {
		return nil, errors.NewInsufficientDataError("dataset", "feature columns", 1, 0)
	}

	ds, err := New(dates, target, mat.NewDense(len(dates), len(features), values), features)
	if err != nil {
		return nil, err
	}
	ds.TargetName = opts.TargetColumn
	return ds, nil
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "NA") {
		return 0, errors.New("missing value")
	}
	return strconv.ParseFloat(s, 64)
}
