package dataset_test

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ghgforest/dataset"
	"github.com/YuminosukeSato/ghgforest/dataset/datasettest"
	"github.com/YuminosukeSato/ghgforest/pkg/errors"
)

func days(n int) []time.Time {
	start := time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

func TestParseFeature(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    dataset.Feature
		wantErr bool
	}{
		{name: "unlagged", in: "precipitation", want: dataset.Feature{Driver: "precipitation"}},
		{name: "lagged", in: "water_table_lag3", want: dataset.Feature{Driver: "water_table", Lag: 3}},
		{name: "lag zero suffix", in: "air_temperature_lag0", want: dataset.Feature{Driver: "air_temperature"}},
		{name: "bare suffix", in: "flux_lag", want: dataset.Feature{Driver: "flux_lag"}},
		{name: "leading suffix", in: "_lag2", want: dataset.Feature{Driver: "_lag2"}},
		{name: "empty", in: "", wantErr: true},
		{name: "negative lag", in: "precipitation_lag-1", wantErr: true},
		{name: "non-numeric lag", in: "precipitation_lagx", wantErr: true},
		{name: "trailing text after lag", in: "water_table_lag3b", wantErr: true},
		{name: "word after suffix", in: "flux_lagged", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dataset.ParseFeature(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFeatureName(t *testing.T) {
	assert.Equal(t, "precipitation", dataset.Feature{Driver: "precipitation"}.Name())
	assert.Equal(t, "precipitation_lag7", dataset.Feature{Driver: "precipitation", Lag: 7}.String())

	for _, f := range dataset.LaggedFeatures(dataset.ReferenceDrivers, dataset.MaxReferenceLag) {
		back, err := dataset.ParseFeature(f.Name())
		require.NoError(t, err)
		assert.Equal(t, f, back)
	}
}

func TestLaggedFeatures(t *testing.T) {
	got := dataset.LaggedFeatures([]string{"a", "b"}, 2)
	want := []dataset.Feature{
		{Driver: "a"}, {Driver: "a", Lag: 1}, {Driver: "a", Lag: 2},
		{Driver: "b"}, {Driver: "b", Lag: 1}, {Driver: "b", Lag: 2},
	}
	assert.Equal(t, want, got)
	assert.Equal(t, []string{"a", "b"}, dataset.Drivers(got))
	assert.Len(t, dataset.LaggedFeatures(dataset.ReferenceDrivers, dataset.MaxReferenceLag), 56)
}

func TestNewValidation(t *testing.T) {
	features := []dataset.Feature{{Driver: "a"}, {Driver: "b"}}
	x := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})

	t.Run("valid", func(t *testing.T) {
		ds, err := dataset.New(days(3), []float64{1, 2, 3}, x, features)
		require.NoError(t, err)
		assert.Equal(t, 3, ds.Len())
		assert.Equal(t, 2, ds.NumFeatures())
		assert.Equal(t, []float64{2, 4, 6}, ds.Column(1))
		assert.Equal(t, 1, ds.FeatureIndex(dataset.Feature{Driver: "b"}))
		assert.Equal(t, -1, ds.FeatureIndex(dataset.Feature{Driver: "c"}))
	})

	t.Run("copies input", func(t *testing.T) {
		raw := mat.DenseCopyOf(x)
		ds, err := dataset.New(days(3), []float64{1, 2, 3}, raw, features)
		require.NoError(t, err)
		raw.Set(0, 0, 100)
		assert.Equal(t, 1.0, ds.X().At(0, 0))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := dataset.New(nil, nil, x, features)
		assert.True(t, errors.Is(err, errors.ErrInsufficientData))
	})

	t.Run("target length mismatch", func(t *testing.T) {
		_, err := dataset.New(days(3), []float64{1, 2}, x, features)
		var dimErr *errors.DimensionError
		assert.True(t, errors.As(err, &dimErr))
	})

	t.Run("unordered dates", func(t *testing.T) {
		d := days(3)
		d[1], d[2] = d[2], d[1]
		_, err := dataset.New(d, []float64{1, 2, 3}, x, features)
		assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))
	})

	t.Run("duplicate date", func(t *testing.T) {
		d := days(3)
		d[2] = d[1]
		_, err := dataset.New(d, []float64{1, 2, 3}, x, features)
		assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))
	})

	t.Run("duplicate feature", func(t *testing.T) {
		_, err := dataset.New(days(3), []float64{1, 2, 3}, x, []dataset.Feature{{Driver: "a"}, {Driver: "a"}})
		assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))
	})

	t.Run("non-finite", func(t *testing.T) {
		bad := mat.DenseCopyOf(x)
		bad.Set(2, 1, math.NaN())
		_, err := dataset.New(days(3), []float64{1, 2, 3}, bad, features)
		var nf *errors.NonFiniteValueError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, "b", nf.What)
		assert.Equal(t, 2, nf.Index)
	})
}

func TestSubset(t *testing.T) {
	features := []dataset.Feature{{Driver: "a"}}
	ds, err := dataset.New(days(4), []float64{10, 20, 30, 40}, mat.NewDense(4, 1, []float64{1, 2, 3, 4}), features)
	require.NoError(t, err)
	ds.TargetName = "ch4"

	sub := ds.Subset([]int{3, 1})
	assert.Equal(t, 2, sub.Len())
	assert.Equal(t, []float64{40, 20}, sub.Target())
	assert.Equal(t, []float64{4, 2}, sub.Column(0))
	assert.Equal(t, ds.Date(3), sub.Date(0))
	assert.Equal(t, "ch4", sub.TargetName)

	empty := ds.Subset(nil)
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, 1, empty.NumFeatures())
}

func TestWithLags(t *testing.T) {
	features := []dataset.Feature{{Driver: "p"}, {Driver: "q"}}
	x := mat.NewDense(5, 2, []float64{
		1, 10,
		2, 20,
		3, 30,
		4, 40,
		5, 50,
	})
	ds, err := dataset.New(days(5), []float64{0.1, 0.2, 0.3, 0.4, 0.5}, x, features)
	require.NoError(t, err)

	lagged, err := dataset.WithLags(ds, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, lagged.Len())
	assert.Equal(t, 6, lagged.NumFeatures())
	assert.Equal(t, []float64{0.3, 0.4, 0.5}, lagged.Target())
	assert.Equal(t, ds.Date(2), lagged.Date(0))

	j, ok := lagged.Lookup("p_lag2")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3}, lagged.Column(j))
	j, ok = lagged.Lookup("q_lag1")
	require.True(t, ok)
	assert.Equal(t, []float64{20, 30, 40}, lagged.Column(j))

	_, err = dataset.WithLags(ds, 5)
	assert.True(t, errors.Is(err, errors.ErrInsufficientData))
	_, err = dataset.WithLags(ds, -1)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))
}

func TestReadCSV(t *testing.T) {
	const input = `date,flux,site,precipitation,water_table_lag1
2021-06-01,1.5,A,0.0,-10
2021-06-02,2.5,A,4.2,-11
2021-06-03,0.5,A,1.0,-9
`
	opts := dataset.DefaultCSVOptions()
	opts.Exclude = []string{"site"}
	ds, err := dataset.ReadCSV(strings.NewReader(input), opts)
	require.NoError(t, err)

	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, "flux", ds.TargetName)
	assert.Equal(t, []float64{1.5, 2.5, 0.5}, ds.Target())
	assert.Equal(t, []dataset.Feature{{Driver: "precipitation"}, {Driver: "water_table", Lag: 1}}, ds.Features())
	assert.Equal(t, time.Date(2021, time.June, 2, 0, 0, 0, 0, time.UTC), ds.Date(1))
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "missing target column", input: "date,precipitation\n2021-01-01,1\n"},
		{name: "missing value", input: "date,flux,precipitation\n2021-01-01,1,NA\n"},
		{name: "bad date", input: "date,flux,precipitation\n01/01/2021,1,2\n"},
		{name: "no rows", input: "date,flux,precipitation\n"},
		{name: "no features", input: "date,flux\n2021-01-01,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dataset.ReadCSV(strings.NewReader(tt.input), dataset.DefaultCSVOptions())
			assert.Error(t, err)
		})
	}

	_, err := dataset.ReadCSV(strings.NewReader(""), dataset.DefaultCSVOptions())
	assert.True(t, errors.Is(err, errors.ErrEmptyData))
}

func TestSyntheticLinear(t *testing.T) {
	opts := datasettest.DefaultOptions()
	opts.WithConstant = true
	ds := datasettest.Linear(opts)

	assert.Equal(t, 1460-dataset.MaxReferenceLag, ds.Len())
	assert.Equal(t, dataset.MaxReferenceLag, ds.LeadIn())
	assert.Equal(t, datasettest.Start.AddDate(0, 0, dataset.MaxReferenceLag), ds.Date(0))
	assert.Equal(t, 3*(dataset.MaxReferenceLag+1), ds.NumFeatures())

	again := datasettest.Linear(opts)
	assert.True(t, mat.Equal(ds.X(), again.X()))

	j, ok := ds.Lookup(datasettest.Constant + "_lag3")
	require.True(t, ok)
	for _, v := range ds.Column(j) {
		assert.Equal(t, 1.0, v)
	}
}
