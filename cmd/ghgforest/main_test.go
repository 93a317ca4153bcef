package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/ghgforest/dataset/datasettest"
	"github.com/YuminosukeSato/ghgforest/pipeline"
	"github.com/YuminosukeSato/ghgforest/pkg/errors"
	"github.com/YuminosukeSato/ghgforest/pkg/log"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	prev := log.GetLogger()
	t.Cleanup(func() { log.SetLogger(prev) })

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func writeSeries(t *testing.T, dir string, days int) string {
	t.Helper()
	opts := datasettest.DefaultOptions()
	opts.Days = days
	opts.MaxLag = 0
	ds := datasettest.Linear(opts)

	path := filepath.Join(dir, "flux.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := csv.NewWriter(f)
	header := []string{"date", "flux"}
	for _, feat := range ds.Features() {
		header = append(header, feat.Name())
	}
	require.NoError(t, w.Write(header))
	y := ds.Target()
	for i := 0; i < ds.Len(); i++ {
		row := []string{ds.Date(i).Format(time.DateOnly), strconv.FormatFloat(y[i], 'g', -1, 64)}
		for j := 0; j < ds.NumFeatures(); j++ {
			row = append(row, strconv.FormatFloat(ds.X().At(i, j), 'g', -1, 64))
		}
		require.NoError(t, w.Write(row))
	}
	w.Flush()
	require.NoError(t, w.Error())
	return path
}

func TestConfigCommand(t *testing.T) {
	out, err := execute(t, "config")
	require.NoError(t, err)
	cfg, err := pipeline.ParseConfig([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, pipeline.DefaultConfig(), cfg)
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	data := writeSeries(t, dir, 160)
	config := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(config, []byte(`
partition:
  cutoff_day: 120
forest:
  trees: 8
ale:
  bins: 5
`), 0o600))
	outDir := filepath.Join(dir, "report")

	out, err := execute(t, "run", "--data", data, "--config", config, "--out", outDir, "--lags", "2", "--seed", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "eval_within")
	assert.Contains(t, out, "eval_future")
	assert.Contains(t, out, datasettest.Signal)

	for _, name := range []string{"summary.json", "importance.png", "ale_signal_lag2.png", "predictions_eval_future.png"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}
}

func TestRunCommandRepeat(t *testing.T) {
	dir := t.TempDir()
	data := writeSeries(t, dir, 160)
	config := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(config, []byte("partition: {cutoff_day: 120}\nforest: {trees: 5}\nale: {bins: 4}\n"), 0o600))
	outDir := filepath.Join(dir, "report")

	_, err := execute(t, "run", "--data", data, "--config", config, "--out", outDir, "--repeat", "2", "--no-plots")
	require.NoError(t, err)
	for _, name := range []string{"drivers_mean.json", "run00/summary.json", "run01/summary.json"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}
	_, err = os.Stat(filepath.Join(outDir, "run00", "importance.png"))
	assert.True(t, os.IsNotExist(err))

	raw, err := os.ReadFile(filepath.Join(outDir, "run01", "summary.json"))
	require.NoError(t, err)
	var summary struct {
		RunID string `json:"run_id"`
		Seed  uint64 `json:"seed"`
	}
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, pipeline.DefaultConfig().Seed+1, summary.Seed)
}

func TestRunCommandErrors(t *testing.T) {
	_, err := execute(t, "run")
	assert.ErrorContains(t, err, "data")

	dir := t.TempDir()
	data := writeSeries(t, dir, 40)
	_, err = execute(t, "run", "--data", data, "--workers", "-1")
	assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))

	_, err = execute(t, "run", "--data", data, "--out", filepath.Join(dir, "out"))
	assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration), "cutoff beyond the series")
}
