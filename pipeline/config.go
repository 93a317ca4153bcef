package pipeline

import (
	"bytes"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/ghgforest/dataset"
	"github.com/YuminosukeSato/ghgforest/partition"
	"github.com/YuminosukeSato/ghgforest/pkg/errors"
	"github.com/YuminosukeSato/ghgforest/preprocessing"
	"github.com/YuminosukeSato/ghgforest/sklearn/ensemble"
	"github.com/YuminosukeSato/ghgforest/sklearn/inspection"
	"github.com/YuminosukeSato/ghgforest/sklearn/tree"
)

// Config is the full set of run parameters. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	// Seed drives every stochastic stage. Each stage derives its own stream.
	Seed uint64 `yaml:"seed"`
	// Workers bounds the goroutines of every parallel stage. 0 uses all CPUs.
	Workers int `yaml:"workers" validate:"gte=0"`

	Data       DataConfig                   `yaml:"data"`
	Partition  PartitionConfig              `yaml:"partition"`
	Resample   preprocessing.ResampleConfig `yaml:"resample"`
	Forest     ForestConfig                 `yaml:"forest"`
	Importance ImportanceConfig             `yaml:"importance"`
	ALE        ALEConfig                    `yaml:"ale"`
}

// DataConfig describes how the input table is read.
type DataConfig struct {
	dataset.CSVOptions `yaml:",inline"`
	// MaxLag rebuilds lag 1..MaxLag columns from the unlagged drivers when
	// positive. 0 uses the columns of the file as they are.
	MaxLag int `yaml:"max_lag" validate:"gte=0,lte=365"`
}

// PartitionConfig sets the temporal cutoff and the random training share.
type PartitionConfig struct {
	CutoffDay     int     `yaml:"cutoff_day" validate:"gte=1"`
	TrainFraction float64 `yaml:"train_fraction" validate:"gt=0,lt=1"`
}

// ForestConfig holds the forest hyperparameters.
type ForestConfig struct {
	Trees int `yaml:"trees" validate:"gte=1"`
	// Mtry is clamped to the number of features. 0 selects min(5, p).
	Mtry         int     `yaml:"mtry" validate:"gte=0"`
	MinCriterion float64 `yaml:"min_criterion" validate:"gte=0,lt=1"`
	MinSplit     int     `yaml:"min_split" validate:"gte=2"`
	MinBucket    int     `yaml:"min_bucket" validate:"gte=1"`
	MaxDepth     int     `yaml:"max_depth" validate:"gte=0"`
	Replace      bool    `yaml:"replace"`
	// Fraction is the subsample share when Replace is false.
	Fraction float64 `yaml:"fraction" validate:"gt=0,lte=1"`
}

// ImportanceConfig controls the permutation importance stage.
type ImportanceConfig struct {
	Conditional        bool    `yaml:"conditional"`
	ConditionThreshold float64 `yaml:"condition_threshold" validate:"gte=0,lt=1"`
	Permutations       int     `yaml:"permutations" validate:"gte=1"`
}

// ALEConfig controls the ALE stage.
type ALEConfig struct {
	Bins int `yaml:"bins" validate:"gte=1"`
	// Features restricts the curves to the named columns. Empty means all.
	Features []string `yaml:"features,omitempty"`
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		Seed: 1,
		Data: DataConfig{CSVOptions: dataset.DefaultCSVOptions()},
		Partition: PartitionConfig{
			CutoffDay:     partition.DefaultCutoffDay,
			TrainFraction: partition.DefaultTrainFraction,
		},
		Resample: preprocessing.DefaultResampleConfig(),
		Forest: ForestConfig{
			Trees:        ensemble.DefaultTrees,
			Mtry:         18,
			MinCriterion: tree.DefaultMinCriterion,
			MinSplit:     tree.DefaultMinSplit,
			MinBucket:    tree.DefaultMinBucket,
			Replace:      true,
			Fraction:     ensemble.DefaultFraction,
		},
		Importance: ImportanceConfig{
			Conditional:        true,
			ConditionThreshold: inspection.DefaultConditionThreshold,
			Permutations:       inspection.DefaultPermutations,
		},
		ALE: ALEConfig{Bins: inspection.DefaultBins},
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their YAML key
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every parameter before any computation starts. The
// first violation is returned as an InvalidConfigurationError.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return errors.NewInvalidConfigurationError(configStage(fe.Namespace()), fe.Field(), fe.Value(), describe(fe))
		}
		return errors.Wrap(err, "validate config")
	}
	if err := c.Resample.Validate(); err != nil {
		return err
	}
	for _, name := range c.ALE.Features {
		if _, err := dataset.ParseFeature(name); err != nil {
			return errors.NewInvalidConfigurationError("ale", "features", name, "not a feature column name")
		}
	}
	return nil
}

// configStage maps "Config.forest.trees" to "forest".
func configStage(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 2 {
		return parts[1]
	}
	return "config"
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return "must be >= " + fe.Param()
	case "gt":
		return "must be > " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "lt":
		return "must be < " + fe.Param()
	}
	return "failed " + fe.Tag() + " check"
}

// LoadConfig reads a YAML file on top of DefaultConfig and validates the
// result. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	return ParseConfig(data)
}

// ParseConfig is LoadConfig on an in-memory document.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, errors.NewInvalidConfigurationError("config", "yaml", truncate(err.Error()), "malformed document")
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, errors.Wrap(err, "encode config")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "encode config")
	}
	return buf.Bytes(), nil
}

func truncate(s string) string {
	const limit = 200
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

func (c *Config) partitionOptions() []partition.Option {
	return []partition.Option{
		partition.WithCutoffDay(c.Partition.CutoffDay),
		partition.WithTrainFraction(c.Partition.TrainFraction),
		partition.WithSeed(deriveSeed(c.Seed, streamPartition)),
	}
}

func (c *Config) resampleConfig() preprocessing.ResampleConfig {
	rc := c.Resample
	rc.Seed = deriveSeed(c.Seed, streamResample)
	rc.Workers = c.Workers
	return rc
}

func (c *Config) forestOptions(numFeatures int) []ensemble.Option {
	opts := []ensemble.Option{
		ensemble.WithTrees(c.Forest.Trees),
		ensemble.WithMinCriterion(c.Forest.MinCriterion),
		ensemble.WithMinSplit(c.Forest.MinSplit),
		ensemble.WithMinBucket(c.Forest.MinBucket),
		ensemble.WithMaxDepth(c.Forest.MaxDepth),
		ensemble.WithReplace(c.Forest.Replace),
		ensemble.WithFraction(c.Forest.Fraction),
		ensemble.WithSeed(deriveSeed(c.Seed, streamForest)),
		ensemble.WithWorkers(c.Workers),
	}
	if c.Forest.Mtry > 0 {
		opts = append(opts, ensemble.WithMtry(min(c.Forest.Mtry, numFeatures)))
	}
	return opts
}

func (c *Config) importanceOptions() []inspection.ImportanceOption {
	return []inspection.ImportanceOption{
		inspection.WithConditional(c.Importance.Conditional),
		inspection.WithConditionThreshold(c.Importance.ConditionThreshold),
		inspection.WithPermutations(c.Importance.Permutations),
		inspection.WithImportanceSeed(deriveSeed(c.Seed, streamImportance)),
		inspection.WithImportanceWorkers(c.Workers),
	}
}

func (c *Config) aleOptions() []inspection.ALEOption {
	return []inspection.ALEOption{
		inspection.WithBins(c.ALE.Bins),
		inspection.WithALEWorkers(c.Workers),
	}
}

// Seed streams of the stages.
const (
	streamPartition uint64 = iota + 1
	streamResample
	streamForest
	streamImportance
)

// deriveSeed mixes a stream id into seed with the splitmix64 finalizer so
// that the stages draw unrelated sequences from one configured seed.
func deriveSeed(seed, stream uint64) uint64 {
	z := seed + stream*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
