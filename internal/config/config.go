package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "CSVTRAIN"

type Config struct {
	Training  TrainingConfig  `mapstructure:"training"`
	Schema    SchemaConfig    `mapstructure:"schema"`
	Output    OutputConfig    `mapstructure:"output"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	IPFS      IPFSConfig      `mapstructure:"ipfs"`
	Log       LogConfig       `mapstructure:"log"`
}

type TrainingConfig struct {
	Model        string  `mapstructure:"model"`
	Epochs       int     `mapstructure:"epochs"`
	BatchSize    int     `mapstructure:"batch_size"`
	LearningRate float64 `mapstructure:"learning_rate"`
	TestRatio    float64 `mapstructure:"test_ratio"`
	Seed         int64   `mapstructure:"seed"`
	HiddenLayers []int   `mapstructure:"hidden_layers"`
}

type SchemaConfig struct {
	TargetColumn    string `mapstructure:"target_column"`
	DateColumn      string `mapstructure:"date_column"`
	CategoryColumn  string `mapstructure:"category_column"`
	LatitudeColumn  string `mapstructure:"latitude_column"`
	LongitudeColumn string `mapstructure:"longitude_column"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir"`
	// Extension is appended to single-file artifacts written by train-encoded.
	Extension string `mapstructure:"extension"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

type TelemetryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	ServiceName     string        `mapstructure:"service_name"`
	Endpoint        string        `mapstructure:"endpoint"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MetricsInterval time.Duration `mapstructure:"metrics_interval"`
}

type LedgerConfig struct {
	DSN string `mapstructure:"dsn"`
}

type IPFSConfig struct {
	APIEndpoint string        `mapstructure:"api_endpoint"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("training.model", "mlp")
	v.SetDefault("training.epochs", 10)
	v.SetDefault("training.batch_size", 32)
	v.SetDefault("training.learning_rate", 0.001)
	v.SetDefault("training.test_ratio", 0.2)
	v.SetDefault("training.seed", 42)
	v.SetDefault("training.hidden_layers", []int{64, 32})

	v.SetDefault("schema.target_column", "target_column")
	v.SetDefault("schema.date_column", "observed_on")
	v.SetDefault("schema.category_column", "species_guess")
	v.SetDefault("schema.latitude_column", "latitude")
	v.SetDefault("schema.longitude_column", "longitude")

	v.SetDefault("output.dir", ".")
	v.SetDefault("output.extension", ".h5")

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "csvtrain")
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.timeout", 5*time.Second)
	v.SetDefault("telemetry.metrics_interval", 10*time.Second)

	v.SetDefault("ledger.dsn", "")

	v.SetDefault("ipfs.api_endpoint", "localhost:5001")
	v.SetDefault("ipfs.timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
}

// LoadConfig reads the optional config file at path and applies CSVTRAIN_*
// environment overrides on top of the defaults. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects hyperparameters the trainer cannot work with.
func (c *Config) Validate() error {
	t := c.Training
	if t.Epochs <= 0 {
		return fmt.Errorf("training.epochs must be positive, got %d", t.Epochs)
	}
	if t.BatchSize <= 0 {
		return fmt.Errorf("training.batch_size must be positive, got %d", t.BatchSize)
	}
	if t.LearningRate <= 0 || t.LearningRate > 1 {
		return fmt.Errorf("training.learning_rate must be in (0, 1], got %g", t.LearningRate)
	}
	if t.TestRatio <= 0 || t.TestRatio >= 1 {
		return fmt.Errorf("training.test_ratio must be in (0, 1), got %g", t.TestRatio)
	}
	for _, h := range t.HiddenLayers {
		if h <= 0 {
			return fmt.Errorf("training.hidden_layers must hold positive sizes, got %v", t.HiddenLayers)
		}
	}
	return nil
}
