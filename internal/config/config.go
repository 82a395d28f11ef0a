package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"parkeval-service/internal/evaluation"
	"parkeval-service/internal/loader"
)

type Config struct {
	HTTP   HTTPConfig   `mapstructure:"http"`
	DB     DBConfig     `mapstructure:"db"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Log    LogConfig    `mapstructure:"log"`
	Review ReviewConfig `mapstructure:"review"`
}

type HTTPConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// DBConfig enables persistence when DSN is set.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// AuthConfig protects label-changing routes when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type ReviewConfig struct {
	ConfThreshold  float64     `mapstructure:"conf_threshold"`
	MoveYThreshold int         `mapstructure:"move_y_threshold"`
	LinkThresholdY int         `mapstructure:"link_threshold_y"`
	ResendPolicy   string      `mapstructure:"resend_policy"`
	ExcludeMoving  bool        `mapstructure:"exclude_moving"`
	TimestampFrom  string      `mapstructure:"timestamp_from"`
	ROIEnabled     bool        `mapstructure:"roi_enabled"`
	ROI            loader.Rect `mapstructure:"roi"`
}

// EvalOptions converts the review section into aggregator options.
func (r ReviewConfig) EvalOptions() (evaluation.Options, error) {
	policy, err := evaluation.ParseResendPolicy(r.ResendPolicy)
	if err != nil {
		return evaluation.Options{}, err
	}
	return evaluation.Options{
		ExcludeMoving: r.ExcludeMoving,
		ResendPolicy:  policy,
	}, nil
}

// LoaderOptions converts the review section into loader pre-filters.
func (r ReviewConfig) LoaderOptions() loader.Options {
	opts := loader.Options{From: r.TimestampFrom}
	if r.ROIEnabled {
		roi := r.ROI
		opts.ROI = &roi
	}
	return opts
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("db.dsn", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("review.conf_threshold", 0.3)
	v.SetDefault("review.move_y_threshold", 0)
	v.SetDefault("review.link_threshold_y", 0)
	v.SetDefault("review.resend_policy", string(evaluation.ResendGlobal))
	v.SetDefault("review.exclude_moving", true)
	v.SetDefault("review.timestamp_from", "")
	v.SetDefault("review.roi_enabled", false)
	v.SetDefault("review.roi.xmin", 0)
	v.SetDefault("review.roi.ymin", 0)
	v.SetDefault("review.roi.xmax", 0)
	v.SetDefault("review.roi.ymax", 0)
}

// Load reads defaults, the optional file at path and PARKEVAL_* environment
// variables, in increasing priority.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PARKEVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := evaluation.ParseResendPolicy(c.Review.ResendPolicy); err != nil {
		return fmt.Errorf("review.resend_policy: %w", err)
	}
	if c.Review.ConfThreshold < 0 || c.Review.ConfThreshold > 1 {
		return fmt.Errorf("review.conf_threshold must be within [0,1], got %v", c.Review.ConfThreshold)
	}
	if c.Review.ROIEnabled && (c.Review.ROI.XMax <= c.Review.ROI.XMin || c.Review.ROI.YMax <= c.Review.ROI.YMin) {
		return fmt.Errorf("review.roi is empty")
	}
	return nil
}
