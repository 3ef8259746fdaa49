package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/studyowl/studyowl-api/srs"
)

var ErrMissingEnvironmentVariables = errors.New("missing required environment variables")

// Config holds application configuration loaded from files and environment
// variables.
type Config struct {
	Env            string     `mapstructure:"env"`
	Port           string     `mapstructure:"port"`
	DatabaseURL    string     `mapstructure:"-"`
	AllowedOrigins []string   `mapstructure:"allowed_origins"`
	Auth0Domain    string     `mapstructure:"-"`
	Auth0Audience  string     `mapstructure:"-"`
	JWTSecretKey   string     `mapstructure:"-"`
	OpenAIAPIKey   string     `mapstructure:"-"`
	OpenAIModel    string     `mapstructure:"openai_model"`
	Scheduler      srs.Params `mapstructure:"scheduler"`
}

// Load reads configuration from an optional config file and environment
// variables, and validates the scheduler parameters before anything can
// schedule with them.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetDefault("env", "development")
	v.SetDefault("port", "8080")
	v.SetDefault("allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("openai_model", "gpt-4o-mini")

	defaults := srs.DefaultParams()
	v.SetDefault("scheduler.initial_ease", defaults.InitialEase)
	v.SetDefault("scheduler.ease_floor", defaults.EaseFloor)
	v.SetDefault("scheduler.lapse_ease_penalty", defaults.LapseEasePenalty)
	v.SetDefault("scheduler.hard_ease_penalty", defaults.HardEasePenalty)
	v.SetDefault("scheduler.hard_interval_factor", defaults.HardIntervalFactor)
	v.SetDefault("scheduler.easy_bonus", defaults.EasyBonus)
	v.SetDefault("scheduler.easy_ease_reward", defaults.EasyEaseReward)
	v.SetDefault("scheduler.first_interval", defaults.FirstInterval)
	v.SetDefault("scheduler.second_interval", defaults.SecondInterval)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("auth0_domain", "AUTH0_DOMAIN")
	_ = v.BindEnv("auth0_audience", "AUTH0_AUDIENCE")
	_ = v.BindEnv("jwt_secret_key", "JWT_SECRET_KEY")
	_ = v.BindEnv("openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("env", "APP_ENV")
	_ = v.BindEnv("port", "PORT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	cfg.DatabaseURL = v.GetString("database_url")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL", ErrMissingEnvironmentVariables)
	}
	cfg.Auth0Domain = v.GetString("auth0_domain")
	cfg.Auth0Audience = v.GetString("auth0_audience")
	cfg.JWTSecretKey = v.GetString("jwt_secret_key")
	cfg.OpenAIAPIKey = v.GetString("openai_api_key")

	if err := validator.New().Struct(cfg.Scheduler); err != nil {
		return nil, fmt.Errorf("invalid scheduler parameters: %w", err)
	}

	return &cfg, nil
}
