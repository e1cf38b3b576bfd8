package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the autograder.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	LogLevel               string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	DockerHost             string
	ExecutionTimeout       time.Duration
	CodeRunMemoryMB        int
	CodeRunCPUShares       int
	WorkspaceRoot          string
	PythonImage            string
	JavaScriptImage        string
	PromptTimeout          time.Duration
	PromptPrefix           string
	ReportSubject          string
	AIProvider             string
	AIModel                string
	OpenAIAPIKey           string
	EvaluationRateLimit    int
	EvaluationRateWindow   time.Duration
	AllowOrigins           string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// CloudinaryEnabled reports whether archive credentials are present.
func (c Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// AIEnabled reports whether narrative feedback can be requested.
func (c Config) AIEnabled() bool {
	return c.AIProvider == "openai" && c.OpenAIAPIKey != ""
}

// Load reads the API configuration and requires a JWT secret.
func Load() (Config, error) {
	cfg, err := read()
	if err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	return cfg, nil
}

// LoadCLI reads the configuration used by the command line grader, which has no auth.
func LoadCLI() (Config, error) {
	return read()
}

func read() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Autograder")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.url", "gema-autograder.db")
	v.SetDefault("cloudinary.folder", "gema/reports")
	v.SetDefault("execution_timeout_ms", 15000)
	v.SetDefault("code_run_memory_mb", 512)
	v.SetDefault("code_run_cpu_shares", 512)
	v.SetDefault("prompt.timeout", "10m")
	v.SetDefault("prompt.prefix", "gema")
	v.SetDefault("report.subject", "gema.reports")
	v.SetDefault("ai.provider", "none")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("rate_limit.evaluations", 5)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("cors.allow_origins", "*")

	promptTimeout, err := time.ParseDuration(v.GetString("prompt.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid prompt timeout: %w", err)
	}
	if promptTimeout <= 0 {
		return Config{}, fmt.Errorf("prompt timeout must be positive")
	}

	rateWindow, err := time.ParseDuration(v.GetString("rate_limit.window"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid rate limit window: %w", err)
	}

	timeoutMs := v.GetInt("execution_timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 15000
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		LogLevel:               strings.ToLower(v.GetString("log.level")),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		DockerHost:             v.GetString("docker_host"),
		ExecutionTimeout:       time.Duration(timeoutMs) * time.Millisecond,
		CodeRunMemoryMB:        v.GetInt("code_run_memory_mb"),
		CodeRunCPUShares:       v.GetInt("code_run_cpu_shares"),
		WorkspaceRoot:          v.GetString("workspace_root"),
		PythonImage:            v.GetString("runtime.python_image"),
		JavaScriptImage:        v.GetString("runtime.javascript_image"),
		PromptTimeout:          promptTimeout,
		PromptPrefix:           v.GetString("prompt.prefix"),
		ReportSubject:          v.GetString("report.subject"),
		AIProvider:             strings.ToLower(v.GetString("ai.provider")),
		AIModel:                v.GetString("ai.model"),
		OpenAIAPIKey:           v.GetString("openai_api_key"),
		EvaluationRateLimit:    v.GetInt("rate_limit.evaluations"),
		EvaluationRateWindow:   rateWindow,
		AllowOrigins:           v.GetString("cors.allow_origins"),
	}

	if cfg.CodeRunMemoryMB <= 0 {
		cfg.CodeRunMemoryMB = 512
	}

	if cfg.CodeRunCPUShares <= 0 {
		cfg.CodeRunCPUShares = 512
	}

	return cfg, nil
}
