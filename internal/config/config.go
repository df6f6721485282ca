package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

type Config struct {
	Mode Mode

	Port     string
	LogLevel string

	GCPProjectID string
	GCPLocation  string
	ModelName    string

	StorageBackend    string // "memory" or "firestore"
	UseMockAutomation bool   // true = answer requests with the mock responder
	RunAutomation     bool   // run the in-process answering worker
	AnswerDelay       time.Duration
	AnswerRate        float64 // answers per second across all pets

	CacheDir string // empty disables the local entry cache
	CacheTTL time.Duration

	Tuning Tuning
}

// Tuning holds the reconciliation timings. Defaults match what the
// front end has always used.
type Tuning struct {
	PollInterval          time.Duration `yaml:"poll_interval"`
	MaxSweeps             int           `yaml:"max_sweeps"`
	BackupSuppressWindow  time.Duration `yaml:"backup_suppress_window"`
	LivenessCheckInterval time.Duration `yaml:"liveness_check_interval"`
	LivenessTimeout       time.Duration `yaml:"liveness_timeout"`
	SubmitAttempts        int           `yaml:"submit_attempts"`
	SubmitRetryDelay      time.Duration `yaml:"submit_retry_delay"`
	HistoryLimit          int           `yaml:"history_limit"`
}

func DefaultTuning() Tuning {
	return Tuning{
		PollInterval:          2 * time.Second,
		MaxSweeps:             60,
		BackupSuppressWindow:  2 * time.Second,
		LivenessCheckInterval: 15 * time.Second,
		LivenessTimeout:       30 * time.Second,
		SubmitAttempts:        3,
		SubmitRetryDelay:      500 * time.Millisecond,
		HistoryLimit:          200,
	}
}

func (t Tuning) Validate() error {
	switch {
	case t.PollInterval <= 0:
		return fmt.Errorf("poll_interval must be positive")
	case t.MaxSweeps <= 0:
		return fmt.Errorf("max_sweeps must be positive")
	case t.BackupSuppressWindow < 0:
		return fmt.Errorf("backup_suppress_window must not be negative")
	case t.LivenessCheckInterval <= 0:
		return fmt.Errorf("liveness_check_interval must be positive")
	case t.LivenessTimeout <= 0:
		return fmt.Errorf("liveness_timeout must be positive")
	case t.SubmitAttempts <= 0:
		return fmt.Errorf("submit_attempts must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getFloatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

// Load reads .env (if any), the environment and the optional tuning file,
// and builds the config.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	modeStr := getEnv("VETASSIST_MODE", "local")
	var mode Mode
	switch modeStr {
	case "gcp":
		mode = ModeGCP
	default:
		mode = ModeLocal
	}

	delay, err := getDurationEnv("VETASSIST_ANSWER_DELAY", 3*time.Second)
	if err != nil {
		return nil, err
	}
	answerRate, err := getFloatEnv("VETASSIST_ANSWER_RATE", 2)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getDurationEnv("VETASSIST_CACHE_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Mode: mode,

		Port:     getEnv("PORT", getEnv("VETASSIST_PORT", "8080")),
		LogLevel: getEnv("VETASSIST_LOG_LEVEL", "info"),

		GCPProjectID: getEnv("VETASSIST_GCP_PROJECT", ""),
		GCPLocation:  getEnv("VETASSIST_GCP_LOCATION", "us-central1"),
		ModelName:    getEnv("VETASSIST_MODEL_NAME", "gemini-2.5-flash-lite"),

		StorageBackend:    getEnv("VETASSIST_STORAGE_BACKEND", "memory"),
		UseMockAutomation: getBoolEnv("VETASSIST_USE_MOCK_AUTOMATION", mode == ModeLocal),
		RunAutomation:     getBoolEnv("VETASSIST_RUN_AUTOMATION", mode == ModeLocal),
		AnswerDelay:       delay,
		AnswerRate:        answerRate,

		CacheDir: getEnv("VETASSIST_CACHE_DIR", ""),
		CacheTTL: cacheTTL,

		Tuning: DefaultTuning(),
	}

	if path := os.Getenv("VETASSIST_TUNING_FILE"); path != "" {
		if cfg.Tuning, err = LoadTuning(path); err != nil {
			return nil, err
		}
	}

	if cfg.Mode == ModeGCP && cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("VETASSIST_GCP_PROJECT must be set in gcp mode")
	}
	if cfg.StorageBackend == "firestore" && cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("VETASSIST_GCP_PROJECT is required for the firestore backend")
	}
	if cfg.AnswerRate <= 0 {
		return nil, fmt.Errorf("VETASSIST_ANSWER_RATE must be positive")
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return nil, fmt.Errorf("invalid port %q", cfg.Port)
	}

	return cfg, nil
}

// LoadTuning reads a YAML tuning file on top of the defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()

	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("reading tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parsing tuning file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning file %s: %w", path, err)
	}
	return t, nil
}
