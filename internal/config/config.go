// Package config resolves engine settings from the environment and an
// optional .env file.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"anchoredit/engine/internal/appdirs"
	"anchoredit/engine/internal/envutil"
	"anchoredit/engine/internal/session"
	"anchoredit/engine/internal/tools"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// EnvFile describes the outcome of loading a .env file.
type EnvFile struct {
	Path   string
	Loaded bool
	Keys   int
	Err    error
}

// LoadEnvFile loads ANCHOREDIT_ENV_PATH, or the nearest .env found walking up
// from the working directory. Variables already set are never overridden.
func LoadEnvFile() EnvFile {
	path := strings.TrimSpace(os.Getenv("ANCHOREDIT_ENV_PATH"))
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return EnvFile{Err: err}
		}
		path = findUpwards(cwd, ".env")
		if path == "" {
			return EnvFile{}
		}
	}
	res := EnvFile{Path: path}
	values, err := godotenv.Read(path)
	if err != nil {
		res.Err = err
		return res
	}
	for key := range values {
		if _, exists := os.LookupEnv(key); !exists {
			res.Keys++
		}
	}
	if err := godotenv.Load(path); err != nil {
		res.Err = err
		return res
	}
	res.Loaded = true
	return res
}

func findUpwards(start, filename string) string {
	dir := start
	for {
		candidate := filepath.Join(dir, filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

type Config struct {
	DataDir      string
	Debug        bool
	APIKey       string
	Model        string
	HistoryLimit int
	MaxRounds    int
	MaxMatches   int
	RulesPath    string
	Store        string
	MetricsAddr  string
	ModelTimeout time.Duration
	FakeModel    bool
}

// Load reads the configuration from the environment. Call LoadEnvFile first
// to pick up a .env file.
func Load() (Config, error) {
	dataDir, err := appdirs.DataDir()
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		DataDir:      dataDir,
		Debug:        envutil.Bool("ANCHOREDIT_DEBUG"),
		APIKey:       envutil.String("ANCHOREDIT_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"),
		Model:        envutil.String("ANCHOREDIT_MODEL"),
		HistoryLimit: envutil.Int("ANCHOREDIT_HISTORY_LIMIT", session.DefaultHistoryLimit),
		MaxRounds:    envutil.Int("ANCHOREDIT_MAX_ROUNDS", session.DefaultMaxRounds),
		MaxMatches:   envutil.Int("ANCHOREDIT_GREP_MAX_MATCHES", tools.DefaultMaxMatches),
		RulesPath:    envutil.String("ANCHOREDIT_RULES_PATH"),
		Store:        strings.ToLower(envutil.String("ANCHOREDIT_STORE")),
		MetricsAddr:  envutil.String("ANCHOREDIT_METRICS_ADDR"),
		ModelTimeout: envutil.Duration("ANCHOREDIT_MODEL_TIMEOUT", 0),
		FakeModel:    envutil.Bool("ANCHOREDIT_FAKE_MODEL"),
	}
	if cfg.Store == "" {
		cfg.Store = StoreMemory
	}
	if cfg.Store != StoreMemory && cfg.Store != StoreSQLite {
		return Config{}, &InvalidError{Key: "ANCHOREDIT_STORE", Value: cfg.Store}
	}
	return cfg, nil
}

// DatabasePath is where the SQLite store lives.
func (c Config) DatabasePath() string {
	return appdirs.DatabasePath(c.DataDir)
}

func (c Config) SettingsPath() string {
	return appdirs.SettingsPath(c.DataDir)
}

type InvalidError struct {
	Key   string
	Value string
}

func (e *InvalidError) Error() string {
	return "invalid value for " + e.Key + ": " + e.Value
}
