package config

import (
	"errors"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env          string `yaml:"env"`
	LogLevel     string `yaml:"log_level"`
	DBType       string `yaml:"storage_backend"`
	DBDSN        string `yaml:"postgres_dsn"`
	FileSessions string `yaml:"sessions_file"`
	FileMetrics  string `yaml:"metrics_file"`
	FileToolUse  string `yaml:"tool_usage_file"`
	JWTSecret    string `yaml:"jwt_secret"`
	ListenAddr   string `yaml:"listen_addr"`
}

var (
	cfg  *Config
	once sync.Once
)

// Load resolves configuration once per process: optional YAML file first
// (CONFIG_FILE, default config.yaml), environment variables override.
func Load() *Config {
	once.Do(func() {
		_ = loadDotEnv()
		cfg = &Config{
			Env:          "development",
			LogLevel:     "info",
			DBType:       "file",
			FileSessions: "data/sessions.json",
			FileMetrics:  "data/energy_metrics.json",
			FileToolUse:  "data/tool_usage_logs.json",
			ListenAddr:   ":8088",
		}
		if err := loadYAML(cfg); err != nil {
			panic("Invalid config file: " + err.Error())
		}
		applyEnv(cfg)
		if err := cfg.Validate(); err != nil {
			panic("Invalid config: " + err.Error())
		}
	})
	return cfg
}

func (c *Config) Validate() error {
	if c.DBType == "postgres" && c.DBDSN == "" {
		return errors.New("POSTGRES_DSN is required when STORAGE_BACKEND=postgres")
	}
	if c.DBType == "file" && (c.FileSessions == "" || c.FileMetrics == "" || c.FileToolUse == "") {
		return errors.New("File storage requires SESSIONS_FILE, METRICS_FILE and TOOL_USAGE_FILE to be set")
	}
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return errors.New("APP_ENV must be one of: development, staging, production")
	}
	if c.Env != "development" && c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required outside development")
	}
	return nil
}

func loadYAML(c *Config) error {
	path := getEnv("CONFIG_FILE", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func applyEnv(c *Config) {
	c.Env = getEnv("APP_ENV", c.Env)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.DBType = getEnv("STORAGE_BACKEND", c.DBType)
	c.DBDSN = getEnv("POSTGRES_DSN", c.DBDSN)
	c.FileSessions = getEnv("SESSIONS_FILE", c.FileSessions)
	c.FileMetrics = getEnv("METRICS_FILE", c.FileMetrics)
	c.FileToolUse = getEnv("TOOL_USAGE_FILE", c.FileToolUse)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.ListenAddr = getEnv("LISTEN_ADDR", c.ListenAddr)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		f, err := os.Open(".env")
		if err != nil {
			return err
		}
		defer f.Close()
		var lines []string
		buf := make([]byte, 4096)
		for {
			n, err := f.Read(buf)
			if n > 0 {
				lines = append(lines, string(buf[:n]))
			}
			if err != nil {
				break
			}
		}
		for _, line := range lines {
			for _, l := range splitLines(line) {
				if len(l) == 0 || l[0] == '#' {
					continue
				}
				kv := splitKV(l)
				if len(kv) == 2 {
					os.Setenv(kv[0], kv[1])
				}
			}
		}
	}
	return nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, c := range s {
		if c == '\n' || c == '\r' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func splitKV(s string) []string {
	for i, c := range s {
		if c == '=' {
			return []string{s[:i], s[i+1:]}
		}
	}
	return nil
}
