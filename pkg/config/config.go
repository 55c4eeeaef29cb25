package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		BaseURL   string  `yaml:"base_url"`
		Model     string  `yaml:"model"`
		MaxTokens int     `yaml:"max_tokens"`
		Timeout   int     `yaml:"timeout_seconds"`
		Retries   int     `yaml:"retries"`
		RateLimit float64 `yaml:"rate_limit"`
		Parallel  int     `yaml:"parallel"`
	} `yaml:"llm"`

	Database struct {
		URL       string `yaml:"url"`
		VectorDim int    `yaml:"vector_dim"`
	} `yaml:"database"`

	Pipeline struct {
		Workers           int `yaml:"workers"`
		QualityThreshold  int `yaml:"quality_threshold"`
		FallbackMinTokens int `yaml:"fallback_min_tokens"`
	} `yaml:"pipeline"`

	Budget struct {
		Ceiling float64 `yaml:"ceiling"`
		Target  float64 `yaml:"target"`
		Window  int     `yaml:"window"`
	} `yaml:"budget"`

	Chunker struct {
		TargetTokens     int `yaml:"target_tokens"`
		OverlapSentences int `yaml:"overlap_sentences"`
		MinTokens        int `yaml:"min_tokens"`
	} `yaml:"chunker"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/cadence/config.yaml"),
			"/etc/cadence/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 30
	}
	if config.LLM.Retries == 0 {
		config.LLM.Retries = 3
	}
	if config.LLM.RateLimit == 0 {
		config.LLM.RateLimit = 2.0
	}
	if config.LLM.Parallel == 0 {
		config.LLM.Parallel = 4
	}

	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}

	if config.Pipeline.Workers == 0 {
		config.Pipeline.Workers = 8
	}
	if config.Pipeline.QualityThreshold == 0 {
		config.Pipeline.QualityThreshold = 50
	}
	if config.Pipeline.FallbackMinTokens == 0 {
		config.Pipeline.FallbackMinTokens = 100
	}

	if config.Budget.Ceiling == 0 {
		config.Budget.Ceiling = 0.15
	}
	if config.Budget.Target == 0 {
		config.Budget.Target = 0.10
	}
	if config.Budget.Window == 0 {
		config.Budget.Window = 500
	}

	if config.Chunker.TargetTokens == 0 {
		config.Chunker.TargetTokens = 300
	}
	if config.Chunker.MinTokens == 0 {
		config.Chunker.MinTokens = 20
	}
	if config.Chunker.OverlapSentences == 0 {
		config.Chunker.OverlapSentences = 1
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8090"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
}
