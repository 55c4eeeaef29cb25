package main

import (
	"flag"
	"log"
	"os"

	cfgPkg "github.com/cadencehq/cadence/pkg/config"
)

type Config struct {
	BaseURL    string
	DBUrl      string
	Model      string
	IngestPath string
	Workers    int
	BatchSize  int
	ServerAddr string
	Serve      bool
	NoLLM      bool
}

func main() {
	config := parseFlags()

	if err := run(config); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() Config {
	var config Config
	var configPath string

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&config.BaseURL, "ollama-url", os.Getenv("OLLAMA_BASE_URL"), "Ollama server URL")
	flag.StringVar(&config.DBUrl, "db-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.StringVar(&config.Model, "model", "", "LLM model for fallback extraction")
	flag.StringVar(&config.IngestPath, "ingest", "", "JSONL file of raw documents to ingest before processing")
	flag.IntVar(&config.Workers, "workers", 0, "Worker pool size")
	flag.IntVar(&config.BatchSize, "batch-size", 500, "Maximum pending documents per run")
	flag.BoolVar(&config.Serve, "serve", false, "Keep running and serve /status and /events")
	flag.StringVar(&config.ServerAddr, "addr", "", "Status server listen address")
	flag.BoolVar(&config.NoLLM, "no-llm", false, "Disable the LLM fallback path")
	flag.Parse()

	// Config file fills anything the flags left unset
	if cfg, err := cfgPkg.LoadConfig(configPath); err == nil {
		if config.BaseURL == "" {
			config.BaseURL = cfg.LLM.BaseURL
		}
		if config.DBUrl == "" {
			config.DBUrl = cfg.Database.URL
		}
		if config.Model == "" {
			config.Model = cfg.LLM.Model
		}
		if config.Workers == 0 {
			config.Workers = cfg.Pipeline.Workers
		}
		if config.ServerAddr == "" {
			config.ServerAddr = cfg.Server.Addr
		}
	}

	return config
}
