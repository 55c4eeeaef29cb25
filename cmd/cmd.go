package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/cadencehq/cadence/internal/models"
	"github.com/cadencehq/cadence/internal/types"
	"github.com/cadencehq/cadence/pkg/chunker"
	cfgPkg "github.com/cadencehq/cadence/pkg/config"
	"github.com/cadencehq/cadence/pkg/llm"
	"github.com/cadencehq/cadence/pkg/pipeline"
	"github.com/cadencehq/cadence/pkg/store"
	"github.com/cadencehq/cadence/pkg/tokens"
	"github.com/cadencehq/cadence/server"
)

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func run(config Config) error {
	ctx := context.Background()

	fileCfg, err := cfgPkg.LoadConfig("")
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}
	if errs := fileCfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		return fmt.Errorf("invalid configuration")
	}

	st, err := store.NewWithConfig(store.StoreConfig{
		ConnString: config.DBUrl,
		VectorDim:  fileCfg.Database.VectorDim,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize store: %v", err)
	}
	defer st.Close()

	budget := llm.NewBudgetMonitor(llm.BudgetConfig{
		Ceiling: fileCfg.Budget.Ceiling,
		Target:  fileCfg.Budget.Target,
		Window:  fileCfg.Budget.Window,
	})

	var fallback *llm.Fallback
	if !config.NoLLM {
		fallback, err = llm.NewWithConfig(llm.FallbackConfig{
			Model:     config.Model,
			BaseURL:   config.BaseURL,
			MaxTokens: fileCfg.LLM.MaxTokens,
			Timeout:   time.Duration(fileCfg.LLM.Timeout) * time.Second,
			Retries:   fileCfg.LLM.Retries,
			RateLimit: fileCfg.LLM.RateLimit,
			Parallel:  fileCfg.LLM.Parallel,
			MinTokens: fileCfg.Pipeline.FallbackMinTokens,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize fallback extractor: %v", err)
		}
	}

	counter := tokens.NewCounter()

	ch := chunker.NewWithConfig(chunker.ChunkerConfig{
		TargetTokens:     fileCfg.Chunker.TargetTokens,
		OverlapSentences: fileCfg.Chunker.OverlapSentences,
		MinTokens:        fileCfg.Chunker.MinTokens,
	}, counter)

	srv := server.NewServer(server.Config{Addr: config.ServerAddr}, st, budget)
	if config.Serve {
		go func() {
			if err := srv.Start(); err != nil {
				color.Red("status server: %v", err)
			}
		}()
	}

	pipelineConfig := pipeline.PipelineConfig{
		Workers:          config.Workers,
		QualityThreshold: fileCfg.Pipeline.QualityThreshold,
		BatchSize:        config.BatchSize,
	}

	var fb types.FallbackExtractor
	if fallback != nil {
		fb = fallback
	}
	p := pipeline.NewWithConfig(pipelineConfig, st, fb, budget, ch, counter, srv)

	if config.IngestPath != "" {
		if err := ingestFile(ctx, st, config.IngestPath); err != nil {
			return err
		}
	}

	processed, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("pipeline run failed: %v", err)
	}

	printSummary(processed, budget)

	if config.Serve {
		color.Cyan("serving /status and /events on %s", config.ServerAddr)
		select {}
	}

	return nil
}

func ingestFile(ctx context.Context, st *store.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open ingest file: %v", err)
	}
	defer f.Close()

	bar := getProgressBar(-1, " Ingesting raw documents")

	inserted, skipped := 0, 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw models.RawDocument
		if err := json.Unmarshal(line, &raw); err != nil {
			color.Red("skipping malformed record: %v", err)
			continue
		}

		_, created, err := st.Ingest(ctx, raw)
		if err != nil {
			return fmt.Errorf("failed to ingest document: %v", err)
		}
		if created {
			inserted++
		} else {
			skipped++
		}
		bar.Add(1)
	}
	bar.Finish()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed reading ingest file: %v", err)
	}

	color.Green("✓ Ingested %d documents (%d duplicates skipped)\n", inserted, skipped)
	return nil
}

func printSummary(processed int, budget *llm.BudgetMonitor) {
	status := budget.Status()

	color.Green("✓ Processed %d documents", processed)
	fmt.Printf("  fallback ratio: %.2f (target %.2f, ceiling %.2f)\n",
		status.Ratio, status.Target, status.Ceiling)

	switch {
	case status.Alert:
		color.Red("  ALERT: fallback ratio exceeds ceiling")
	case status.AboveTarget:
		color.Yellow("  fallback ratio above planning target")
	}
}
