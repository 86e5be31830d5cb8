package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/remla25-team6/model-service/artifact"
	"github.com/remla25-team6/model-service/config"
	"github.com/remla25-team6/model-service/logger"
)

func main() {
	configPath := flag.String("config", config.Path(), "config file path")
	verbose := flag.Bool("v", false, "log artifact loading")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logg := zap.NewNop()
	if *verbose {
		if logg, err = logger.New(logger.Options{Level: "info", Format: "console"}); err != nil {
			log.Fatalf("failed to create logger: %v", err)
		}
		defer logg.Sync()
	}

	ctx := context.Background()
	loader, closeIndex, err := artifact.NewLoader(cfg, logg)
	if err != nil {
		log.Fatalf("failed to open artifact index: %v", err)
	}
	defer closeIndex()

	pipeline, err := loader.LoadPipeline(ctx, artifact.OptionsFromConfig(cfg))
	if err != nil {
		log.Fatalf("failed to load artifacts: %v", err)
	}

	texts := flag.Args()
	if len(texts) == 0 {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				texts = append(texts, line)
			}
		}
		if err := scanner.Err(); err != nil {
			log.Fatalf("failed to read stdin: %v", err)
		}
	}

	labels, err := pipeline.PredictBatch(ctx, texts)
	if err != nil {
		log.Fatalf("prediction failed: %v", err)
	}
	for i, text := range texts {
		fmt.Printf("%s\t%s\n", labels[i], text)
	}
}
