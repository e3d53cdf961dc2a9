package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/daybook-app/cadence/internal/config"
	"github.com/daybook-app/cadence/internal/logger"
	"github.com/daybook-app/cadence/internal/rule"
	"github.com/daybook-app/cadence/pkg/engine"
)

func main() {
	var (
		fromFlag = flag.String("from", "", "start date (YYYY-MM-DD, default today)")
		toFlag   = flag.String("to", "", "end date (YYYY-MM-DD, default from+90 days)")
		outFlag  = flag.String("o", "", "output file (default stdout)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// One-shot tool: keep logging on the console tier only
	cfg.Logging.File.Enabled = false

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logger.SetDefault(log)

	from := rule.Midnight(time.Now().UTC())
	if *fromFlag != "" {
		from, err = time.ParseInLocation(rule.DateLayout, *fromFlag, time.UTC)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -from date: %v\n", err)
			os.Exit(1)
		}
	}

	to := from.AddDate(0, 0, cfg.HorizonDays)
	if *toFlag != "" {
		to, err = time.ParseInLocation(rule.DateLayout, *toFlag, time.UTC)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -to date: %v\n", err)
			os.Exit(1)
		}
	}
	if to.Before(from) {
		fmt.Fprintln(os.Stderr, "-to must not be before -from")
		os.Exit(1)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to Redis: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	var out io.Writer = os.Stdout
	if *outFlag != "" {
		f, err := os.Create(*outFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open output file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := eng.ExportICS(ctx, out, from, to); err != nil {
		fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
		os.Exit(1)
	}
}
