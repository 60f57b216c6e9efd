// Command check-unit drives a small table of request/response and
// state scenarios against a running fabric and reports pass/fail. It
// archives each run as a Markdown and HTML report in addition to
// printing a console summary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nugget/muf/internal/buildinfo"
	"github.com/nugget/muf/internal/client"
	"github.com/nugget/muf/internal/config"
	"github.com/nugget/muf/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	unitFlag := flag.String("unit", "", "unit name (overrides config)")
	reportDir := flag.String("report-dir", ".", "directory to write check-report.md/.html into")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println(buildinfo.String())
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	fmt.Println("==========================================")
	fmt.Println(" MUF System Check Unit: Starting Tests")
	fmt.Println("==========================================")

	cfg := config.Default()
	if cfgPath, err := config.FindConfig(*configPath); err == nil {
		loaded, loadErr := config.Load(cfgPath)
		if loadErr != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", loadErr)
			os.Exit(1)
		}
		cfg = loaded
	}
	if cfg.Unit == "" {
		cfg.Unit = "check-unit"
	}
	if *unitFlag != "" {
		cfg.Unit = *unitFlag
	}

	c := client.New(client.Config{Unit: cfg.Unit, Store: cfg.Store.Options(), Logger: logger})

	ctx := context.Background()
	ranAt := time.Now()
	var results []caseResult

	runErr := c.Run(ctx, func(ctx context.Context) error {
		for _, cs := range cases {
			fmt.Printf("\n[%s] ...\n", cs.Name)
			start := time.Now()
			detail, err := cs.Run(ctx, c)
			elapsed := time.Since(start)

			r := caseResult{Name: cs.Name, Duration: elapsed}
			if err != nil {
				r.Passed = false
				r.Detail = err.Error()
				fmt.Printf("  Result: FAILED (%s)\n", err)
			} else {
				r.Passed = true
				r.Detail = detail
				fmt.Printf("  Result: SUCCESS (%s)\n", detail)
			}
			results = append(results, r)
		}
		return nil
	})

	fmt.Println("\n==========================================")
	fmt.Println(" MUF System Check: Process Finished")
	fmt.Println("==========================================")

	if runErr != nil {
		if errors.Is(runErr, store.ErrAuthFailed) {
			fmt.Fprintln(os.Stderr, "\n[!] Authentication error: the store rejected our credentials.")
			fmt.Fprintln(os.Stderr, "    Check REDIS_USERNAME / REDIS_PASSWORD (or MUF_REDIS_*) and retry.")
		} else {
			fmt.Fprintf(os.Stderr, "\n[!] Fatal error starting the check-unit client: %v\n", runErr)
		}
		os.Exit(1)
	}

	markdown := renderMarkdown(results, ranAt)
	if err := writeReport(*reportDir+"/check-report.md", *reportDir+"/check-report.html", markdown); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
		os.Exit(1)
	}

	for _, r := range results {
		if !r.Passed {
			os.Exit(1)
		}
	}
}
