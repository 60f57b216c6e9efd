// Command terminal is an interactive REPL for poking at a running
// fabric by hand: post raw path/payload pairs, or send a request and
// wait for the reply.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/nugget/muf/internal/buildinfo"
	"github.com/nugget/muf/internal/client"
	"github.com/nugget/muf/internal/config"
)

const (
	colorReset = "\033[0m"
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	unitFlag := flag.String("unit", "", "unit name (overrides config)")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println(buildinfo.String())
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

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
		cfg.Unit = "terminal-operator"
	}
	if *unitFlag != "" {
		cfg.Unit = *unitFlag
	}

	color := isatty.IsTerminal(os.Stdout.Fd())

	c := client.New(client.Config{Unit: cfg.Unit, Store: cfg.Store.Options(), Logger: logger})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "connection error: %v\n", err)
		os.Exit(1)
	}
	defer c.Stop()

	fmt.Println("MUF Memory Portal")
	fmt.Println("Commands:")
	fmt.Println("  post <path> <data>             write data directly at path")
	fmt.Println("  req  <target-unit> <data>       send a request and wait for the reply")
	fmt.Println("  exit | quit                     leave")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("MUF > ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		fields := strings.SplitN(line, " ", 3)
		switch fields[0] {
		case "post":
			if len(fields) < 3 {
				printError(color, "usage: post <path> <data>")
				continue
			}
			runPost(ctx, c, color, fields[1], fields[2])
		case "req":
			if len(fields) < 3 {
				printError(color, "usage: req <target-unit> <data>")
				continue
			}
			runRequest(ctx, c, color, fields[1], fields[2])
		default:
			printError(color, fmt.Sprintf("unknown command: %s", fields[0]))
		}
	}
}

func runPost(ctx context.Context, c *client.Client, color bool, path, data string) {
	if err := c.PostPath(ctx, path, []byte(data), nil); err != nil {
		printError(color, err.Error())
		return
	}
	printOK(color, fmt.Sprintf("posted: %s (%s)", path, humanize.Bytes(uint64(len(data)))))
}

func runRequest(ctx context.Context, c *client.Client, color bool, target, data string) {
	start := time.Now()
	resp, err := c.Request(ctx, target, []byte(data), 5*time.Second)
	elapsed := time.Since(start)
	if err != nil {
		printError(color, fmt.Sprintf("%v (after %s)", err, elapsed.Round(time.Millisecond)))
		return
	}
	printOK(color, fmt.Sprintf("response (%s): %s", elapsed.Round(time.Millisecond), string(resp)))
}

func printOK(color bool, msg string) {
	if color {
		fmt.Printf("%s[+]%s %s\n", colorGreen, colorReset, msg)
		return
	}
	fmt.Printf("[+] %s\n", msg)
}

func printError(color bool, msg string) {
	if color {
		fmt.Printf("%s[-]%s %s\n", colorRed, colorReset, msg)
		return
	}
	fmt.Printf("[-] %s\n", msg)
}
