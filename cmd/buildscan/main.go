// Package main provides the buildscan command, which replays a recorded stream
// of build lifecycle events through the profiler. Each line of the input is one
// JSON-encoded lifecycle event.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/entrhq/buildscan/pkg/config"
	"github.com/entrhq/buildscan/pkg/logging"
	"github.com/entrhq/buildscan/pkg/profile"
	"github.com/entrhq/buildscan/pkg/profiler"
	"github.com/entrhq/buildscan/pkg/report"
	"github.com/entrhq/buildscan/pkg/storage/backends"
	"github.com/entrhq/buildscan/pkg/trace"
	"github.com/entrhq/buildscan/pkg/types"
)

const (
	version = "0.1.0"

	// maxEventSize bounds a single JSON line of the event stream.
	maxEventSize = 4 * 1024 * 1024
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile  string
	EventsFile  string
	TraceFile   string
	SummaryFile string
	Enable      bool
	Quiet       bool
	ShowVersion bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("buildscan v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nShutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, cli, os.Stdin, os.Stdout); err != nil {
		cancel()
		log.Printf("buildscan failed: %v", err)
		os.Exit(1)
	}
	cancel()
}

// parseFlags parses command line flags
func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.StringVar(&cli.EventsFile, "events", "-", "JSON-lines file of lifecycle events ('-' for stdin)")
	flag.StringVar(&cli.TraceFile, "trace", "", "Write a Chrome trace of the session to this file")
	flag.StringVar(&cli.SummaryFile, "summary", "", "Write a markdown summary of the session to this file")
	flag.BoolVar(&cli.Enable, "enable", false, "Enable profiling regardless of MAVEN_BUILD_SCANNER")
	flag.BoolVar(&cli.Quiet, "quiet", false, "Do not print the console summary")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "buildscan - build lifecycle profiler\n\n")
		fmt.Fprintf(os.Stderr, "Usage: buildscan [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Replay a recorded build into the default file storage\n")
		fmt.Fprintf(os.Stderr, "  MAVEN_BUILD_SCANNER=1 buildscan -events build-events.jsonl\n\n")
		fmt.Fprintf(os.Stderr, "  # Stream events and export a trace for Perfetto\n")
		fmt.Fprintf(os.Stderr, "  cat events.jsonl | buildscan -enable -trace build.trace.json\n\n")
	}

	flag.Parse()
	return cli
}

// run replays the configured event stream and writes the requested outputs
func run(ctx context.Context, cli *CLIConfig, stdin io.Reader, stdout io.Writer) error {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cli.Enable {
		cfg.Enabled = true
	}

	logger := newLogger(cfg)
	defer logger.Close()

	if !cfg.Enabled {
		logger.Infof("Profiling is disabled; set MAVEN_BUILD_SCANNER=1 or pass -enable")
	}

	factory, err := backends.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to configure storage: %w", err)
	}

	listener, err := profiler.New(cfg, factory, profiler.WithLogger(logger.With("profiler")))
	if err != nil {
		return fmt.Errorf("failed to create profiler: %w", err)
	}

	events, closeEvents, err := openEvents(cli.EventsFile, stdin)
	if err != nil {
		return err
	}
	defer closeEvents()

	count, err := replay(ctx, listener, events, logger)
	if err != nil {
		return err
	}
	logger.Debugf("Replayed %d events", count)

	session := listener.Session()
	if session == nil {
		return nil
	}

	if !cli.Quiet {
		report.NewPrinter(stdout).Summary(session)
	}
	return writeOutputs(cli, session)
}

func newLogger(cfg *config.Config) *logging.Logger {
	level := logging.WithLevel(logging.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.Dir == "" {
		return logging.New("buildscan", level)
	}

	// A failed file logger falls back to stderr and has already said so.
	logger, _ := logging.NewFileLogger(cfg.Logging.Dir, "buildscan", "buildscan", level)
	return logger
}

func openEvents(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open events file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// replay feeds every event of r to the listener. Profiler errors are logged
// and do not stop the replay; malformed input does.
func replay(ctx context.Context, listener *profiler.Listener, r io.Reader, logger *logging.Logger) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	count := 0
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return count, fmt.Errorf("replay interrupted at line %d: %w", line, err)
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var event types.LifecycleEvent
		if err := json.Unmarshal([]byte(text), &event); err != nil {
			return count, fmt.Errorf("failed to decode event on line %d: %w", line, err)
		}

		if err := listener.Handle(ctx, &event); err != nil {
			logger.Errorf("Line %d: %v", line, err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("failed to read events: %w", err)
	}
	return count, nil
}

func writeOutputs(cli *CLIConfig, session *profile.Session) error {
	if cli.TraceFile != "" {
		f, err := os.Create(cli.TraceFile)
		if err != nil {
			return fmt.Errorf("failed to create trace file: %w", err)
		}
		if err := trace.Write(f, session); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write trace file: %w", err)
		}
	}

	if cli.SummaryFile != "" {
		if err := report.WriteSummaryMarkdown(cli.SummaryFile, session); err != nil {
			return err
		}
	}
	return nil
}
