package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/varshakam/omr-eval/internal/config"
	"github.com/varshakam/omr-eval/internal/logging"
	"github.com/varshakam/omr-eval/internal/omrerr"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func printUsage() {
	fmt.Println("omr-eval - OMR answer sheet grader")
	fmt.Println()
	fmt.Println("Usage: omr-eval [command] [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  (none)                   Run the MCP server over stdin/stdout")
	fmt.Println("  serve                    Run the HTTP server")
	fmt.Println("  worker                   Run the asynchronous grading worker")
	fmt.Println("  grade <file> [version]   Grade one sheet and print the result as JSON")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  OMR_CONFIG=path          Config file or directory holding config.yaml")
	fmt.Println("  OMR_LOG_LEVEL=debug      Enable debug logging")
	fmt.Println("  OMR_<SECTION>_<KEY>      Override any config.yaml setting")
	fmt.Println()
	fmt.Println("Without a command the server communicates via MCP protocol over")
	fmt.Println("stdin/stdout. Configure it in your MCP client.")
}

func main() {
	command := ""
	var args []string
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("omr-eval %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printUsage()
			return
		}
		command = os.Args[1]
		args = os.Args[2:]
	}

	// .env is optional; the process environment is used as-is without it.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("OMR_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "omr-eval: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr; stdout is for MCP protocol and command output.
	logger := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	defer logger.Sync()

	logger.Debug("starting omr-eval",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", GitCommit),
		zap.String("command", command))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "":
		err = runMCP(cfg, logger)
	case "serve":
		err = runServe(ctx, cfg, logger)
	case "worker":
		err = runWorker(ctx, cfg, logger)
	case "grade":
		err = runGrade(cfg, logger, args)
	default:
		fmt.Fprintf(os.Stderr, "omr-eval: unknown command %q\n\n", command)
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		var coded *omrerr.Error
		if errors.As(err, &coded) {
			out, _ := json.Marshal(coded.ToMap())
			fmt.Fprintln(os.Stderr, string(out))
		}
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}
