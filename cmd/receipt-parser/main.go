package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/receipt-parser/internal/receipt"
	"github.com/zombor/receipt-parser/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receipt-parser")
	var (
		port        = fs.IntLong("port", 8000, "HTTP server port")
		configPath  = fs.StringLong("config", "config.yaml", "Credential file with a 'token' key, read on every request")
		scannerType = fs.StringLong("scanner", "openai", "Scanner type: 'openai', 'gemini' or 'ollama'")
		modelName   = fs.StringLong("model", "", "Model name (default depends on scanner; a 'model' key in the config file wins)")
		openaiURL   = fs.StringLong("openai-url", "", "OpenAI-compatible API base URL (default https://api.openai.com/v1)")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		timeout     = fs.DurationLong("timeout", 0, "Upper bound on a single model call (0 means no limit)")
		maxBody     = fs.IntLong("max-body", int(receipt.DefaultMaxBodyBytes), "Maximum request body size in bytes")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		_           = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_PARSER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// Initialize scanner based on type
	var scanner scanning.Scanner
	var err error
	switch *scannerType {
	case "openai":
		slog.Info("Initializing OpenAI scanner...", "url", *openaiURL, "model", *modelName)
		scanner, err = scanning.NewOpenAI(*openaiURL, *modelName)
	case "gemini":
		slog.Info("Initializing Gemini scanner...", "model", *modelName)
		scanner, err = scanning.NewGemini(*modelName)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *modelName)
		scanner, err = scanning.NewOllama(*ollamaURL, *modelName)
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "openai, gemini or ollama")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize scanner", "type", *scannerType, "error", err)
		os.Exit(1)
	}

	// The file is resolved now but read per request, so it may be created or rotated later
	credPath, err := filepath.Abs(*configPath)
	if err != nil {
		slog.Error("Invalid config path", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if _, err := os.Stat(credPath); err != nil {
		slog.Warn("Credential file is not readable yet; requests will fail until it is", "path", credPath, "error", err)
	}
	credentials := receipt.NewFileCredentials(credPath)

	receiptService := receipt.NewServiceWithTimeout(credentials, scanner, *timeout)
	server := receipt.NewServer(receiptService, int64(*maxBody))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutting down...")
}
