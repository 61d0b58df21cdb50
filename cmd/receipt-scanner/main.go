package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/receipt-scanner/internal/backend"
	"github.com/zombor/receipt-scanner/internal/logging"
	"github.com/zombor/receipt-scanner/internal/receipt"
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

	// An optional .env file seeds the environment; real env vars win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	fs := ff.NewFlagSet("receipt-scanner")
	var (
		port           = fs.IntLong("port", 5173, "HTTP server port")
		backendURL     = fs.StringLong("backend-url", "http://localhost:8080", "Receipt analysis backend base URL")
		backendTimeout = fs.DurationLong("backend-timeout", 2*time.Minute, "Timeout for backend requests (0 disables)")
		previewStore   = fs.StringLong("preview-store", "local", "Preview store: 'local' or 'bolt'")
		previewDir     = fs.StringLong("preview-dir", "./previews", "Preview directory for the local store")
		previewDB      = fs.StringLong("preview-db", "previews.db", "Database file path for the bolt store")
		locale         = fs.StringLong("locale", "ko-KR", "Locale used to format amounts")
		currencySuffix = fs.StringLong("currency-suffix", "원", "Suffix appended to amounts")
		countSuffix    = fs.StringLong("count-suffix", "건", "Suffix appended to receipt counts")
		logLevel       = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat      = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_SCANNER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if _, err := logging.New(os.Stderr, *logLevel, *logFormat); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	format, err := receipt.NewFormatter(*locale, *currencySuffix, *countSuffix)
	if err != nil {
		slog.Error("Invalid locale", "locale", *locale, "error", err)
		os.Exit(1)
	}

	// Initialize preview store based on type
	var previews receipt.PreviewStore
	switch *previewStore {
	case "local":
		slog.Info("Initializing local preview store...", "dir", *previewDir)
		previews, err = receipt.NewLocalPreviewStore(*previewDir)
	case "bolt":
		slog.Info("Initializing bolt preview store...", "db", *previewDB)
		previews, err = receipt.NewBoltPreviewStore(*previewDB)
	default:
		slog.Error("Invalid preview store", "type", *previewStore, "valid", "local or bolt")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize preview store", "error", err)
		os.Exit(1)
	}
	defer previews.Close()

	slog.Info("Using receipt backend", "url", *backendURL, "timeout", *backendTimeout)
	client := backend.New(*backendURL, *backendTimeout)

	notices := receipt.NewFlashNotifier()
	view := receipt.NewView(client, previews, notices)
	server := receipt.NewServer(view, notices, previews, format)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}
	if err := view.Close(ctx); err != nil {
		slog.Error("Failed to release draft", "error", err)
	}
}
