// Package main is the pdfinsight CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/pdfinsight/internal/cli"
	"github.com/hyperjump/pdfinsight/internal/config"
	"github.com/hyperjump/pdfinsight/internal/metrics"
	"github.com/hyperjump/pdfinsight/internal/models"
	"github.com/hyperjump/pdfinsight/internal/server"
	"github.com/hyperjump/pdfinsight/internal/watcher"
	"github.com/hyperjump/pdfinsight/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/pdfinsight/config.yaml"
	defaultServerURL  = "http://localhost:8000"
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory wins if present; when neither exists the configuration
// comes from defaults and environment variables alone and the returned path is
// empty (nothing is persisted).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			local := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(local); statErr == nil {
				cfg, loadErr := config.Load(local)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, local, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg, err := config.Default()
			if err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "ask":
		runAsk()
	case "documents":
		runDocuments()
	case "clear":
		runClear()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("pdfinsight version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and builds the logger shared by in-process commands.
func setup(configPath string, debugFlag bool) (*config.Config, string, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode, cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, resolved, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger := setup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("data_dir", cfg.Storage.DataDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	components, err := initializeComponents(ctx, cfg, logger, m)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if docs, err := components.Manifests.List(); err == nil {
		m.SetDocuments(len(docs))
	}
	go components.Conversations.RunJanitor(ctx, cfg.Memory.JanitorInterval, cfg.Memory.MaxIdle)

	inbox := watcher.NewInbox(
		cfg.Watch.Directories,
		cfg.Watch.RecursiveOrDefault(),
		func(ctx context.Context, path string) error {
			_, err := components.Ingestor.IngestFile(ctx, path)
			return err
		},
		watcher.WithLogger(logger),
	)
	if err := inbox.Start(ctx); err != nil {
		logger.Fatal("Failed to start inbox watcher", zap.Error(err))
	}
	defer inbox.Stop()

	srv := server.NewServer(
		cfg,
		components.Ingestor,
		components.Pipeline,
		components.Manifests,
		components.Conversations,
		logger,
		server.WithMetrics(m),
		server.WithWatch(inbox, resolvedConfigPath),
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "upload through a running server instead of indexing in-process")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: pdfinsight ingest [flags] <file.pdf> [file.pdf...]")
		os.Exit(1)
	}
	format := mustFormat(*outputFormat)
	ctx := context.Background()

	if *serverURL != "" {
		client := cli.NewClient(*serverURL, 0)
		for _, path := range fs.Args() {
			resp, err := client.Upload(ctx, path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Upload of %s failed: %v\n", path, err)
				os.Exit(1)
			}
			_ = cli.WriteUpload(os.Stdout, resp, format)
		}
		return
	}

	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()
	components, err := initializeComponents(ctx, cfg, logger, nil)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	for _, path := range fs.Args() {
		m, err := components.Ingestor.IngestFile(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest of %s failed: %v\n", path, err)
			os.Exit(1)
		}
		_ = cli.WriteUpload(os.Stdout, &models.UploadResponse{
			Status:        "ok",
			DocID:         m.DocID,
			Filename:      m.Filename,
			Chunks:        m.Chunks,
			IngestSeconds: m.IngestSeconds,
		}, format)
	}
}

// printAskUsage prints ask subcommand usage.
func printAskUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: pdfinsight ask --doc <doc_id> [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  pdfinsight ask --doc 3f2a... what is the refund window
  pdfinsight ask --doc 3f2a... --session alice --lang en "and for digital goods?"
  pdfinsight ask --doc 3f2a... --server "" --top-k 8 ফেরতের সময়সীমা কত
`)
}

// buildQuestion joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the
// positional arguments to the front so that flag.Parse sees them; Go's flag
// package stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (in-process mode)")
	serverURL := fs.String("server", defaultServerURL, `server URL (empty = answer in-process with a one-shot conversation)`)
	docID := fs.String("doc", "", "document id returned by upload or ingest")
	session := fs.String("session", models.DefaultSessionID, "conversation id; turns with the same id share history")
	topK := fs.Int("top-k", 0, "passages to retrieve (0 = server default)")
	lang := fs.String("lang", string(models.DefaultLanguage), "reply language: bn or en")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printAskUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	question := buildQuestion(fs.Args())
	if question == "" || *docID == "" {
		printAskUsage(fs)
		os.Exit(1)
	}
	format := mustFormat(*outputFormat)
	req := models.AskRequest{
		DocID:     *docID,
		SessionID: *session,
		Question:  question,
		TopK:      *topK,
		Language:  models.Language(*lang),
	}
	ctx := context.Background()

	var (
		resp *models.AskResponse
		err  error
	)
	if *serverURL != "" {
		resp, err = cli.NewClient(*serverURL, 0).Ask(ctx, req)
	} else {
		cfg, _, logger := setup(*configPath, false)
		defer logger.Sync()
		components, initErr := initializeComponents(ctx, cfg, logger, nil)
		if initErr != nil {
			logger.Fatal("Failed to initialize", zap.Error(initErr))
		}
		defer components.Close()
		if req.TopK == 0 {
			req.TopK = cfg.Retrieval.DefaultTopK
		}
		resp, err = components.Pipeline.Ask(ctx, req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runDocuments() {
	fs := flag.NewFlagSet("documents", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read manifests directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := mustFormat(*outputFormat)

	var (
		docs []*models.Manifest
		err  error
	)
	if *serverURL != "" {
		docs, err = cli.NewClient(*serverURL, 0).Documents(context.Background())
	} else {
		cfg, _, logger := setup(*configPath, false)
		defer logger.Sync()
		docs, err = manifestsFromDisk(cfg, logger)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Listing documents failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteDocuments(os.Stdout, docs, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runClear() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() < 1 {
		fmt.Println("Usage: pdfinsight clear [flags] <doc_id> [session_id]")
		os.Exit(1)
	}
	sessionID := models.DefaultSessionID
	if fs.NArg() > 1 {
		sessionID = fs.Arg(1)
	}
	if err := cli.NewClient(*serverURL, 0).ClearSession(context.Background(), fs.Arg(0), sessionID); err != nil {
		fmt.Fprintf(os.Stderr, "Clear failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Cleared conversation %s for %s\n", sessionID, fs.Arg(0))
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[2:])

	status, err := cli.NewClient(*serverURL, 0).Status(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: pdfinsight watch <add|remove|list> [path]")
		fmt.Println("  pdfinsight watch add <path>     Add inbox directory")
		fmt.Println("  pdfinsight watch remove <path>  Remove inbox directory")
		fmt.Println("  pdfinsight watch list           List inbox directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(argsReorder(os.Args[3:]))
	client := cli.NewClient(*serverURL, 0)
	ctx := context.Background()

	switch sub {
	case "add", "remove":
		if fs.NArg() < 1 {
			fmt.Printf("Usage: pdfinsight watch %s <path>\n", sub)
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		var err error
		if sub == "add" {
			err = client.AddWatchDirectory(ctx, path)
		} else {
			err = client.RemoveWatchDirectory(ctx, path)
		}
		if err != nil {
			fmt.Printf("Watch %s failed: %v\n", sub, err)
			os.Exit(1)
		}
		fmt.Printf("%s: %s\n", map[string]string{"add": "Added", "remove": "Removed"}[sub], path)
	case "list":
		dirs, err := client.WatchDirectories(ctx)
		if err != nil {
			fmt.Printf("List failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range dirs {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func mustFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func printUsage() {
	fmt.Println(`pdfinsight - ask questions about your PDFs

Usage:
  pdfinsight server [flags]                  Start the HTTP server
  pdfinsight ingest [flags] <file.pdf>...    Index PDFs
  pdfinsight ask --doc <id> [flags] <q>      Ask a question about an indexed PDF
  pdfinsight documents [flags]               List indexed documents
  pdfinsight clear <doc_id> [session_id]     Forget a conversation
  pdfinsight status [flags]                  Show server status
  pdfinsight watch <add|remove|list>         Manage inbox directories
  pdfinsight version                         Show version
  pdfinsight help                            Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/pdfinsight/config.yaml,
                     or ./config.yaml when present; environment only when neither exists)
  --debug            Enable debug logging

Ingest Flags:
  --config string    Config file path
  --server string    Upload through a running server (default: index in-process)
  --output string    text or json

Ask Flags:
  --doc string       Document id (required)
  --session string   Conversation id (default: default)
  --top-k int        Passages to retrieve, 1-12 (default: server default)
  --lang string      Reply language: bn or en (default: bn)
  --server string    Server URL (default: http://localhost:8000). Empty answers in-process.
  --output string    text or json

Examples:
  pdfinsight server
  pdfinsight ingest handbook.pdf
  pdfinsight ask --doc 3f2a... what is the notice period
  pdfinsight ask --doc 3f2a... --lang en --output json "summarise chapter 2"
  pdfinsight documents --output json
  pdfinsight watch add ~/Inbox`)
}
