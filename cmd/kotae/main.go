// Package main is the kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/generate"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/mcpserver"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/pipeline"
	"github.com/hyperjump/kotae/internal/refine"
	"github.com/hyperjump/kotae/internal/rerank"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/scoring"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/internal/websearch"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default and it does not exist,
// config.yaml in the current directory is tried, then built-in defaults.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); err != nil {
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
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// applyThreshold overrides the configured relevance cutoff when the flag was set.
func applyThreshold(cfg *config.Config, fs *flag.FlagSet, threshold float64) error {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "threshold" {
			set = true
		}
	})
	if !set {
		return nil
	}
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("threshold %v not in [0,1]", threshold)
	}
	cfg.Pipeline.RelevanceThreshold = &threshold
	return nil
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
	case "ask":
		runAsk()
	case "ingest":
		runIngest()
	case "delete":
		runDelete()
	case "mcp":
		runMCP()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and builds the logger shared by every subcommand.
func setup(configPath string, debug bool, fs *flag.FlagSet, threshold float64) (*config.Config, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if fs != nil {
		if err := applyThreshold(cfg, fs, threshold); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid flag: %v\n", err)
			os.Exit(1)
		}
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolved),
		zap.Float64("relevance_threshold", cfg.Pipeline.Threshold()),
		zap.String("fallback_mode", cfg.Pipeline.FallbackMode),
	)
	return cfg, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	threshold := fs.Float64("threshold", config.DefaultRelevanceThreshold, "relevance threshold in [0,1] (overrides config)")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug, fs, *threshold)
	defer logger.Sync()

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		recursive := cfg.Watch.RecursiveOrDefault()
		for _, dir := range cfg.Watch.Directories {
			n, err := components.Indexer.IndexDirectory(watchCtx, dir, cfg.Watch.Extensions, recursive)
			if err != nil {
				logger.Warn("initial directory sync failed", zap.String("dir", dir), zap.Error(err))
				continue
			}
			logger.Info("directory synced", zap.String("dir", dir), zap.Int("indexed", n))
		}
		watchSvc = watcher.New(cfg.Watch.Directories, cfg.Watch.Extensions, recursive, components.Indexer,
			watcher.WithLogger(logger))
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	srvOpts := []server.Option{server.WithLogger(logger), server.WithMetrics(components.Metrics)}
	if watchSvc != nil {
		srvOpts = append(srvOpts, server.WithWatchDirectories(watchSvc.Directories))
	}
	srv := server.NewServer(components.Pipeline, components.Indexer, components.Storage, components.Store, cfg, srvOpts...)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	if watchSvc != nil {
		<-watchSvc.Done()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// printAskUsage prints ask subcommand usage.
func printAskUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kotae ask [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  kotae ask what is an LLM
  kotae ask --threshold 0.7 "how do I configure the watcher"
  kotae ask --server http://localhost:8080 --output json explain retrieval fusion
`)
}

// buildQuery joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// reorderArgs moves flags that appear after the question to the front so that
// flag.Parse sees them; the flag package stops at the first positional argument.
func reorderArgs(args []string) []string {
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
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	threshold := fs.Float64("threshold", config.DefaultRelevanceThreshold, "relevance threshold in [0,1] (overrides config; local mode only)")
	serverURL := fs.String("server", "", "server URL (empty = run the pipeline locally)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printAskUsage(fs) }
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	query := buildQuery(fs.Args())
	if query == "" {
		printAskUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var answer *models.Answer
	if *serverURL != "" {
		answer, err = askViaHTTP(*serverURL, query)
	} else {
		cfg, logger := setup(*configPath, *debug, fs, *threshold)
		defer logger.Sync()
		components, initErr := initializeComponents(context.Background(), cfg, logger)
		if initErr != nil {
			logger.Fatal("Failed to initialize", zap.Error(initErr))
		}
		defer components.Close()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		answer, err = components.Pipeline.Answer(ctx, query)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Answer failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, answer, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func askViaHTTP(serverURL, query string) (*models.Answer, error) {
	body, err := json.Marshal(models.AnswerRequest{Query: query})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/api/v1/answer", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var answer models.Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &answer, nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	recursive := fs.Bool("recursive", true, "descend into subdirectories")
	title := fs.String("title", "", "document title (single file only)")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ingest [flags] <file-or-directory>...")
		os.Exit(1)
	}

	cfg, logger := setup(*configPath, *debug, nil, 0)
	defer logger.Sync()
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	total := 0
	for _, path := range fs.Args() {
		n, err := ingestPath(ctx, components.Indexer, path, *title, cfg.Watch.Extensions, *recursive)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed for %s: %v\n", path, err)
			os.Exit(1)
		}
		total += n
	}
	fmt.Printf("Indexed %d file(s); corpus now serves %d chunks\n", total, components.Store.Current().Len())
}

// ingestPath indexes one file or directory. A title applies only to a single file.
func ingestPath(ctx context.Context, idx *indexer.Indexer, path, title string, exts []string, recursive bool) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return idx.IndexDirectory(ctx, path, exts, recursive)
	}
	if title == "" {
		ok, err := idx.IndexFile(ctx, path, nil)
		if err != nil || !ok {
			return 0, err
		}
		return 1, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	text, err := extract.NewExtractor().ExtractBytes(data, filepath.Ext(path))
	if err != nil {
		return 0, err
	}
	if _, err := idx.IndexDocuments(ctx, []*models.DocumentInput{{Title: title, Content: text}}); err != nil {
		return 0, err
	}
	return 1, nil
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	cfg, logger := setup(*configPath, false, nil, 0)
	defer logger.Sync()
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	if err := components.Indexer.DeleteDocument(context.Background(), docID); err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runMCP() {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	threshold := fs.Float64("threshold", config.DefaultRelevanceThreshold, "relevance threshold in [0,1] (overrides config)")
	readOnly := fs.Bool("read-only", false, "do not expose the index_document tool")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug, fs, *threshold)
	defer logger.Sync()
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	var docIndexer mcpserver.DocumentIndexer
	if !*readOnly {
		docIndexer = components.Indexer
	}
	s := mcpserver.NewServer(mcpserver.NewHandlers(components.Pipeline, docIndexer, logger), version)
	if err := mcpserver.ServeStdio(s); err != nil {
		logger.Fatal("MCP server failed", zap.Error(err))
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, logger := setup(*configPath, false, nil, 0)
	defer logger.Sync()

	st, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	status, err := collectStatus(context.Background(), st)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func collectStatus(ctx context.Context, st *storage.SQLiteStorage) (cli.Status, error) {
	docs, err := st.CountDocuments(ctx)
	if err != nil {
		return cli.Status{}, err
	}
	chunks, err := st.CountChunks(ctx)
	if err != nil {
		return cli.Status{}, err
	}
	size, err := storage.DatabaseSizeBytes(st.Path())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cli.Status{}, err
	}
	return cli.Status{
		Documents:         docs,
		Chunks:            chunks,
		DatabasePath:      st.Path(),
		DatabaseSizeBytes: size,
	}, nil
}

// Components holds initialized services.
type Components struct {
	Storage  *storage.SQLiteStorage
	Embedder embedding.Embedder
	Store    *corpus.Store
	Indexer  *indexer.Indexer
	Pipeline *pipeline.Pipeline
	Metrics  *metrics.Metrics
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	m := metrics.New()
	exec := llm.NewExecutor(llm.ExecutorConfigFrom(cfg.Resilience), logger)
	client := llm.NewOllamaClient(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.Timeout,
		llm.WithLogger(logger),
		llm.WithExecutor(exec),
		llm.WithTemperature(cfg.LLM.Temperature),
	)

	embedder, err := embedding.New(cfg.Embedding, exec, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c := &Components{Embedder: embedder, Metrics: m}

	store, err := corpus.NewStore(embedder, corpus.WithLogger(logger), corpus.WithOnSwap(m.SetCorpusChunks))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize corpus: %w", err)
	}
	c.Store = store

	st, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = st

	c.Indexer = indexer.NewIndexer(st, store, cfg.Ingest, extract.NewExtractor(), indexer.WithLogger(logger))
	n, err := c.Indexer.LoadCorpus(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	logger.Info("corpus loaded", zap.Int("chunks", n))

	searcher, err := websearch.New(cfg.WebSearch, exec, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize web search: %w", err)
	}

	c.Pipeline = pipeline.New(pipeline.Deps{
		Store: store,
		Retriever: retrieval.New(
			retrieval.WithLogger(logger),
			retrieval.WithWeights(retrieval.Weights{Lexical: cfg.Retrieval.Weights.Sparse, Dense: cfg.Retrieval.Weights.Dense}),
			retrieval.WithRRFK(cfg.Retrieval.RRFK),
			retrieval.WithDefaultK(cfg.Retrieval.TopK),
		),
		Reranker:   rerank.New(rerank.NewScorer(cfg.Rerank, exec), rerank.WithLogger(logger), rerank.WithTopN(cfg.Rerank.TopN)),
		Scorer:     scoring.New(client, logger),
		Refiner:    refine.New(client, logger),
		Generator:  generate.NewGenerator(client, logger),
		Summarizer: generate.NewSummarizer(client, logger),
		Searcher:   searcher,
	}, pipeline.ConfigFrom(cfg), pipeline.WithLogger(logger), pipeline.WithMetrics(m))

	return c, nil
}

func printUsage() {
	fmt.Println(`kotae - Retrieval-augmented answers over local documents with web fallback

Usage:
  kotae server [flags]                  Start the HTTP server (and directory watcher)
  kotae ask [flags] <question>          Answer a question
  kotae ingest [flags] <path>...        Index files or directories
  kotae delete [flags] <id>             Delete a document
  kotae mcp [flags]                     Serve the MCP tools over stdio
  kotae status [flags]                  Show storage status
  kotae version                         Show version
  kotae help                            Show this help

Common Flags:
  --config string     Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug             Enable debug logging
  --threshold float   Relevance threshold in [0,1] (server, ask, mcp)

Ask Flags:
  --server string     Server URL; empty runs the pipeline locally (default: "")
  --output string     Output format: text or json (default: text)

Ingest Flags:
  --recursive         Descend into subdirectories (default: true)
  --title string      Document title (single file only)

Status Flags:
  --output string     Output format: text or json (default: text)

Examples:
  kotae server
  kotae ingest ~/notes
  kotae ask what is an LLM
  kotae ask --output json --threshold 0.7 "explain hybrid retrieval"
  kotae status --output json`)
}
