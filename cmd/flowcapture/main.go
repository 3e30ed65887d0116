// Command flowcapture records browser interactions and compiles them into
// replayable workflows.
//
// Usage:
//
//	flowcapture -url https://example.com            # record a page, control over HTTP
//	flowcapture -url https://example.com -mcp stdio # control over MCP stdio
//	flowcapture compile -in trace.json -compiler compile
//	flowcapture compile -trace <id> -store traces.db
//	flowcapture traces -store traces.db                # list stored traces
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jmrcs97/FlowCapture-sub000/browser"
	"github.com/jmrcs97/FlowCapture-sub000/compile"
	"github.com/jmrcs97/FlowCapture-sub000/config"
	"github.com/jmrcs97/FlowCapture-sub000/control"
	"github.com/jmrcs97/FlowCapture-sub000/interpret"
	"github.com/jmrcs97/FlowCapture-sub000/locator"
	"github.com/jmrcs97/FlowCapture-sub000/sched"
	"github.com/jmrcs97/FlowCapture-sub000/session"
	"github.com/jmrcs97/FlowCapture-sub000/step"
	"github.com/jmrcs97/FlowCapture-sub000/store"
	"github.com/jmrcs97/FlowCapture-sub000/workflow"
)

func main() {
	args := os.Args[1:]
	sub := "record"
	if len(args) > 0 && (args[0] == "compile" || args[0] == "traces") {
		sub, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("flowcapture "+sub, flag.ExitOnError)
	configPath := fs.String("config", "", "path to flowcapture.yaml config file")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	storePath := fs.String("store", "", "trace database path (overrides config)")

	// record
	pageURL := fs.String("url", "", "page to record")
	addr := fs.String("addr", "", "control server address (overrides config)")
	mcpMode := fs.String("mcp", "http", "MCP transport: http, stdio, off")

	// compile
	in := fs.String("in", "", "trace JSON file, - for stdin")
	traceID := fs.String("trace", "", "stored trace id")
	compiler := fs.String("compiler", control.Interpret, "compiler: interpret or compile")

	// traces
	limit := fs.Int("limit", 50, "maximum traces to list")
	fs.Parse(args)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			logger.Error("flowcapture: config", "error", err)
			os.Exit(1)
		}
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch sub {
	case "compile":
		err = runCompile(ctx, logger, cfg, *in, *traceID, *compiler)
	case "traces":
		err = runTraces(ctx, logger, cfg, *limit)
	default:
		if *pageURL == "" {
			fmt.Fprintln(os.Stderr, "usage: flowcapture -url <url> [-config file] | flowcapture compile -in <file>")
			os.Exit(2)
		}
		err = runRecord(ctx, logger, cfg, *pageURL, *mcpMode)
	}
	if err != nil {
		logger.Error("flowcapture: fatal", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runRecord(ctx context.Context, logger *slog.Logger, cfg *config.Config, pageURL, mcpMode string) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.RemoteURL,
		Stealth:          browser.ParseStealth(cfg.Browser.Stealth),
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		ViewportWidth:    cfg.Browser.ViewportWidth,
		ViewportHeight:   cfg.Browser.ViewportHeight,
		NavigateTimeout:  cfg.Browser.NavigateTimeout,
		Logger:           logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	tab, err := browser.OpenTab(ctx, mgr, pageURL)
	if err != nil {
		return err
	}
	defer tab.Close()

	var st control.TraceStore
	if cfg.Store.Path != "" {
		s, err := store.Open(cfg.Store.Path, logger, store.WithMkdirAll())
		if err != nil {
			return err
		}
		defer s.Close()
		st = s
	}

	loop := sched.NewLoop(0, logger)
	frame := sched.NewFrame(loop, cfg.Settle.FrameInterval)
	defer frame.Stop()

	doc := browser.NewDocument(tab, 0, logger)
	lc := cfg.Locator
	lc.Logger = logger
	sc := cfg.SessionConfig()
	sc.Logger = logger
	rec := session.New(doc, locator.New(doc, lc), frame, sched.SystemClock{}, sc, nil)

	ctrl := control.New(loop, rec, doc, st, control.Config{
		Interpret: cfg.Interpret,
		Compile:   cfg.Compile,
		Logger:    logger,
	})

	// The loop outlives ctx so shutdown can still stop the recording.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(loopCtx) }()
	go browser.Listen(ctx, tab, ctrl.Ingest, logger)

	r := chi.NewRouter()
	r.Mount("/", control.NewHTTPHandler(ctrl))

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "flowcapture", Version: "1.0.0"}, nil)
	ctrl.RegisterMCP(mcpSrv)
	switch mcpMode {
	case "http":
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))
	case "stdio":
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("flowcapture: mcp stdio", "error", err)
			}
			stop()
		}()
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("flowcapture: control server starting", "addr", cfg.HTTP.Addr, "mcp", mcpMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("flowcapture: server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("flowcapture: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if st, _ := ctrl.Status(shutdownCtx); st.Recording {
		if _, err := ctrl.StopRecording(shutdownCtx); err != nil {
			logger.Warn("flowcapture: stop recording on shutdown", "error", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("flowcapture: shutdown", "error", err)
	}
	stopLoop()
	if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runCompile(ctx context.Context, logger *slog.Logger, cfg *config.Config, in, traceID, compiler string) error {
	steps, err := loadSteps(ctx, logger, cfg, in, traceID)
	if err != nil {
		return err
	}

	var p workflow.Program
	switch compiler {
	case control.Interpret:
		ic := cfg.Interpret
		ic.Logger = logger
		p = interpret.New(ic).Interpret(steps).Program
	case control.Compile:
		co := cfg.Compile
		co.Logger = logger
		p = compile.Compile(steps, co)
	default:
		return fmt.Errorf("%w: %q", control.ErrUnknownCompiler, compiler)
	}

	v := workflow.ValidateProgram(p)
	for _, is := range v.Issues {
		logger.Warn("flowcapture: workflow issue", "code", is.Code, "message", is.Message)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func loadSteps(ctx context.Context, logger *slog.Logger, cfg *config.Config, in, traceID string) ([]step.Step, error) {
	if traceID != "" {
		if cfg.Store.Path == "" {
			return nil, fmt.Errorf("compile: -trace needs -store or store.path")
		}
		s, err := store.Open(cfg.Store.Path, logger)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		_, steps, err := s.GetTrace(ctx, traceID)
		return steps, err
	}

	var r io.Reader = os.Stdin
	if in != "" && in != "-" {
		f, err := os.Open(in)
		if err != nil {
			return nil, fmt.Errorf("compile: %w", err)
		}
		defer f.Close()
		r = f
	}
	return step.Decode(r)
}

func runTraces(ctx context.Context, logger *slog.Logger, cfg *config.Config, limit int) error {
	if cfg.Store.Path == "" {
		return fmt.Errorf("traces: -store or store.path is required")
	}
	s, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	traces, err := s.ListTraces(ctx, limit)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, tr := range traces {
		if err := enc.Encode(tr); err != nil {
			return err
		}
	}
	return nil
}
