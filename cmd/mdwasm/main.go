package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/woxQAQ/markdown-wasm-go/internal/config"
	"github.com/woxQAQ/markdown-wasm-go/internal/highlight"
	"github.com/woxQAQ/markdown-wasm-go/internal/service"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `Usage: mdwasm [flags] [file ...]
       mdwasm version
       mdwasm engines
       mdwasm css

Renders markdown files (or stdin) to HTML with a markdown engine.

Flags:
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "mdwasm:", err)
		}
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	logLevel    string
	engine      string
	format      string
	flags       string
	allowJSURIs bool
	highlight   bool
	output      string
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("mdwasm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	var o options
	fs.StringVar(&o.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&o.engine, "engine", "", "Engine name (default from config: reference)")
	fs.StringVar(&o.format, "format", "", "Output format: html, xhtml or json")
	fs.StringVar(&o.flags, "flags", "", "Comma separated parse flags, e.g. tables,strikethrough or none")
	fs.BoolVar(&o.allowJSURIs, "allow-js-uris", false, "Keep javascript: link targets")
	fs.BoolVar(&o.highlight, "highlight", false, "Highlight fenced code blocks")
	fs.StringVar(&o.output, "o", "", "Write output to file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) > 0 && rest[0] == "version" {
		fmt.Fprintf(stdout, "mdwasm %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	applyFlags(cfg, &o, set)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel, stderr)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Debug("Starting mdwasm",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	svc, err := service.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(context.Background()); err != nil {
			logger.Error("Failed to shut down", zap.Error(err))
		}
	}()

	if len(rest) > 0 {
		switch rest[0] {
		case "engines":
			return listEngines(svc, stdout)
		case "css":
			return writeCSS(svc, cfg, logger, stdout)
		}
	}

	out := stdout
	if o.output != "" {
		f, err := os.Create(o.output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	if len(rest) == 0 {
		return render(ctx, svc, "<stdin>", stdin, out)
	}
	for _, path := range rest {
		if err := renderFile(ctx, svc, path, out); err != nil {
			return err
		}
	}
	return nil
}

func applyFlags(cfg *config.Config, o *options, set map[string]bool) {
	if set["log-level"] {
		cfg.LogLevel = o.logLevel
	}
	if set["engine"] {
		cfg.Engine = o.engine
	}
	if set["format"] {
		cfg.Render.Format = o.format
	}
	if set["flags"] {
		cfg.Render.ParseFlags = strings.Split(o.flags, ",")
	}
	if set["allow-js-uris"] {
		cfg.Render.AllowJSURIs = o.allowJSURIs
	}
	if set["highlight"] {
		cfg.Highlight.Enabled = o.highlight
	}
}

// newLogger builds a development logger for debug and a production (JSON)
// logger otherwise, writing to w.
func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var (
		enc  zapcore.Encoder
		opts []zap.Option
	)
	if lvl.Level() == zapcore.DebugLevel {
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		opts = append(opts, zap.Development(), zap.AddCaller())
	} else {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(w), lvl)
	return zap.New(core, opts...), nil
}

func renderFile(ctx context.Context, svc *service.Service, path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return render(ctx, svc, path, f, out)
}

func render(ctx context.Context, svc *service.Service, name string, in io.Reader, out io.Writer) error {
	source, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	html, err := svc.Render(ctx, source)
	if err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err = out.Write(html)
	return err
}

func listEngines(svc *service.Service, out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tVERSION\tFORMATS")
	for _, e := range svc.Engines() {
		formats := make([]string, 0, len(e.Formats()))
		for _, f := range e.Formats() {
			formats = append(formats, string(f))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name(), e.Kind(), e.Version(), strings.Join(formats, ","))
	}
	return w.Flush()
}

func writeCSS(svc *service.Service, cfg *config.Config, logger *zap.Logger, out io.Writer) error {
	h := svc.Highlighter()
	if h == nil {
		h = highlight.New(cfg.Highlight.Style, logger)
	}
	css, err := h.CSS()
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, css)
	return err
}
