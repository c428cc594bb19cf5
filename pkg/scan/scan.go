// Package scan ties discovery, call graph building and rule evaluation
// together for one repository root.
package scan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cli/go-gh/v2/pkg/auth"

	"github.com/githubnext/gh-uses/pkg/callgraph"
	"github.com/githubnext/gh-uses/pkg/config"
	"github.com/githubnext/gh-uses/pkg/diagnostic"
	"github.com/githubnext/gh-uses/pkg/logger"
	"github.com/githubnext/gh-uses/pkg/resolver"
	"github.com/githubnext/gh-uses/pkg/rules"
)

var log = logger.New("scan:scan")

// ErrNoEntryDocuments is returned when discovery finds nothing to scan and
// entry documents are required.
var ErrNoEntryDocuments = errors.New("no entry documents found")

// Options is the immutable input of one scan.
type Options struct {
	// Root is the absolute repository root.
	Root     string
	Patterns []string
	Exclude  []string
	// RequireEntries makes an empty discovery fatal.
	RequireEntries bool
	Rules          rules.Settings
	FailOn         diagnostic.Severity
	Graph          callgraph.Options

	// Mode selects the remote resolver (config.ModeAuto and friends).
	Mode      string
	Host      string
	CacheDir  string
	RateLimit float64

	// Remote replaces the resolver selected by Mode.
	Remote resolver.Resolver
}

// NewOptions converts a validated configuration into scan options for root.
func NewOptions(root string, cfg *config.Config) (Options, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Options{}, fmt.Errorf("failed to resolve scan root: %w", err)
	}

	patterns := cfg.Discovery.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns(cfg.Discovery.SkipActions)
	}

	return Options{
		Root:           abs,
		Patterns:       patterns,
		Exclude:        cfg.Discovery.Exclude,
		RequireEntries: cfg.Discovery.EntriesRequired(),
		Rules:          cfg.RuleSettings(),
		FailOn:         cfg.FailOnSeverity(),
		Graph: callgraph.Options{
			MaxDepth:       cfg.MaxDepth,
			Concurrency:    cfg.Resolver.Concurrency,
			ResolveTimeout: cfg.ResolveTimeout(),
			Offline:        cfg.Resolver.Mode == config.ModeOffline,
		},
		Mode:      cfg.Resolver.Mode,
		Host:      cfg.Resolver.Host,
		CacheDir:  cfg.Resolver.CacheDir,
		RateLimit: cfg.Resolver.RequestsPerSecond(),
	}, nil
}

// Scanner runs scans of one root. It can be reused, for example by watch
// mode; every Run builds a fresh call graph.
type Scanner struct {
	opts      Options
	engine    *rules.Engine
	discovery *Discovery
	local     *resolver.FilesystemResolver
	router    *resolver.Router
}

// New validates opts and prepares the resolvers. A *rules.ConfigurationError
// is returned for rule settings the engine rejects.
func New(opts Options) (*Scanner, error) {
	engine, err := rules.NewEngine(opts.Rules)
	if err != nil {
		return nil, err
	}

	discovery, err := NewDiscovery(opts.Root, opts.Patterns, opts.Exclude)
	if err != nil {
		return nil, err
	}

	local, err := resolver.NewFilesystemResolver(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid scan root: %w", err)
	}

	remote := opts.Remote
	if remote == nil && !opts.Graph.Offline {
		remote, err = NewRemoteResolver(opts)
		if err != nil {
			return nil, err
		}
	}

	return &Scanner{
		opts:      opts,
		engine:    engine,
		discovery: discovery,
		local:     local,
		router:    &resolver.Router{Local: local, Remote: remote},
	}, nil
}

// NewRemoteResolver picks the remote resolver for opts.Mode. Auto mode uses
// the contents API when gh has a token for the host and git otherwise.
func NewRemoteResolver(opts Options) (resolver.Resolver, error) {
	limiter := resolver.NewLimiter(opts.RateLimit, opts.Graph.Concurrency)

	mode := opts.Mode
	if mode == config.ModeAuto || mode == "" {
		host := opts.Host
		if host == "" {
			host, _ = auth.DefaultHost()
		}
		if token, source := auth.TokenForHost(host); token != "" {
			log.Printf("Found a token for %s in %s, using the GitHub API", host, source)
			mode = config.ModeAPI
		} else {
			log.Printf("No token for %s, using git", host)
			mode = config.ModeGit
		}
	}

	switch mode {
	case config.ModeOffline:
		return nil, errors.New("remote resolution is disabled in offline mode")
	case config.ModeAPI:
		return resolver.NewGitHubResolver(resolver.GitHubOptions{Host: opts.Host, Limiter: limiter})
	case config.ModeGit:
		return resolver.NewGitResolver(resolver.GitOptions{CacheDir: opts.CacheDir, Host: opts.Host, Limiter: limiter})
	default:
		return nil, fmt.Errorf("unknown resolver mode %q", mode)
	}
}

// Run discovers entry documents, builds the call graph and evaluates the
// rules. Only ErrNoEntryDocuments and discovery failures are returned as
// errors; everything found in the repository becomes a diagnostic. A
// canceled ctx yields a partial result marked incomplete.
func (s *Scanner) Run(ctx context.Context) (*diagnostic.ScanResult, error) {
	log.Printf("Starting scan: root=%s, mode=%s, offline=%v", s.opts.Root, s.opts.Mode, s.opts.Graph.Offline)

	files, err := s.discovery.Find(ctx)
	if err != nil {
		if ctx.Err() != nil {
			log.Print("Scan canceled during discovery")
			return diagnostic.NewResult(nil, diagnostic.Summary{}, s.opts.FailOn, true), nil
		}
		return nil, fmt.Errorf("failed to discover entry documents: %w", err)
	}
	if len(files) == 0 {
		if s.opts.RequireEntries {
			return nil, fmt.Errorf("%w under %s (patterns: %v)", ErrNoEntryDocuments, s.opts.Root, s.opts.Patterns)
		}
		log.Print("No entry documents found")
		return diagnostic.NewResult(nil, diagnostic.Summary{}, s.opts.FailOn, false), nil
	}

	var entries []*resolver.Document
	var diags []diagnostic.Diagnostic
	for _, file := range files {
		doc, err := s.local.LoadEntry(file)
		if err != nil {
			log.Printf("Cannot read entry %s: %v", file, err)
			if sev, ok := s.engine.Severity(rules.InvalidDocument); ok {
				diags = append(diags, diagnostic.Diagnostic{
					Severity: sev,
					RuleID:   rules.InvalidDocument,
					Message:  fmt.Sprintf("cannot read document: %v", err),
					Location: diagnostic.Location{File: file},
				})
			}
			continue
		}
		entries = append(entries, doc)
	}

	builder := callgraph.NewBuilder(s.router, s.opts.Graph)
	graph := builder.Build(ctx, entries)
	diags = append(diags, s.engine.Evaluate(graph)...)

	summary := diagnostic.Summary{
		Entries:     len(graph.Entries),
		Documents:   len(graph.Nodes),
		Edges:       len(graph.Edges),
		CacheHits:   graph.CacheHits,
		CacheMisses: graph.CacheMisses,
	}
	result := diagnostic.NewResult(diags, summary, s.opts.FailOn, graph.Incomplete)
	log.Printf("Scan finished: diagnostics=%d, passed=%v, incomplete=%v", len(result.Diagnostics), result.Passed, result.Incomplete)
	return result, nil
}

// RunAndReport runs a scan and hands the result to reporter.
func (s *Scanner) RunAndReport(ctx context.Context, reporter diagnostic.Reporter) (*diagnostic.ScanResult, error) {
	result, err := s.Run(ctx)
	if err != nil {
		return nil, err
	}
	if err := reporter.Emit(result); err != nil {
		return result, fmt.Errorf("failed to report results: %w", err)
	}
	return result, nil
}

// Root returns the absolute scan root.
func (s *Scanner) Root() string {
	return s.opts.Root
}
