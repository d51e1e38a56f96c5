package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"museflow/internal/fetch"
	"museflow/internal/format"
	"museflow/internal/genai"
	"museflow/internal/imagestore"
	"museflow/internal/ingest"
	"museflow/internal/inline"
	"museflow/internal/plan"
	"museflow/internal/resolve"
	"museflow/internal/style"
	"museflow/internal/token"
	"museflow/internal/version"
)

const (
	defaultWorkers    = 2
	defaultMaxRetries = 5
	defaultOutDir     = "out"
	storeFileName     = "images.db"
	summaryFileName   = "_summary.json"

	errorTypeRead    = "read_failed"
	errorTypeIngest  = "ingest_failed"
	errorTypeFormat  = "format_failed"
	errorTypeOutput  = "output_failed"
	errorTypeUnknown = "unknown"
)

type options struct {
	Model           string
	StyleName       string
	OutPath         string
	StorePath       string
	Attachments     []string
	Markdown        bool
	Illustrate      bool
	Cover           bool
	Inline          bool
	ShowVersion     bool
	Workers         int
	MaxRetries      int
	MaxTurns        int
	MaxOutputTokens int
	Temperature     float64
	FailFast        bool
	PriceConfig     string
	Timeout         time.Duration
	ShowHelp        bool
	Sources         []string
}

type outputPlan struct {
	outputDir  string
	singleFile string
	summaryDir string
}

type summaryItem struct {
	Source            string  `json:"source"`
	FinalURL          string  `json:"final_url,omitempty"`
	Success           bool    `json:"success"`
	DurationMS        int64   `json:"duration_ms"`
	OutputPath        string  `json:"output_path,omitempty"`
	Turns             int     `json:"turns,omitempty"`
	Complete          bool    `json:"complete"`
	Illustrations     int     `json:"illustrations,omitempty"`
	Cover             bool    `json:"cover,omitempty"`
	InputTokens       int64   `json:"input_tokens,omitempty"`
	OutputTokens      int64   `json:"output_tokens,omitempty"`
	TotalTokens       int64   `json:"total_tokens,omitempty"`
	MissingUsageCount int     `json:"missing_usage_count,omitempty"`
	CostEstimate      float64 `json:"cost_estimate,omitempty"`
	ErrorType         string  `json:"error_type,omitempty"`
	ErrorMessage      string  `json:"error_message,omitempty"`
}

type taskSummary struct {
	GeneratedAt       string        `json:"generated_at"`
	Model             string        `json:"model"`
	Style             string        `json:"style"`
	TotalSources      int           `json:"total_sources"`
	SuccessCount      int           `json:"success_count"`
	FailureCount      int           `json:"failure_count"`
	TotalDurationMS   int64         `json:"total_duration_ms"`
	InputTokens       int64         `json:"input_tokens,omitempty"`
	OutputTokens      int64         `json:"output_tokens,omitempty"`
	TotalTokens       int64         `json:"total_tokens,omitempty"`
	MissingUsageCount int           `json:"missing_usage_count,omitempty"`
	CostEstimate      float64       `json:"cost_estimate,omitempty"`
	CostEstimateModel string        `json:"cost_estimate_model,omitempty"`
	Results           []summaryItem `json:"results"`
}

type sourceOutput struct {
	finalURL      string
	outputPath    string
	turns         int
	complete      bool
	illustrations int
	cover         bool
	usage         usageStats
	costEstimate  float64
	costEstimated bool
}

type usageStats struct {
	inputTokens       int64
	outputTokens      int64
	totalTokens       int64
	missingUsageCount int
}

func (u *usageStats) addGenUsage(usage genai.Usage) {
	if usage.Available {
		u.inputTokens += usage.InputTokens
		u.outputTokens += usage.OutputTokens
		u.totalTokens += usage.TotalTokens
		return
	}
	u.missingUsageCount++
}

type priceConfig map[string]modelPrice

type modelPrice struct {
	InputPerMillion  float64 `json:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million"`
	TotalPerMillion  float64 `json:"total_per_million"`
}

type processError struct {
	errorType string
	usage     usageStats
	err       error
}

func (e *processError) Error() string {
	return e.err.Error()
}

func (e *processError) Unwrap() error {
	return e.err
}

func Run(args []string, stdout io.Writer, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if opts.ShowHelp {
		return nil
	}
	if opts.ShowVersion {
		_, _ = fmt.Fprintln(stdout, version.String())
		return nil
	}

	opts.Sources = normalizeSources(opts.Sources)
	if len(opts.Sources) == 0 {
		return errors.New("at least one source is required")
	}
	if len(opts.Attachments) > 0 && len(opts.Sources) > 1 {
		return errors.New("-attach requires a single source")
	}

	styleChoice, err := style.Parse(opts.StyleName)
	if err != nil {
		return err
	}

	apiKey := strings.TrimSpace(os.Getenv("MUSEFLOW_API_KEY"))
	if apiKey == "" {
		return errors.New("MUSEFLOW_API_KEY is required")
	}
	baseURL := strings.TrimSpace(os.Getenv("MUSEFLOW_BASE_URL"))
	httpClient := &http.Client{Timeout: opts.Timeout}

	prices, err := loadPriceConfig(opts.PriceConfig)
	if err != nil {
		return err
	}

	outPlan, err := buildOutputPlan(opts)
	if err != nil {
		return err
	}
	if err := prepareOutputPlan(outPlan); err != nil {
		return err
	}

	attachments, err := loadAttachments(opts.Attachments)
	if err != nil {
		return err
	}

	storePath := opts.StorePath
	if storePath == "" {
		storePath = filepath.Join(outPlan.summaryDir, storeFileName)
	}
	store, err := imagestore.Open(storePath)
	if err != nil {
		return err
	}
	defer store.Close()

	client := genai.NewClient(apiKey, baseURL, httpClient, opts.MaxRetries, stderr)
	runCtx, stopSignal := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignal()
	runStart := time.Now()

	pipe := &pipeline{
		httpClient:  httpClient,
		backend:     client,
		store:       store,
		opts:        opts,
		outPlan:     outPlan,
		attachments: attachments,
		styleChoice: styleChoice,
		prices:      prices,
		stdin:       os.Stdin,
		progress:    stderr,
	}

	results := pipe.processAll(runCtx, opts.Sources, stdout, stderr)

	summary := taskSummary{
		GeneratedAt:  runStart.UTC().Format(time.RFC3339),
		Model:        opts.Model,
		Style:        style.Name(styleChoice),
		TotalSources: len(opts.Sources),
		Results:      make([]summaryItem, 0, len(opts.Sources)),
	}

	for _, result := range results {
		if result.skipped {
			continue
		}

		item := summaryItem{Source: result.source, DurationMS: result.durationMS}
		if result.err != nil {
			errorType, errorMessage, failureUsage := errorDetails(result.err)
			item.ErrorType = errorType
			item.ErrorMessage = errorMessage
			item.InputTokens = failureUsage.inputTokens
			item.OutputTokens = failureUsage.outputTokens
			item.TotalTokens = failureUsage.totalTokens
			item.MissingUsageCount = failureUsage.missingUsageCount
			summary.FailureCount++
			summary.InputTokens += failureUsage.inputTokens
			summary.OutputTokens += failureUsage.outputTokens
			summary.TotalTokens += failureUsage.totalTokens
			summary.MissingUsageCount += failureUsage.missingUsageCount
			summary.Results = append(summary.Results, item)
			continue
		}

		output := result.output
		item.Success = true
		item.FinalURL = output.finalURL
		item.OutputPath = output.outputPath
		item.Turns = output.turns
		item.Complete = output.complete
		item.Illustrations = output.illustrations
		item.Cover = output.cover
		item.InputTokens = output.usage.inputTokens
		item.OutputTokens = output.usage.outputTokens
		item.TotalTokens = output.usage.totalTokens
		item.MissingUsageCount = output.usage.missingUsageCount
		if output.costEstimated {
			item.CostEstimate = output.costEstimate
			summary.CostEstimate += output.costEstimate
			summary.CostEstimateModel = opts.Model
		}
		summary.SuccessCount++
		summary.InputTokens += output.usage.inputTokens
		summary.OutputTokens += output.usage.outputTokens
		summary.TotalTokens += output.usage.totalTokens
		summary.MissingUsageCount += output.usage.missingUsageCount
		summary.Results = append(summary.Results, item)
	}

	summary.TotalDurationMS = time.Since(runStart).Milliseconds()

	if len(opts.Sources) > 1 {
		summaryPath := filepath.Join(outPlan.summaryDir, summaryFileName)
		if err := writeSummary(summaryPath, summary); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "Summary: %s\n", summaryPath)
	}

	_, _ = fmt.Fprintf(
		stdout,
		"Done: %d succeeded, %d failed, total %s\n",
		summary.SuccessCount,
		summary.FailureCount,
		time.Duration(summary.TotalDurationMS)*time.Millisecond,
	)

	if summary.InputTokens > 0 || summary.OutputTokens > 0 || summary.TotalTokens > 0 {
		_, _ = fmt.Fprintf(
			stdout,
			"Usage: input=%d output=%d total=%d tokens\n",
			summary.InputTokens,
			summary.OutputTokens,
			summary.TotalTokens,
		)
	}
	if summary.MissingUsageCount > 0 {
		_, _ = fmt.Fprintf(
			stderr,
			"Usage info missing for %d request(s); totals may be partial.\n",
			summary.MissingUsageCount,
		)
	}
	if summary.CostEstimateModel != "" {
		_, _ = fmt.Fprintf(stdout, "Estimated cost (%s): $%.6f\n", summary.CostEstimateModel, summary.CostEstimate)
	}

	if summary.FailureCount > 0 {
		return fmt.Errorf("%d source(s) failed", summary.FailureCount)
	}
	return nil
}

type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("museflow", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := options{}
	var attachments stringList
	fs.StringVar(&opts.Model, "model", "gemini-2.5-flash", "Generation model name")
	fs.StringVar(&opts.StyleName, "style", string(style.Default), "Formatting style: "+strings.Join(style.Names(), ", "))
	fs.StringVar(&opts.OutPath, "out", "", "Output path: file for single source, directory for multiple sources (default: ./out/)")
	fs.StringVar(&opts.StorePath, "store", "", "Image store path (default: <output dir>/"+storeFileName+")")
	fs.Var(&attachments, "attach", "Image file backing unfetchable image references; repeatable")
	fs.BoolVar(&opts.Markdown, "markdown", false, "Structure-preserving markdown ingestion for HTML sources")
	fs.BoolVar(&opts.Illustrate, "illustrate", false, "Plan and insert AI illustrations into the formatted article")
	fs.BoolVar(&opts.Cover, "cover", false, "Generate a 16:9 AI cover image at the top of the formatted article")
	fs.BoolVar(&opts.Inline, "inline", false, "Embed image bytes as data URIs for a self-contained document")
	fs.BoolVar(&opts.ShowVersion, "version", false, "Print version information and exit")
	fs.IntVar(&opts.Workers, "workers", defaultWorkers, "Concurrent source count")
	fs.IntVar(&opts.MaxRetries, "max-retries", defaultMaxRetries, "Maximum retries for generation requests")
	fs.IntVar(&opts.MaxTurns, "max-turns", format.DefaultMaxTurns, "Maximum continuation turns per document")
	fs.IntVar(&opts.MaxOutputTokens, "max-output-tokens", 0, "Output token cap per turn (0 uses the backend default)")
	fs.Float64Var(&opts.Temperature, "temperature", 0.3, "Generation temperature")
	fs.BoolVar(&opts.FailFast, "fail-fast", false, "Stop at first source failure (default: continue for partial success)")
	fs.StringVar(&opts.PriceConfig, "price-config", "", "Optional JSON pricing config file for cost estimation")
	fs.DurationVar(&opts.Timeout, "timeout", 90*time.Second, "HTTP timeout, e.g. 120s")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: museflow [flags] <source> [source...]")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "A source is a file path, a URL, or - for stdin.")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Example:")
		fmt.Fprintln(stderr, "  museflow -style zen draft.md")
		fmt.Fprintln(stderr, "")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			opts.ShowHelp = true
			return opts, nil
		}
		return options{}, err
	}
	opts.Attachments = attachments
	if opts.Timeout <= 0 {
		return options{}, errors.New("--timeout must be positive")
	}
	if opts.Workers <= 0 {
		return options{}, errors.New("--workers must be greater than 0")
	}
	if opts.MaxRetries < 0 {
		return options{}, errors.New("--max-retries must be 0 or greater")
	}
	if opts.MaxTurns <= 0 {
		return options{}, errors.New("--max-turns must be greater than 0")
	}

	opts.Sources = fs.Args()
	if opts.ShowVersion {
		return opts, nil
	}
	if len(opts.Sources) == 0 {
		fs.Usage()
		return options{}, errors.New("at least one source is required")
	}

	return opts, nil
}

func normalizeSources(sources []string) []string {
	out := make([]string, 0, len(sources))
	for _, raw := range sources {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func loadAttachments(paths []string) ([]ingest.Attachment, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	attachments := make([]ingest.Attachment, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", path, err)
		}
		attachments = append(attachments, ingest.Attachment{
			Name: filepath.Base(path),
			Data: data,
		})
	}
	return attachments, nil
}

func buildOutputPlan(opts options) (outputPlan, error) {
	if opts.OutPath == "" {
		return outputPlan{
			outputDir:  defaultOutDir,
			summaryDir: defaultOutDir,
		}, nil
	}

	if len(opts.Sources) == 1 {
		return outputPlan{
			singleFile: opts.OutPath,
			summaryDir: filepath.Dir(opts.OutPath),
		}, nil
	}

	return outputPlan{
		outputDir:  opts.OutPath,
		summaryDir: opts.OutPath,
	}, nil
}

func prepareOutputPlan(plan outputPlan) error {
	if plan.outputDir != "" {
		if err := os.MkdirAll(plan.outputDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	if plan.singleFile != "" {
		dir := filepath.Dir(plan.singleFile)
		if dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
		}
	}

	if plan.summaryDir != "" && plan.summaryDir != "." {
		if err := os.MkdirAll(plan.summaryDir, 0o755); err != nil {
			return fmt.Errorf("create summary directory: %w", err)
		}
	}

	return nil
}

func loadPriceConfig(path string) (priceConfig, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price config %s: %w", path, err)
	}

	var cfg priceConfig
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse price config %s: %w", path, err)
	}

	return cfg, nil
}

func estimateCost(usage usageStats, cfg priceConfig, model string) (float64, bool) {
	if cfg == nil {
		return 0, false
	}

	price, ok := cfg[model]
	if !ok {
		price, ok = cfg["default"]
		if !ok {
			return 0, false
		}
	}

	if price.InputPerMillion > 0 || price.OutputPerMillion > 0 {
		cost := float64(usage.inputTokens)*price.InputPerMillion/1_000_000.0 +
			float64(usage.outputTokens)*price.OutputPerMillion/1_000_000.0
		return cost, true
	}
	if price.TotalPerMillion > 0 {
		return float64(usage.totalTokens) * price.TotalPerMillion / 1_000_000.0, true
	}
	return 0, false
}

type pipeline struct {
	httpClient  *http.Client
	backend     format.Backend
	store       *imagestore.Store
	opts        options
	outPlan     outputPlan
	attachments []ingest.Attachment
	styleChoice style.Style
	prices      priceConfig
	stdin       io.Reader
	progress    io.Writer
}

type sourceTask struct {
	index  int
	source string
}

type sourceResult struct {
	source     string
	durationMS int64
	output     sourceOutput
	err        error
	skipped    bool
}

// processAll runs the sources through a bounded worker pool and returns
// results in input order. Sources cancelled by fail-fast come back skipped.
func (p *pipeline) processAll(ctx context.Context, sources []string, stdout, stderr io.Writer) []sourceResult {
	workerCount := p.opts.Workers
	if workerCount > len(sources) {
		workerCount = len(sources)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type indexedResult struct {
		index  int
		result sourceResult
	}

	jobs := make(chan sourceTask)
	done := make(chan indexedResult, len(sources))

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range jobs {
				if runCtx.Err() != nil {
					return
				}

				started := time.Now()
				output, err := p.processSource(runCtx, task.source)
				done <- indexedResult{
					index: task.index,
					result: sourceResult{
						source:     task.source,
						durationMS: time.Since(started).Milliseconds(),
						output:     output,
						err:        err,
					},
				}
				if err != nil && p.opts.FailFast {
					cancel()
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for idx, source := range sources {
			select {
			case <-runCtx.Done():
				return
			case jobs <- sourceTask{index: idx, source: source}:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	results := make([]sourceResult, len(sources))
	for idx, source := range sources {
		results[idx] = sourceResult{source: source, skipped: true}
	}

	for indexed := range done {
		result := indexed.result
		result.skipped = false
		results[indexed.index] = result

		if result.err != nil {
			errorType, errorMessage, _ := errorDetails(result.err)
			_, _ = fmt.Fprintf(stderr, "Failed [%s]: %s (%s)\n", errorType, compactSource(result.source), errorMessage)
			if p.opts.FailFast {
				_, _ = fmt.Fprintln(stderr, "Fail-fast enabled: stop after first failure.")
			}
			continue
		}
		_, _ = fmt.Fprintf(stdout, "Output: %s\n", result.output.outputPath)
	}

	return results
}

// processSource runs the full pipeline for one source: read, ingest to
// token-bearing text, compress tokens, format through the continuation
// protocol, optionally illustrate, resolve tokens to image blocks, optionally
// inline image bytes, and write the output file.
func (p *pipeline) processSource(ctx context.Context, source string) (sourceOutput, error) {
	payload, finalURL, err := p.readSource(ctx, source)
	if err != nil {
		return sourceOutput{}, newProcessError(errorTypeRead, fmt.Errorf("read %s: %w", compactSource(source), err))
	}

	registry := token.NewRegistry()
	objectURLs := imagestore.NewObjectURLs()
	normalizer := &ingest.Normalizer{
		Registry: registry,
		Store:    p.store,
		URLs:     objectURLs,
		Progress: p.progress,
	}

	var text string
	if p.opts.Markdown {
		text, err = normalizer.NormalizeMarkdown(payload)
		if err != nil {
			return sourceOutput{}, newProcessError(errorTypeIngest, fmt.Errorf("ingest %s: %w", compactSource(source), err))
		}
	} else {
		text = normalizer.Normalize(payload)
	}
	if strings.TrimSpace(text) == "" {
		return sourceOutput{}, newProcessError(errorTypeIngest, errors.New("no content after ingestion"))
	}
	text = token.Compress(text, registry)

	driver := &format.Driver{
		Backend:         p.backend,
		Model:           p.opts.Model,
		Temperature:     p.opts.Temperature,
		MaxOutputTokens: p.opts.MaxOutputTokens,
		MaxTurns:        p.opts.MaxTurns,
		Progress:        p.progress,
	}
	result, err := driver.Format(ctx, style.Instruction(p.styleChoice), text)
	if err != nil {
		return sourceOutput{}, newProcessError(errorTypeFormat, fmt.Errorf("format %s: %w", compactSource(source), err))
	}

	usage := usageStats{}
	usage.addGenUsage(result.Usage)
	if !result.Complete {
		_, _ = fmt.Fprintf(p.progress, "Format: incomplete after %d turn(s) for %s\n", result.Turns, compactSource(source))
	}

	html := result.HTML
	illustrations := 0
	cover := false
	if p.opts.Illustrate || p.opts.Cover {
		planner := &plan.Planner{Backend: p.backend, Progress: p.progress}
		if p.opts.Illustrate {
			illustrated, added, err := planner.Illustrate(ctx, html, text)
			if err != nil {
				// The formatted document is still usable without illustrations.
				_, _ = fmt.Fprintf(p.progress, "Illustrate %s: %v\n", compactSource(source), err)
			} else {
				html = illustrated
				illustrations = added
			}
		}
		if p.opts.Cover {
			covered, err := planner.Cover(ctx, html, text)
			if err != nil {
				_, _ = fmt.Fprintf(p.progress, "Cover %s: %v\n", compactSource(source), err)
			} else {
				html = covered
				cover = true
			}
		}
	}

	resolver := &resolve.Resolver{
		Registry: registry,
		Store:    p.store,
		URLs:     objectURLs,
		Style:    p.styleChoice,
		Progress: p.progress,
	}
	html = resolver.Resolve(html)

	if p.opts.Inline {
		inliner := &inline.Inliner{
			Store:    p.store,
			Progress: p.progress,
			Fetch: func(ctx context.Context, rawURL string) ([]byte, string, error) {
				return fetch.Image(ctx, p.httpClient, rawURL)
			},
		}
		html = inliner.Inline(ctx, html)
	}

	cost, costEstimated := estimateCost(usage, p.prices, p.opts.Model)

	outPath, err := outputPathForSource(p.outPlan, source)
	if err != nil {
		return sourceOutput{}, newProcessErrorWithUsage(errorTypeOutput, err, usage)
	}
	if err := os.WriteFile(outPath, []byte(html), 0o644); err != nil {
		return sourceOutput{}, newProcessErrorWithUsage(errorTypeOutput, fmt.Errorf("write output file %s: %w", outPath, err), usage)
	}

	return sourceOutput{
		finalURL:      finalURL,
		outputPath:    outPath,
		turns:         result.Turns,
		complete:      result.Complete,
		illustrations: illustrations,
		cover:         cover,
		usage:         usage,
		costEstimate:  cost,
		costEstimated: costEstimated,
	}, nil
}

func (p *pipeline) readSource(ctx context.Context, source string) (ingest.Payload, string, error) {
	payload := ingest.Payload{Attachments: p.attachments}

	switch {
	case source == "-":
		data, err := io.ReadAll(p.stdin)
		if err != nil {
			return ingest.Payload{}, "", fmt.Errorf("read stdin: %w", err)
		}
		payload.Text = string(data)
		return payload, "", nil

	case isRemote(source):
		doc, err := fetch.HTML(ctx, p.httpClient, source)
		if err != nil {
			return ingest.Payload{}, "", err
		}
		payload.HTML = doc.HTML
		return payload, doc.FinalURL, nil

	default:
		data, err := os.ReadFile(source)
		if err != nil {
			return ingest.Payload{}, "", err
		}
		if isHTMLFile(source) {
			payload.HTML = string(data)
		} else {
			payload.Text = string(data)
		}
		return payload, "", nil
	}
}

func isRemote(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func isHTMLFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return true
	default:
		return false
	}
}

func outputPathForSource(plan outputPlan, source string) (string, error) {
	if plan.singleFile != "" {
		return plan.singleFile, nil
	}

	filename, err := filenameFromSource(source)
	if err != nil {
		return "", err
	}
	return filepath.Join(plan.outputDir, filename), nil
}

func filenameFromSource(source string) (string, error) {
	if source == "-" {
		return "stdin.html", nil
	}

	base := source
	if isRemote(source) {
		parsed, err := url.Parse(source)
		if err != nil || parsed.Host == "" {
			return "", fmt.Errorf("invalid URL: %s", source)
		}
		base = parsed.Host + parsed.Path
		if parsed.RawQuery != "" {
			base += "_" + parsed.RawQuery
		}
	} else {
		base = strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	}

	base = strings.ReplaceAll(base, "/", "_")
	base = sanitizeFilename(base)
	base = strings.Trim(base, "_")
	if base == "" {
		base = "output"
	}
	return base + ".html", nil
}

func sanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false

	for _, r := range s {
		allowed := (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '.' || r == '-' || r == '_'

		if allowed {
			b.WriteRune(r)
			lastUnderscore = r == '_'
			continue
		}

		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	return b.String()
}

func compactSource(source string) string {
	if !isRemote(source) {
		return source
	}

	parsed, err := url.Parse(source)
	if err != nil || parsed.Host == "" {
		return source
	}

	path := strings.TrimSuffix(parsed.Path, "/")
	if path == "" {
		return parsed.Host
	}
	return parsed.Host + path
}

func writeSummary(path string, summary taskSummary) error {
	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary JSON: %w", err)
	}
	payload = append(payload, '\n')
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write summary file %s: %w", path, err)
	}
	return nil
}

func newProcessError(errorType string, err error) error {
	return newProcessErrorWithUsage(errorType, err, usageStats{})
}

func newProcessErrorWithUsage(errorType string, err error, usage usageStats) error {
	if err == nil {
		return nil
	}
	return &processError{
		errorType: errorType,
		usage:     usage,
		err:       err,
	}
}

func errorDetails(err error) (string, string, usageStats) {
	if err == nil {
		return "", "", usageStats{}
	}

	var stageErr *processError
	if errors.As(err, &stageErr) {
		return stageErr.errorType, stageErr.err.Error(), stageErr.usage
	}
	return errorTypeUnknown, err.Error(), usageStats{}
}
