package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"avifopt/animation"
	"avifopt/logger"
	"avifopt/metrics"
)

// route is how a source file is handled.
type route int

const (
	routeSkip route = iota
	routeMedia
	routePNG
	routeSVG
)

func (r route) String() string {
	switch r {
	case routeMedia:
		return "avif"
	case routePNG:
		return "png"
	case routeSVG:
		return "svg"
	default:
		return "skip"
	}
}

// Job is one source file and where its result goes.
type Job struct {
	Source string
	Output string
	Route  route
}

type Processor struct {
	Console    *logger.Console
	NumWorkers int
	QueueSize  int

	OutputDir   string
	ClearOutput bool
	ConvertPNG  bool
	// Exclude holds directories never walked, such as the output directory
	// when it lives inside the input tree.
	Exclude []string

	Pipeline *animation.Pipeline
	PNG      animation.StillEncoder
	SVG      animation.StillEncoder

	Metrics     *metrics.Recorder
	MetricsFile string
}

type ProcessStats struct {
	mu                  sync.Mutex
	TotalOriginalSize   int64
	TotalCompressedSize int64
	TotalFiles          int
	ProcessedFiles      int
	ConvertedFiles      int
	FallbackFiles       int
	SkippedFiles        int
	FailedFiles         int
}

func (s *ProcessStats) record(res animation.Result, originalSize int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ProcessedFiles++
	switch res.Outcome {
	case animation.OutcomeConverted:
		s.ConvertedFiles++
	case animation.OutcomeFallback:
		s.FallbackFiles++
	case animation.OutcomeSkipped:
		s.SkippedFiles++
		return
	default:
		s.FailedFiles++
		return
	}
	s.TotalOriginalSize += originalSize
	s.TotalCompressedSize += res.Size
}

// planJob routes src by extension and mirrors its position relative to
// root under the output directory.
func (p *Processor) planJob(root, src string) Job {
	job := Job{Source: src}

	var ext string
	switch kind := animation.KindFromPath(src); kind {
	case animation.KindAVIF, animation.KindGIF, animation.KindMP4, animation.KindJPEG, animation.KindWebP:
		job.Route, ext = routeMedia, animation.OutputExt
	case animation.KindPNG:
		if p.ConvertPNG {
			job.Route, ext = routeMedia, animation.OutputExt
		} else {
			job.Route, ext = routePNG, ".png"
		}
	case animation.KindSVG:
		job.Route, ext = routeSVG, ".svg"
	default:
		return job
	}

	rel, err := filepath.Rel(root, filepath.Dir(src))
	if err != nil || escapes(rel) {
		rel = "."
	}
	job.Output = animation.OutputPath(filepath.Join(p.OutputDir, rel), src, ext)
	return job
}

// ProcessPath converts a single file or every file below a directory.
func (p *Processor) ProcessPath(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path validation error: %w", err)
	}

	if info.IsDir() {
		_, err := p.ProcessDirectory(ctx, path)
		return err
	}
	return p.ProcessSingleFile(ctx, path)
}

func (p *Processor) ProcessDirectory(ctx context.Context, dirPath string) (*ProcessStats, error) {
	p.Console.Info("Processing directory: %s → %s (workers: %d)", dirPath, p.OutputDir, p.NumWorkers)

	if p.ClearOutput {
		if err := clearOutputDir(dirPath, p.OutputDir); err != nil {
			return nil, err
		}
	}

	files, err := p.collectFiles(dirPath)
	if err != nil {
		return nil, fmt.Errorf("file collection error: %w", err)
	}
	if len(files) == 0 {
		p.Console.Warn("No files found to process")
		return &ProcessStats{}, nil
	}

	stats := p.ProcessFiles(ctx, dirPath, files)
	p.displayResults(stats)
	p.writeMetrics()

	if stats.FailedFiles > 0 {
		return stats, fmt.Errorf("%d of %d files failed", stats.FailedFiles, stats.TotalFiles)
	}
	return stats, ctx.Err()
}

// ProcessFiles runs files (all below root) through the worker pool.
func (p *Processor) ProcessFiles(ctx context.Context, root string, files []string) *ProcessStats {
	p.Console.Info("Starting batch processing of %d files", len(files))

	jobs := make([]Job, len(files))
	for i, f := range files {
		jobs[i] = p.planJob(root, f)
	}

	stats := &ProcessStats{TotalFiles: len(jobs)}
	p.processFilesParallel(ctx, jobs, stats)
	return stats
}

func (p *Processor) collectFiles(dirPath string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dirPath && p.excluded(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error while exploring directory: %w", err)
	}

	return files, nil
}

func (p *Processor) excluded(dir string) bool {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	for _, ex := range p.Exclude {
		if exAbs, err := filepath.Abs(ex); err == nil && exAbs == abs {
			return true
		}
	}
	return false
}

func (p *Processor) processFilesParallel(ctx context.Context, jobs []Job, stats *ProcessStats) {
	queueSize := min(p.QueueSize, len(jobs))
	queue := make(chan Job, max(queueSize, 1))

	workers := max(p.NumWorkers, 1)

	bar := p.Console.NewProgressBar(len(jobs), "Converting")

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go p.worker(ctx, w, queue, stats, &wg, bar)
	}

	go func() {
		defer close(queue)
		for _, job := range jobs {
			select {
			case <-ctx.Done():
				return
			case queue <- job:
			}
		}
	}()

	wg.Wait()
	bar.Complete()
}

func (p *Processor) worker(ctx context.Context, id int, jobs <-chan Job, stats *ProcessStats,
	wg *sync.WaitGroup, bar *logger.ProgressBar) {
	defer wg.Done()

	for job := range jobs {
		if ctx.Err() != nil {
			return
		}

		res, origSize, err := p.processJob(ctx, job)

		stats.record(res, origSize)
		p.reportOutcome(id, job, res, origSize, err)
		bar.Step(res.Outcome == animation.OutcomeFailed)
	}
}

// processJob converts one file. Failures are confined to the returned
// Result and error.
func (p *Processor) processJob(ctx context.Context, job Job) (animation.Result, int64, error) {
	res := animation.Result{Source: job.Source, Output: job.Output, Outcome: animation.OutcomeSkipped}
	if job.Route == routeSkip {
		p.Metrics.CountAsset(string(res.Outcome))
		return res, 0, nil
	}

	info, err := os.Stat(job.Source)
	if err != nil {
		res.Outcome = animation.OutcomeFailed
		p.Metrics.CountAsset(string(res.Outcome))
		return res, 0, fmt.Errorf("failed to get file info: %w", err)
	}
	origSize := info.Size()

	switch job.Route {
	case routeMedia:
		res, err = p.Pipeline.Process(ctx, animation.NewAsset(job.Source), job.Output)
	case routePNG:
		res, err = encodeStill(ctx, p.PNG, job)
	case routeSVG:
		res, err = encodeStill(ctx, p.SVG, job)
	}

	p.Metrics.CountAsset(string(res.Outcome))
	if err == nil {
		p.Metrics.AddBytes(origSize, res.Size)
	}
	return res, origSize, err
}

func encodeStill(ctx context.Context, enc animation.StillEncoder, job Job) (animation.Result, error) {
	start := time.Now()
	res := animation.Result{Source: job.Source, Output: job.Output, Outcome: animation.OutcomeFailed}

	if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
		return res, fmt.Errorf("create output directory: %w", err)
	}
	if err := enc.Encode(ctx, job.Source, job.Output); err != nil {
		return res, err
	}

	info, err := os.Stat(job.Output)
	if err != nil {
		return res, fmt.Errorf("stat output: %w", err)
	}

	res.Outcome = animation.OutcomeConverted
	res.Size = info.Size()
	res.FramesIn, res.FramesOut = 1, 1
	res.Duration = time.Since(start)
	return res, nil
}

func (p *Processor) reportOutcome(worker int, job Job, res animation.Result, origSize int64, err error) {
	name := filepath.Base(job.Source)
	attrs := []any{"worker", worker + 1, "outcome", string(res.Outcome)}

	switch res.Outcome {
	case animation.OutcomeSkipped:
		p.Console.Outcome(slog.LevelInfo, "skipped (unsupported) "+name, attrs...)
	case animation.OutcomeFailed:
		attrs = append(attrs, "error", err)
		p.Console.Outcome(slog.LevelError, "failed "+name, attrs...)
	default:
		attrs = append(attrs, "route", job.Route.String(), "size_in", origSize, "size_out", res.Size,
			"took", res.Duration.Round(time.Millisecond))
		if res.Animated {
			attrs = append(attrs, "frames_in", res.FramesIn, "frames_out", res.FramesOut,
				"strategy", res.Strategy.String())
		}
		if res.Outcome == animation.OutcomeFallback {
			p.Console.Outcome(slog.LevelWarn, "converted via fallback "+name, attrs...)
			return
		}
		p.Console.Outcome(slog.LevelInfo, "converted "+name, attrs...)
	}
}

func (p *Processor) displayResults(stats *ProcessStats) {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	var ratio float64
	if stats.TotalOriginalSize > 0 {
		ratio = float64(stats.TotalCompressedSize) / float64(stats.TotalOriginalSize) * 100
	}

	table := p.Console.NewTable([]string{"Metric", "Value"})
	table.AddRow("Processed files", fmt.Sprintf("%d/%d", stats.ProcessedFiles, stats.TotalFiles))
	table.AddRow("Converted", fmt.Sprintf("%d", stats.ConvertedFiles))
	table.AddRow("Fallbacks", fmt.Sprintf("%d", stats.FallbackFiles))
	table.AddRow("Skipped", fmt.Sprintf("%d", stats.SkippedFiles))
	table.AddRow("Failed files", fmt.Sprintf("%d", stats.FailedFiles))
	table.AddRow("Original size", fmt.Sprintf("%.2f MB", float64(stats.TotalOriginalSize)/1024/1024))
	table.AddRow("Compressed size", fmt.Sprintf("%.2f MB", float64(stats.TotalCompressedSize)/1024/1024))
	table.AddRow("Compression ratio", fmt.Sprintf("%.1f%%", ratio))

	if stats.TotalOriginalSize > stats.TotalCompressedSize {
		saved := stats.TotalOriginalSize - stats.TotalCompressedSize
		table.AddRow("Space saved", fmt.Sprintf("%.2f MB", float64(saved)/1024/1024))
	}

	p.Console.Info("Processing Summary:")
	table.Print()
}

func (p *Processor) writeMetrics() {
	if err := p.Metrics.WriteTextfile(p.MetricsFile); err != nil {
		p.Console.Warn("Could not write metrics: %v", err)
	}
}

func (p *Processor) ProcessSingleFile(ctx context.Context, filePath string) error {
	p.Console.Info("Processing file: %s", filePath)

	timer := p.Console.StartTimer("File conversion")

	job := p.planJob(filepath.Dir(filePath), filePath)
	res, origSize, err := p.processJob(ctx, job)
	p.reportOutcome(0, job, res, origSize, err)
	p.writeMetrics()
	if err != nil {
		return fmt.Errorf("file processing error: %w", err)
	}
	if res.Outcome == animation.OutcomeSkipped {
		return nil
	}

	duration := timer.End()

	var ratio float64
	if origSize > 0 {
		ratio = float64(res.Size) / float64(origSize) * 100
	}
	p.Console.Success("Wrote %s", job.Output)
	p.Console.Info("Compression ratio: %.1f%% (%d KB → %d KB) in %v",
		ratio, origSize/1024, res.Size/1024, duration.Round(time.Millisecond))

	return nil
}

// errUnsafeClear guards against wiping the sources.
var errUnsafeClear = errors.New("refusing to clear output directory")

// clearOutputDir empties outputDir, creating it when missing. It refuses
// when outputDir is the input directory or one of its ancestors.
func clearOutputDir(inputDir, outputDir string) error {
	in, err := filepath.Abs(inputDir)
	if err != nil {
		return err
	}
	out, err := filepath.Abs(outputDir)
	if err != nil {
		return err
	}

	if rel, err := filepath.Rel(out, in); err == nil && !escapes(rel) {
		return fmt.Errorf("%w: %s contains the input %s", errUnsafeClear, out, in)
	}

	entries, err := os.ReadDir(out)
	if errors.Is(err, fs.ErrNotExist) {
		return os.MkdirAll(out, 0o755)
	}
	if err != nil {
		return fmt.Errorf("read output directory: %w", err)
	}

	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(out, e.Name())); err != nil {
			return fmt.Errorf("clear output directory: %w", err)
		}
	}
	return nil
}

// escapes reports whether a relative path leads outside its base.
func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
