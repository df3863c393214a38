package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/origin-cli/internal/model"
	"github.com/sells-group/origin-cli/internal/sheet"
)

var (
	batchLimit       int
	batchConcurrency int
	batchJSON        bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <file|dir>...",
	Short: "Analyze many costing sheets concurrently",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if batchConcurrency > 0 {
			cfg.Batch.MaxConcurrentCases = batchConcurrency
		}
		env, err := initEnv(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		paths, err := collectSheets(args)
		if err != nil {
			return err
		}

		results, err := processBatch(ctx, paths, batchLimit, cfg.Batch.MaxConcurrentCases, func(ctx context.Context, path string) (*model.AnalysisCase, error) {
			return analyzeFile(ctx, env, path)
		})
		if err != nil {
			return err
		}
		if batchJSON {
			return printJSON(cmd.OutOrStdout(), results)
		}
		printBatch(cmd.OutOrStdout(), results)
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of files to process")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "cases analyzed in parallel (default from config)")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(batchCmd)
}

// collectSheets expands directories into the accepted sheet files they
// contain, sorted by path. Explicit file arguments are kept as given.
func collectSheets(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: stat %s", arg)
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: read dir %s", arg)
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && sheet.Allowed(e.Name()) {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

// analyzeFunc is the callback signature for analyzing one sheet.
type analyzeFunc func(ctx context.Context, path string) (*model.AnalysisCase, error)

// batchResult is the outcome for one file.
type batchResult struct {
	Path    string        `json:"path"`
	CaseID  string        `json:"case_id,omitempty"`
	Verdict model.Verdict `json:"result,omitempty"`
	Reason  string        `json:"reason,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// processBatch applies limit, then analyzes paths concurrently. A failed
// file is recorded in its result and does not abort the batch. Results
// keep the order of paths.
func processBatch(ctx context.Context, paths []string, limit, concurrency int, analyze analyzeFunc) ([]batchResult, error) {
	if len(paths) == 0 {
		zap.L().Info("no costing sheets found")
		return nil, nil
	}
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("files", len(paths)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var (
		mu                sync.Mutex
		succeeded, failed atomic.Int64
	)
	results := make([]batchResult, len(paths))

	for i, path := range paths {
		g.Go(func() error {
			log := zap.L().With(zap.String("file", path))
			res := batchResult{Path: path}

			c, err := analyze(gctx, path)
			if err != nil {
				failed.Add(1)
				log.Error("analysis failed", zap.Error(err))
				res.Error = err.Error()
			} else {
				succeeded.Add(1)
				res.CaseID = c.ID
				res.Verdict = c.Verdict
				res.Reason = c.Reason
				log.Info("analysis complete", zap.String("case_id", c.ID), zap.String("verdict", string(c.Verdict)))
			}

			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil // don't abort batch on individual failure
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return results, nil
}
