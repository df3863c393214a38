package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/origin-cli/internal/model"
)

func fakeAnalyze(fail map[string]bool, calls *atomic.Int64) analyzeFunc {
	return func(_ context.Context, path string) (*model.AnalysisCase, error) {
		calls.Add(1)
		if fail[path] {
			return nil, errors.New("load failed")
		}
		return &model.AnalysisCase{
			ID:      "case-" + filepath.Base(path),
			Verdict: model.VerdictOriginating,
			Reason:  "ok",
		}, nil
	}
}

func TestProcessBatch_Empty(t *testing.T) {
	results, err := processBatch(context.Background(), nil, 10, 2, func(context.Context, string) (*model.AnalysisCase, error) {
		t.Fatal("analyze should not be called for an empty batch")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestProcessBatch_KeepsOrderAndRecordsFailures(t *testing.T) {
	var calls atomic.Int64
	paths := []string{"a.csv", "b.csv", "c.csv", "d.csv"}

	results, err := processBatch(context.Background(), paths, 0, 3, fakeAnalyze(map[string]bool{"b.csv": true}, &calls))
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, int64(4), calls.Load())

	for i, r := range results {
		assert.Equal(t, paths[i], r.Path)
	}
	assert.Equal(t, "load failed", results[1].Error)
	assert.Empty(t, results[1].CaseID)
	assert.Equal(t, "case-c.csv", results[2].CaseID)
	assert.Equal(t, model.VerdictOriginating, results[2].Verdict)
}

func TestProcessBatch_Limit(t *testing.T) {
	var calls atomic.Int64
	results, err := processBatch(context.Background(), []string{"a.csv", "b.csv", "c.csv"}, 2, 0, fakeAnalyze(nil, &calls))
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, int64(2), calls.Load())
}

func TestCollectSheets(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.xlsx", "a.csv", "notes.txt", "c.xls"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755))

	single := filepath.Join(t.TempDir(), "one.csv")
	require.NoError(t, os.WriteFile(single, []byte("x"), 0o644))

	paths, err := collectSheets([]string{dir, single})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.csv"),
		filepath.Join(dir, "b.xlsx"),
		filepath.Join(dir, "c.xls"),
		single,
	}, paths)
}

func TestCollectSheets_Missing(t *testing.T) {
	_, err := collectSheets([]string{filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)
}

func TestPrintBatch(t *testing.T) {
	var buf bytes.Buffer
	printBatch(&buf, []batchResult{
		{Path: "a.csv", CaseID: "c1", Verdict: model.VerdictNonOriginating, Reason: "too much"},
		{Path: "b.csv", Error: "boom"},
	})
	out := buf.String()
	assert.Contains(t, out, "NON ORIGINATING")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "boom")

	buf.Reset()
	printBatch(&buf, nil)
	assert.Equal(t, "no costing sheets processed\n", buf.String())
}
