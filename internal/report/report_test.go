package report_test

import (
	"bytes"
	"encoding/json"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalnine/sfmbench/internal/report"
	"github.com/signalnine/sfmbench/internal/result"
)

func writeResults(t *testing.T) string {
	t.Helper()
	c := result.NewCorpus()
	c.Record("castle", result.Timings{"camera-init": 1, "pose-estimation": 3}, map[string]result.StatisticBlock{
		result.BaselineBlock: {"min": 0, "max": 1, "mean": 0.2, "median": 0.1},
		result.AngularBlock:  {"min": 0, "max": 1, "mean": 0.5, "median": 0.4},
	})
	c.Record("fountain", result.Timings{"camera-init": 2, "pose-estimation": 5}, map[string]result.StatisticBlock{
		result.BaselineBlock: {"min": 0, "max": 1, "mean": 0.4, "median": 0.3},
	})
	c.RecordFailure("herzjesu", result.Timings{"camera-init": 1}, &result.Failure{Kind: result.FailureStage, Stage: "feature-matching", ExitCode: 1})
	path := filepath.Join(t.TempDir(), "results.json")
	if err := result.WriteFile(path, c); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGenerateTable(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Generate(writeResults(t), "table", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	output := buf.String()
	for _, want := range []string{"castle", "fountain", "herzjesu", "failed: feature-matching", "2 ok, 1 failed"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestGenerateMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Generate(writeResults(t), "markdown", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Errorf("expected header, separator and 3 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "| Dataset |") {
		t.Errorf("unexpected header %q", lines[0])
	}
}

func TestGenerateJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Generate(writeResults(t), "json", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var s report.Summary
	if err := json.Unmarshal(buf.Bytes(), &s); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if s.Failed != 1 || len(s.Datasets) != 3 {
		t.Errorf("unexpected summary: failed=%d datasets=%d", s.Failed, len(s.Datasets))
	}
}

func TestSummarize(t *testing.T) {
	c, err := result.ReadFile(writeResults(t))
	if err != nil {
		t.Fatal(err)
	}
	s := report.Summarize(c)
	if s.BaselineMean.Count != 2 || math.Abs(s.BaselineMean.Mean-0.3) > 1e-9 || s.BaselineMean.Max != 0.4 {
		t.Errorf("baseline aggregate: %+v", s.BaselineMean)
	}
	if s.AngularMean.Count != 1 || s.AngularMean.Median != 0.5 {
		t.Errorf("angular aggregate: %+v", s.AngularMean)
	}
	if s.TotalSeconds.Mean != 5.5 {
		t.Errorf("total seconds mean: got %v, want 5.5", s.TotalSeconds.Mean)
	}
	if s.StageMeanTimes["camera-init"] != 4.0/3 {
		t.Errorf("camera-init mean: got %v", s.StageMeanTimes["camera-init"])
	}
}

func TestGenerateErrors(t *testing.T) {
	if err := report.Generate(filepath.Join(t.TempDir(), "missing.json"), "table", &bytes.Buffer{}); err == nil {
		t.Error("expected error for missing results")
	}
	if err := report.Generate(writeResults(t), "csv", &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown format")
	}
}
