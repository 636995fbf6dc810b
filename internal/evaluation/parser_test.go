package evaluation_test

import (
	"bufio"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/signalnine/sfmbench/internal/evaluation"
	"github.com/signalnine/sfmbench/internal/result"
)

// Output shaped like openMVG_main_evalQuality.
const canonical = `
Baseline error statistics :
--
	 min: 0.000219
	 max: 0.0329
	 mean: 0.00597
	 median: 0.00323

Angular error statistics :
--
	 min: 0.0046
	 max: 0.1502
	 mean: 0.0513
	 median: 0.0402
`

func TestParseCanonical(t *testing.T) {
	rep, err := evaluation.Parse(strings.NewReader(canonical))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := map[string]result.StatisticBlock{
		result.BaselineBlock: {"min": 0.000219, "max": 0.0329, "mean": 0.00597, "median": 0.00323},
		result.AngularBlock:  {"min": 0.0046, "max": 0.1502, "mean": 0.0513, "median": 0.0402},
	}
	if diff := cmp.Diff(want, rep.Blocks); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%s", diff)
	}
	for name, b := range rep.Blocks {
		if len(b) != result.BlockSize {
			t.Errorf("%s: got %d entries, want %d", name, len(b), result.BlockSize)
		}
	}
	if rep.RawLog != canonical {
		t.Errorf("raw log differs from input:\n%q\n%q", rep.RawLog, canonical)
	}
}

func TestParseConcreteScenario(t *testing.T) {
	lines := []string{"Baseline error statistics", "---", "min:0.12", "max:4.56", "mean:1.23", "median:1.00", "done"}
	rep, err := evaluation.ParseLines(lines)
	if err != nil {
		t.Fatalf("ParseLines: %v", err)
	}
	want := map[string]result.StatisticBlock{
		result.BaselineBlock: {"min": 0.12, "max": 4.56, "mean": 1.23, "median": 1.00},
	}
	if diff := cmp.Diff(want, rep.Blocks); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%s", diff)
	}
	if _, ok := rep.Blocks[result.AngularBlock]; ok {
		t.Error("angular block should be absent")
	}
	if rep.RawLog != strings.Join(lines, "\n")+"\n" {
		t.Errorf("raw log: got %q", rep.RawLog)
	}
}

func TestParseReverseOrderAndCRLF(t *testing.T) {
	in := "Angular error statistics :\r\n--\r\nmin: 1\r\nmax: 2 \r\nmean: 1.5\t\r\nmedian: 1.4\r\n" +
		"noise line\r\nBaseline error statistics :\r\n\r\nmin: 0.1\r\nmax: 0.2\r\nmean: 0.15\r\nmedian: 0.14"
	rep, err := evaluation.Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rep.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(rep.Blocks))
	}
	if got := rep.Blocks[result.AngularBlock]["max"]; got != 2 {
		t.Errorf("angular max: got %v, want 2", got)
	}
	if got := rep.Blocks[result.BaselineBlock]["median"]; got != 0.14 {
		t.Errorf("baseline median: got %v, want 0.14", got)
	}
	if strings.Contains(rep.RawLog, "\r") {
		t.Error("raw log should not keep carriage returns")
	}
}

func TestParseNoBlocks(t *testing.T) {
	rep, err := evaluation.Parse(strings.NewReader("nothing to see\nhere\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rep.Blocks) != 0 {
		t.Errorf("expected no blocks, got %v", rep.Blocks)
	}
}

func TestParseEmpty(t *testing.T) {
	rep, err := evaluation.Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rep.Blocks) != 0 || rep.RawLog != "" {
		t.Errorf("expected empty report, got %+v", rep)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
		wantText string
		reason   string
	}{
		{
			name:     "non-numeric value",
			input:    "Baseline error statistics\n--\nmin: 0.1\nmax: abc\nmean: 1\nmedian: 1\n",
			wantLine: 4, wantText: "max: abc", reason: "not a number",
		},
		{
			name:     "missing delimiter",
			input:    "Angular error statistics\n--\nmin 0.1\n",
			wantLine: 3, wantText: "min 0.1", reason: "delimiter",
		},
		{
			name:     "empty name",
			input:    "Angular error statistics\n--\n: 0.1\n",
			wantLine: 3, wantText: ": 0.1", reason: "empty metric name",
		},
		{
			name:     "duplicate metric",
			input:    "Baseline error statistics\n--\nmin: 1\nmin: 2\nmean: 1\nmedian: 1\n",
			wantLine: 4, wantText: "min: 2", reason: "duplicate",
		},
		{
			name:     "truncated block",
			input:    "Baseline error statistics\n--\nmin: 1\nmax: 2\n",
			wantLine: 4, wantText: "max: 2", reason: "stream ended after 2 of 4",
		},
		{
			name:     "header at end of stream",
			input:    "Baseline error statistics",
			wantLine: 1, wantText: "Baseline error statistics", reason: "stream ended after 0 of 4",
		},
		{
			name:     "not finite",
			input:    "Baseline error statistics\n--\nmin: NaN\n",
			wantLine: 3, wantText: "min: NaN", reason: "not finite",
		},
		{
			name:     "header inside block",
			input:    "Baseline error statistics\n--\nmin: 1\nAngular error statistics :\n",
			wantLine: 4, wantText: "Angular error statistics :", reason: "not a number",
		},
		{
			name:     "repeated block",
			input:    "Baseline error statistics\n--\na: 1\nb: 2\nc: 3\nd: 4\nBaseline error statistics\n",
			wantLine: 7, wantText: "Baseline error statistics", reason: "repeated",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep, err := evaluation.Parse(strings.NewReader(tt.input))
			if err == nil {
				t.Fatalf("expected error, got report %+v", rep)
			}
			if rep != nil {
				t.Errorf("expected no report on error, got %+v", rep)
			}
			var pe *evaluation.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T: %v", err, err)
			}
			if pe.Line != tt.wantLine {
				t.Errorf("line: got %d, want %d", pe.Line, tt.wantLine)
			}
			if pe.Text != tt.wantText {
				t.Errorf("text: got %q, want %q", pe.Text, tt.wantText)
			}
			if !strings.Contains(pe.Reason, tt.reason) {
				t.Errorf("reason: got %q, want substring %q", pe.Reason, tt.reason)
			}
		})
	}
}

func TestParseErrorMessage(t *testing.T) {
	_, err := evaluation.ParseLines([]string{"Baseline error statistics", "--", "min: x"})
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"line 3", result.BaselineBlock, `"min: x"`} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
}

func TestParseOverlongLine(t *testing.T) {
	input := "Baseline error statistics :\n" + strings.Repeat("x", 2<<20) + "\n"
	_, err := evaluation.Parse(strings.NewReader(input))
	var pe *evaluation.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
	if pe.Line != 2 {
		t.Errorf("line: got %d, want 2", pe.Line)
	}
	if !errors.Is(err, bufio.ErrTooLong) {
		t.Errorf("expected bufio.ErrTooLong in chain, got %v", err)
	}
}
