package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/tabwriter"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/signalnine/sfmbench/internal/result"
)

type DatasetSummary struct {
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	BaselineMean   float64 `json:"baseline_mean"`
	BaselineMedian float64 `json:"baseline_median"`
	AngularMean    float64 `json:"angular_mean"`
	AngularMedian  float64 `json:"angular_median"`
	TotalSeconds   float64 `json:"total_seconds"`
	hasBaseline    bool
	hasAngular     bool
}

// Aggregate summarizes one column across the datasets that reported it.
type Aggregate struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
}

type Summary struct {
	Datasets       []DatasetSummary   `json:"datasets"`
	Failed         int                `json:"failed"`
	BaselineMean   Aggregate          `json:"baseline_mean"`
	AngularMean    Aggregate          `json:"angular_mean"`
	TotalSeconds   Aggregate          `json:"total_seconds"`
	StageMeanTimes map[string]float64 `json:"stage_mean_seconds"`
}

// Generate reads a result document and writes a summary report.
func Generate(resultPath, format string, w io.Writer) error {
	c, err := result.ReadFile(resultPath)
	if err != nil {
		return err
	}
	s := Summarize(c)
	switch format {
	case "markdown":
		return writeMarkdown(s, w)
	case "json":
		return writeJSON(s, w)
	case "table", "":
		return writeTable(s, w)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// Summarize computes per-dataset rows and cross-dataset aggregates.
// Failed datasets are listed but left out of the error aggregates.
func Summarize(c *result.Corpus) *Summary {
	s := &Summary{StageMeanTimes: map[string]float64{}}
	var baseline, angular, totals []float64
	stageTimes := map[string][]float64{}

	for _, name := range c.Names() {
		ds, _ := c.Get(name)
		row := DatasetSummary{Name: name, Status: "ok"}
		stages := make([]string, 0, len(ds.Timings))
		for stageName := range ds.Timings {
			stages = append(stages, stageName)
		}
		sort.Strings(stages)
		for _, stageName := range stages {
			secs := ds.Timings[stageName]
			row.TotalSeconds += secs
			stageTimes[stageName] = append(stageTimes[stageName], secs)
		}
		if ds.Failure != nil {
			s.Failed++
			row.Status = "failed"
			if ds.Failure.Stage != "" {
				row.Status = "failed: " + ds.Failure.Stage
			}
			s.Datasets = append(s.Datasets, row)
			continue
		}
		if b, ok := ds.Statistics[result.BaselineBlock]; ok {
			row.BaselineMean, row.BaselineMedian, row.hasBaseline = b["mean"], b["median"], true
			baseline = append(baseline, row.BaselineMean)
		}
		if b, ok := ds.Statistics[result.AngularBlock]; ok {
			row.AngularMean, row.AngularMedian, row.hasAngular = b["mean"], b["median"], true
			angular = append(angular, row.AngularMean)
		}
		totals = append(totals, row.TotalSeconds)
		s.Datasets = append(s.Datasets, row)
	}

	s.BaselineMean = aggregate(baseline)
	s.AngularMean = aggregate(angular)
	s.TotalSeconds = aggregate(totals)
	for stageName, xs := range stageTimes {
		s.StageMeanTimes[stageName] = stat.Mean(xs, nil)
	}
	return s
}

func aggregate(xs []float64) Aggregate {
	if len(xs) == 0 {
		return Aggregate{}
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return Aggregate{
		Count:  len(xs),
		Mean:   stat.Mean(sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Max:    floats.Max(sorted),
	}
}

func cell(v float64, ok bool) string {
	if !ok || math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.5f", v)
}

func writeTable(s *Summary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATASET\tSTATUS\tBASELINE MEAN\tBASELINE MEDIAN\tANGULAR MEAN\tANGULAR MEDIAN\tTIME")
	fmt.Fprintln(tw, strings.Repeat("-", 100))
	for _, d := range s.Datasets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%.1fs\n",
			d.Name, d.Status,
			cell(d.BaselineMean, d.hasBaseline), cell(d.BaselineMedian, d.hasBaseline),
			cell(d.AngularMean, d.hasAngular), cell(d.AngularMedian, d.hasAngular),
			d.TotalSeconds)
	}
	fmt.Fprintln(tw, strings.Repeat("-", 100))
	fmt.Fprintf(tw, "mean (%d ok, %d failed)\t\t%s\t%s\t%s\t%s\t%.1fs\n",
		len(s.Datasets)-s.Failed, s.Failed,
		cell(s.BaselineMean.Mean, s.BaselineMean.Count > 0), cell(s.BaselineMean.Median, s.BaselineMean.Count > 0),
		cell(s.AngularMean.Mean, s.AngularMean.Count > 0), cell(s.AngularMean.Median, s.AngularMean.Count > 0),
		s.TotalSeconds.Mean)
	return tw.Flush()
}

func writeMarkdown(s *Summary, w io.Writer) error {
	fmt.Fprintln(w, "| Dataset | Status | Baseline mean | Baseline median | Angular mean | Angular median | Time |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
	for _, d := range s.Datasets {
		fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s | %.1fs |\n",
			d.Name, d.Status,
			cell(d.BaselineMean, d.hasBaseline), cell(d.BaselineMedian, d.hasBaseline),
			cell(d.AngularMean, d.hasAngular), cell(d.AngularMedian, d.hasAngular),
			d.TotalSeconds)
	}
	return nil
}

func writeJSON(s *Summary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
