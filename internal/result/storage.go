package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Corpus is the result of one pass over a dataset corpus, keyed by
// dataset name. It has a single owner and is not safe for concurrent use.
type Corpus struct {
	datasets map[string]*Dataset
}

func NewCorpus() *Corpus {
	return &Corpus{datasets: make(map[string]*Dataset)}
}

// Record stores the timings and statistic blocks of a completed dataset,
// replacing any earlier entry with the same name.
func (c *Corpus) Record(name string, timings Timings, blocks map[string]StatisticBlock) {
	ds := &Dataset{Timings: copyTimings(timings)}
	if len(blocks) > 0 {
		ds.Statistics = make(map[string]StatisticBlock, len(blocks))
		for k, b := range blocks {
			ds.Statistics[k] = copyBlock(b)
		}
	}
	c.datasets[name] = ds
}

// RecordFailure stores the timings gathered before a dataset failed.
func (c *Corpus) RecordFailure(name string, timings Timings, f *Failure) {
	c.datasets[name] = &Dataset{Timings: copyTimings(timings), Failure: f}
}

func (c *Corpus) Get(name string) (*Dataset, bool) {
	ds, ok := c.datasets[name]
	return ds, ok
}

func (c *Corpus) Len() int {
	return len(c.datasets)
}

// Names returns the recorded dataset names in lexicographic order.
func (c *Corpus) Names() []string {
	names := make([]string, 0, len(c.datasets))
	for name := range c.datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Failed returns the names of datasets recorded with a failure.
func (c *Corpus) Failed() []string {
	var names []string
	for _, name := range c.Names() {
		if c.datasets[name].Failure != nil {
			names = append(names, name)
		}
	}
	return names
}

func (c *Corpus) MarshalJSON() ([]byte, error) {
	if c.datasets == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.datasets)
}

func (c *Corpus) UnmarshalJSON(data []byte) error {
	var datasets map[string]*Dataset
	if err := json.Unmarshal(data, &datasets); err != nil {
		return err
	}
	if datasets == nil {
		datasets = make(map[string]*Dataset)
	}
	for name, ds := range datasets {
		if ds == nil {
			return fmt.Errorf("dataset %q: null entry", name)
		}
		if ds.Timings == nil {
			ds.Timings = Timings{}
		}
	}
	c.datasets = datasets
	return nil
}

// Serialize encodes the corpus with sorted keys and two-space indentation.
// Identical corpora always produce identical bytes.
func (c *Corpus) Serialize() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling results: %w", err)
	}
	return append(data, '\n'), nil
}

func WriteFile(path string, c *Corpus) error {
	data, err := c.Serialize()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating result dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	return nil
}

func ReadFile(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	c := NewCorpus()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing results %s: %w", path, err)
	}
	return c, nil
}

func copyTimings(t Timings) Timings {
	out := make(Timings, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

func copyBlock(b StatisticBlock) StatisticBlock {
	out := make(StatisticBlock, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}
