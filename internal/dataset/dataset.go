package dataset

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Order is the dataset processing order.
type Order string

const (
	// ByName sorts datasets lexicographically so runs are reproducible.
	ByName Order = "name"
	// ByListing keeps the order the filesystem reports.
	ByListing Order = "listing"
)

// Layout names the entries expected inside a dataset directory.
type Layout struct {
	ImagesDir       string `yaml:"images_dir"`
	GroundTruthDir  string `yaml:"ground_truth_dir"`
	IntrinsicsFile  string `yaml:"intrinsics_file"`
	CalibrationFile string `yaml:"calibration_file"`
}

var DefaultLayout = Layout{
	ImagesDir:       "images",
	GroundTruthDir:  "gt_dense_cameras",
	IntrinsicsFile:  "K.txt",
	CalibrationFile: "calibration.yaml",
}

type Dataset struct {
	Name   string
	Dir    string
	layout Layout
}

func New(root, name string, layout Layout) *Dataset {
	return &Dataset{Name: name, Dir: filepath.Join(root, name), layout: layout}
}

func (d *Dataset) Images() string {
	return filepath.Join(d.Dir, d.layout.ImagesDir)
}

func (d *Dataset) GroundTruth() string {
	return filepath.Join(d.Dir, d.layout.GroundTruthDir)
}

type DiscoverOpts struct {
	Order  Order
	Names  []string
	Limit  int
	Layout Layout
}

// Discover lists the dataset directories under root. Files and dot-entries
// are skipped. Names, when set, restricts the result to those datasets.
// A non-negative Limit keeps only the first Limit datasets after ordering.
func Discover(root string, opts DiscoverOpts) ([]*Dataset, error) {
	entries, err := listDir(root, opts.Order)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(opts.Names))
	for _, n := range opts.Names {
		wanted[n] = true
	}

	var datasets []*Dataset
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !isDir(root, e) {
			log.Printf("skipping %s: not a directory", filepath.Join(root, name))
			continue
		}
		if len(wanted) > 0 && !wanted[name] {
			continue
		}
		datasets = append(datasets, New(root, name, opts.Layout))
	}

	if len(wanted) > 0 {
		found := make(map[string]bool, len(datasets))
		for _, d := range datasets {
			found[d.Name] = true
		}
		for _, n := range opts.Names {
			if !found[n] {
				return nil, fmt.Errorf("dataset %q not found in %s", n, root)
			}
		}
	}

	if opts.Limit >= 0 && opts.Limit < len(datasets) {
		datasets = datasets[:opts.Limit]
	}
	return datasets, nil
}

func isDir(root string, e os.DirEntry) bool {
	if e.Type()&os.ModeSymlink != 0 {
		info, err := os.Stat(filepath.Join(root, e.Name()))
		return err == nil && info.IsDir()
	}
	return e.IsDir()
}

func listDir(root string, order Order) ([]os.DirEntry, error) {
	f, err := os.Open(root)
	if err != nil {
		return nil, fmt.Errorf("opening input dir: %w", err)
	}
	defer f.Close()
	entries, err := f.ReadDir(-1)
	if err != nil {
		return nil, fmt.Errorf("listing input dir: %w", err)
	}
	if order != ByListing {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Name() < entries[j].Name()
		})
	}
	return entries, nil
}
