package dataset

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// Calibration holds what is known about a dataset's camera intrinsics.
// K is set when the full 3x3 matrix is known; otherwise only FocalPx is.
type Calibration struct {
	K       *mat.Dense
	FocalPx float64
	Source  string
}

// Descriptor is the structured calibration file. Principal point offsets
// are in pixels; FocalRatio is fy/fx and defaults to 1.
type Descriptor struct {
	FocalPx    float64  `yaml:"focal_px"`
	FocalRatio float64  `yaml:"focal_ratio"`
	PPX        *float64 `yaml:"ppx"`
	PPY        *float64 `yaml:"ppy"`
}

// Calibration loads the intrinsic matrix file if present, otherwise the
// calibration descriptor.
func (d *Dataset) Calibration() (*Calibration, error) {
	kPath := filepath.Join(d.Dir, d.layout.IntrinsicsFile)
	if data, err := os.ReadFile(kPath); err == nil {
		k, err := ParseIntrinsics(string(data))
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %s: %w", d.Name, kPath, err)
		}
		return &Calibration{K: k, FocalPx: k.At(0, 0), Source: kPath}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("dataset %s: reading intrinsics: %w", d.Name, err)
	}

	for _, path := range d.descriptorPaths() {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("dataset %s: reading calibration: %w", d.Name, err)
		}
		var desc Descriptor
		if err := yaml.Unmarshal(data, &desc); err != nil {
			return nil, fmt.Errorf("dataset %s: parsing %s: %w", d.Name, path, err)
		}
		cal, err := desc.Calibration()
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %s: %w", d.Name, path, err)
		}
		cal.Source = path
		return cal, nil
	}
	return nil, fmt.Errorf("dataset %s: no %s or %s found", d.Name, d.layout.IntrinsicsFile, d.layout.CalibrationFile)
}

// descriptorPaths returns the configured descriptor and its .json sibling.
// yaml.v3 reads both forms.
func (d *Dataset) descriptorPaths() []string {
	primary := filepath.Join(d.Dir, d.layout.CalibrationFile)
	ext := filepath.Ext(primary)
	if ext == ".json" {
		return []string{primary}
	}
	return []string{primary, strings.TrimSuffix(primary, ext) + ".json"}
}

func (desc *Descriptor) Calibration() (*Calibration, error) {
	fields := []struct {
		name string
		v    *float64
	}{{"focal_px", &desc.FocalPx}, {"focal_ratio", &desc.FocalRatio}, {"ppx", desc.PPX}, {"ppy", desc.PPY}}
	for _, f := range fields {
		if f.v != nil && (math.IsNaN(*f.v) || math.IsInf(*f.v, 0)) {
			return nil, fmt.Errorf("%s is not finite", f.name)
		}
	}
	if desc.FocalPx <= 0 {
		return nil, fmt.Errorf("focal_px must be positive, got %g", desc.FocalPx)
	}
	ratio := desc.FocalRatio
	if ratio == 0 {
		ratio = 1
	}
	if ratio < 0 {
		return nil, fmt.Errorf("focal_ratio must be positive, got %g", ratio)
	}
	if (desc.PPX == nil) != (desc.PPY == nil) {
		return nil, fmt.Errorf("ppx and ppy must be given together")
	}
	if desc.PPX == nil {
		if ratio != 1 {
			return nil, fmt.Errorf("focal_ratio needs ppx and ppy")
		}
		return &Calibration{FocalPx: desc.FocalPx}, nil
	}
	k := mat.NewDense(3, 3, []float64{
		desc.FocalPx, 0, *desc.PPX,
		0, desc.FocalPx * ratio, *desc.PPY,
		0, 0, 1,
	})
	return &Calibration{K: k, FocalPx: desc.FocalPx}, nil
}

// ParseIntrinsics reads a whitespace-delimited 3x3 matrix, row major.
func ParseIntrinsics(text string) (*mat.Dense, error) {
	fields := strings.Fields(text)
	if len(fields) != 9 {
		return nil, fmt.Errorf("intrinsic matrix needs 9 values, got %d", len(fields))
	}
	vals := make([]float64, 9)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("intrinsic value %d: %w", i+1, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("intrinsic value %d is not finite: %s", i+1, f)
		}
		vals[i] = v
	}
	k := mat.NewDense(3, 3, vals)
	if k.At(0, 0) <= 0 || k.At(1, 1) <= 0 {
		return nil, fmt.Errorf("focal lengths must be positive")
	}
	return k, nil
}

// Intrinsics renders K row major with ';' separators, the form the
// image-listing tool takes.
func (c *Calibration) Intrinsics() string {
	if c.K == nil {
		return ""
	}
	parts := make([]string, 0, 9)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			parts = append(parts, strconv.FormatFloat(c.K.At(i, j), 'g', -1, 64))
		}
	}
	return strings.Join(parts, ";")
}
