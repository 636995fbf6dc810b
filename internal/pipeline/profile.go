package pipeline

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/signalnine/sfmbench/internal/dataset"
	"github.com/signalnine/sfmbench/internal/result"
)

// Stage names, in execution order.
const (
	CameraInit        = "camera-init"
	FeatureExtraction = "feature-extraction"
	FeatureMatching   = "feature-matching"
	PoseEstimation    = "pose-estimation"
	QualityEvaluation = "quality-evaluation"
)

var Stages = []string{CameraInit, FeatureExtraction, FeatureMatching, PoseEstimation, QualityEvaluation}

type Engine string

const (
	Global      Engine = "global"
	Incremental Engine = "incremental"
)

func (e Engine) Valid() bool {
	return e == Global || e == Incremental
}

// SfMDir is the pose-estimation output directory name.
func (e Engine) SfMDir() string {
	if e == Incremental {
		return "SfM_Incremental"
	}
	return "SfM_Global"
}

// Profile is the command-line contract of one generation of the OpenMVG
// tools. Flag values that changed between releases live here rather than
// in the stage builders.
type Profile struct {
	Name string

	ImageListing    string
	ComputeFeatures string
	ComputeMatches  string
	GlobalSfM       string
	IncrementalSfM  string
	EvalQuality     string

	// camera-init
	IntrinsicsFlag   string
	FocalFlag        string
	CameraModel      string
	GroupCameraModel string
	// feature-matching
	MatchRatio string
	// pose-estimation
	RotationAveraging  string
	RefineFlag         string
	NoRefineIntrinsics string
}

var baseProfile = Profile{
	ImageListing:       "openMVG_main_SfMInit_ImageListing",
	ComputeFeatures:    "openMVG_main_ComputeFeatures",
	ComputeMatches:     "openMVG_main_ComputeMatches",
	GlobalSfM:          "openMVG_main_GlobalSfM",
	IncrementalSfM:     "openMVG_main_IncrementalSfM",
	EvalQuality:        "openMVG_main_evalQuality",
	IntrinsicsFlag:     "-k",
	FocalFlag:          "-f",
	CameraModel:        "1", // pinhole
	GroupCameraModel:   "1", // shared intrinsics
	MatchRatio:         ".8",
	RotationAveraging:  "2", // L2
	RefineFlag:         "-f",
	NoRefineIntrinsics: "0",
}

var profiles = map[string]Profile{
	"openmvg-0.8": withName(baseProfile, "openmvg-0.8"),
	"openmvg-1.x": func() Profile {
		p := withName(baseProfile, "openmvg-1.x")
		p.NoRefineIntrinsics = "NONE"
		return p
	}(),
}

// DefaultProfile is the 0.8 generation of the tools.
const DefaultProfile = "openmvg-0.8"

func withName(p Profile, name string) Profile {
	p.Name = name
	return p
}

func LookupProfile(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown tool profile %q (known: %v)", name, ProfileNames())
	}
	return p, nil
}

func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// args builds the argument tokens of one stage. cal is only read by
// camera-init.
func (p Profile) args(name string, engine Engine, ds *dataset.Dataset, cal *dataset.Calibration, l result.Layout) (string, []string) {
	switch name {
	case CameraInit:
		args := []string{"-i", ds.Images(), "-o", l.Matching}
		if k := cal.Intrinsics(); k != "" {
			args = append(args, p.IntrinsicsFlag, k)
		} else {
			args = append(args, p.FocalFlag, strconv.FormatFloat(cal.FocalPx, 'g', -1, 64))
		}
		return p.ImageListing, append(args, "-c", p.CameraModel, "-g", p.GroupCameraModel)
	case FeatureExtraction:
		return p.ComputeFeatures, []string{"-i", result.SfMData(l.Matching), "-o", l.Matching}
	case FeatureMatching:
		model := "e"
		if engine == Incremental {
			model = "f"
		}
		return p.ComputeMatches, []string{"-i", result.SfMData(l.Matching), "-o", l.Matching, "-r", p.MatchRatio, "-g", model}
	case PoseEstimation:
		args := []string{"-i", result.SfMData(l.Matching), "-m", l.Matching, "-o", l.SfM}
		if engine == Incremental {
			return p.IncrementalSfM, append(args, p.RefineFlag, p.NoRefineIntrinsics)
		}
		return p.GlobalSfM, append(args, "-r", p.RotationAveraging, p.RefineFlag, p.NoRefineIntrinsics)
	case QualityEvaluation:
		return p.EvalQuality, []string{"-i", ds.GroundTruth(), "-c", result.SfMData(l.SfM), "-o", l.Stats}
	}
	panic("pipeline: unknown stage " + name)
}
