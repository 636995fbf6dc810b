package result

import "path/filepath"

// Layout is the per-dataset directory tree under the output root.
type Layout struct {
	Root     string
	Matching string
	SfM      string
	Stats    string
}

// DatasetLayout returns the directories used for a dataset. sfmDir is the
// pose-estimation output directory name (SfM_Global, SfM_Incremental).
func DatasetLayout(outputRoot, dataset, sfmDir string) Layout {
	root := filepath.Join(outputRoot, dataset)
	sfm := filepath.Join(root, sfmDir)
	return Layout{
		Root:     root,
		Matching: filepath.Join(root, "matching"),
		SfM:      sfm,
		Stats:    filepath.Join(sfm, "stats"),
	}
}

// SfMData is the scene file a directory's stage writes.
func SfMData(dir string) string {
	return filepath.Join(dir, "sfm_data.json")
}

// EvaluationLog is the captured evaluation output kept for audit.
func (l Layout) EvaluationLog() string {
	return filepath.Join(l.Stats, "evaluation.log")
}
