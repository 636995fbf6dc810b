//go:build integration

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/sfmbench/cmd"
	"github.com/signalnine/sfmbench/internal/pipeline"
	"github.com/signalnine/sfmbench/internal/result"
)

const evalScript = `#!/bin/sh
cat <<'REPORT'
Baseline error statistics :
--
 min: 0.001
 max: 0.25
 mean: 0.05
 median: 0.04
Angular error statistics :
--
 min: 0.01
 max: 1.5
 mean: 0.3
 median: 0.2
REPORT
`

// createSoftware writes shell stand-ins for the OpenMVG binaries. Every
// reconstruction stage succeeds unless failOn names the dataset whose
// images path it receives.
func createSoftware(t *testing.T, failOn string) string {
	t.Helper()
	dir := t.TempDir()
	p, err := pipeline.LookupProfile(pipeline.DefaultProfile)
	if err != nil {
		t.Fatal(err)
	}
	ok := "#!/bin/sh\nexit 0\n"
	listing := "#!/bin/sh\ncase \"$*\" in *\"/" + failOn + "/\"*) exit 5;; esac\nexit 0\n"
	if failOn == "" {
		listing = ok
	}
	scripts := map[string]string{
		p.ImageListing:    listing,
		p.ComputeFeatures: ok,
		p.ComputeMatches:  ok,
		p.GlobalSfM:       ok,
		p.EvalQuality:     evalScript,
	}
	for name, body := range scripts {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func createCorpus(t *testing.T, names ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, n := range names {
		for _, sub := range []string{"images", "gt_dense_cameras"} {
			os.MkdirAll(filepath.Join(root, n, sub), 0o755)
		}
		os.WriteFile(filepath.Join(root, n, "K.txt"), []byte("2759.48 0 1520.69\n0 2764.16 1006.81\n0 0 1\n"), 0o644)
	}
	return root
}

func runCLI(t *testing.T, args ...string) int {
	t.Helper()
	root := cmd.NewRootCmd()
	root.SetArgs(args)
	return cmd.ExitCode(root.Execute())
}

func TestIntegrationFullPass(t *testing.T) {
	software := createSoftware(t, "")
	input := createCorpus(t, "fountain", "castle")
	out := t.TempDir()
	resultPath := filepath.Join(out, "results.json")

	code := runCLI(t, "run", "--config", "../no-such-config.yaml",
		"--software", software, "--input", input, "--output", out, "--result", resultPath)
	if code != cmd.ExitConfig {
		t.Fatalf("explicit missing config: got exit %d, want %d", code, cmd.ExitConfig)
	}

	t.Chdir(t.TempDir())
	code = runCLI(t, "run", "--software", software, "--input", input, "--output", out, "--result", resultPath)
	if code != 0 {
		t.Fatalf("run exited %d", code)
	}

	c, err := result.ReadFile(resultPath)
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 datasets, got %d", c.Len())
	}
	ds, _ := c.Get("castle")
	if ds.Statistics[result.BaselineBlock]["max"] != 0.25 || ds.Statistics[result.AngularBlock]["median"] != 0.2 {
		t.Errorf("unexpected statistics: %+v", ds.Statistics)
	}
	if len(ds.Timings) != len(pipeline.Stages) {
		t.Errorf("expected a timing per stage, got %v", ds.Timings)
	}

	log, err := os.ReadFile(filepath.Join(out, "castle", "SfM_Global", "stats", "evaluation.log"))
	if err != nil {
		t.Fatalf("evaluation log: %v", err)
	}
	if len(log) == 0 {
		t.Error("evaluation log is empty")
	}

	raw, _ := os.ReadFile(resultPath)
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
}

func TestIntegrationFailFast(t *testing.T) {
	t.Chdir(t.TempDir())
	software := createSoftware(t, "b")
	input := createCorpus(t, "a", "b", "c")
	out := t.TempDir()
	resultPath := filepath.Join(out, "results.json")

	code := runCLI(t, "run", "--software", software, "--input", input, "--output", out, "--result", resultPath)
	if code != 5 {
		t.Fatalf("expected stage exit status 5, got %d", code)
	}
	c, err := result.ReadFile(resultPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("dataset a should be recorded")
	}
	b, ok := c.Get("b")
	if !ok || b.Failure == nil || b.Failure.Stage != pipeline.CameraInit {
		t.Errorf("dataset b should carry a camera-init failure: %+v", b)
	}
	if _, ok := c.Get("c"); ok {
		t.Error("dataset c must not run after a fail-fast failure")
	}
}
