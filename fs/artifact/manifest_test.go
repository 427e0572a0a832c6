package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/edgerun/edgerun/ml"
)

func TestResolveManifest(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"pre", "tree"} {
		if err := os.Mkdir(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writeFiles(t, filepath.Join(root, "pre"), "pre.json", "pre.params", "pre.so")
	writeFiles(t, filepath.Join(root, "tree"), "predictor.so")
	writeFiles(t, root, "post.tflite")

	manifest := `stages:
  - name: preprocess
    path: pre
  - path: tree
  - path: post.tflite
`
	if err := os.WriteFile(filepath.Join(root, "pipeline.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := Resolve(root)
	if err != nil {
		t.Fatal(err)
	}
	if r.Backend != ml.BackendPipeline {
		t.Fatalf("backend = %s", r.Backend)
	}

	want := []ml.Backend{ml.BackendGraph, ml.BackendTree, ml.BackendMobile}
	if len(r.Stages) != len(want) {
		t.Fatalf("got %d stages, want %d", len(r.Stages), len(want))
	}
	for i, b := range want {
		if r.Stages[i].Backend != b {
			t.Errorf("stage %d = %s, want %s", i, r.Stages[i].Backend, b)
		}
	}
}

func TestResolveManifestErrors(t *testing.T) {
	cases := map[string]string{
		"not yaml":   "stages: [",
		"no stages":  "stages: []",
		"empty path": "stages:\n  - name: x\n",
		"self":       "stages:\n  - path: .\n",
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "pipeline.yaml")
			if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := ResolveManifest(path); !errors.Is(err, ErrManifest) {
				t.Fatalf("expected ErrManifest, got %v", err)
			}
		})
	}
}

func TestResolvePipelineStageError(t *testing.T) {
	good := t.TempDir()
	empty := t.TempDir()
	writeFiles(t, good, "m.tflite")

	_, err := ResolvePipeline([]string{good, empty})
	if !errors.Is(err, ErrNoModelFiles) {
		t.Fatalf("expected ErrNoModelFiles, got %v", err)
	}
}
