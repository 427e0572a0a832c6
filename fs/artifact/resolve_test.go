package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/edgerun/edgerun/ml"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
}

func TestResolveLayouts(t *testing.T) {
	cases := []struct {
		name    string
		files   []string
		backend ml.Backend
		roles   map[Role]string
	}{
		{
			name:    "graph",
			files:   []string{"model.json", "model.params", "model.so", "model.meta", "version.json"},
			backend: ml.BackendGraph,
			roles: map[Role]string{
				RoleGraph:    "model.json",
				RoleWeights:  "model.params",
				RoleLibrary:  "model.so",
				RoleMetadata: "model.meta",
			},
		},
		{
			name:    "graph ignores runtime library",
			files:   []string{"graph.json", "weights.params", "compiled.so", "libedgerun.so"},
			backend: ml.BackendGraph,
			roles: map[Role]string{
				RoleGraph:   "graph.json",
				RoleWeights: "weights.params",
				RoleLibrary: "compiled.so",
			},
		},
		{
			name:    "tree",
			files:   []string{"predictor.so", "version.json", "metadata.json"},
			backend: ml.BackendTree,
			roles: map[Role]string{
				RoleLibrary:  "predictor.so",
				RoleVersion:  "version.json",
				RoleMetadata: "metadata.json",
			},
		},
		{
			name:    "mobile",
			files:   []string{"model.tflite"},
			backend: ml.BackendMobile,
			roles:   map[Role]string{RoleModelFile: "model.tflite"},
		},
		{
			name:    "frozen",
			files:   []string{"frozen.pb"},
			backend: ml.BackendFrozen,
			roles:   map[Role]string{RoleModelFile: "frozen.pb"},
		},
		{
			name:    "dsp",
			files:   []string{"mobilenet_hexagon_model.so", "libhexagon_nn_skel.so", "compiled.meta"},
			backend: ml.BackendDSP,
			roles: map[Role]string{
				RoleLibrary:  "mobilenet_hexagon_model.so",
				RoleSkeleton: "libhexagon_nn_skel.so",
				RoleMetadata: "compiled.meta",
			},
		},
		{
			name:    "relay",
			files:   []string{"code.ro", "compiled.so", "compiled.meta"},
			backend: ml.BackendRelay,
			roles: map[Role]string{
				RoleRelayExec: "code.ro",
				RoleLibrary:   "compiled.so",
				RoleMetadata:  "compiled.meta",
			},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, tt.files...)

			r, err := Resolve(dir)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if r.Backend != tt.backend {
				t.Errorf("backend = %s, want %s", r.Backend, tt.backend)
			}
			if len(r.Locations) != len(tt.roles) {
				t.Errorf("got %d roles, want %d: %v", len(r.Locations), len(tt.roles), r.Locations)
			}
			for role, name := range tt.roles {
				l, ok := r.Location(role)
				if !ok {
					t.Errorf("missing role %s", role)
					continue
				}
				if l.Label() != name {
					t.Errorf("role %s = %s, want %s", role, l.Label(), name)
				}
				if l.Role != role {
					t.Errorf("location for %s tagged %s", role, l.Role)
				}
			}
		})
	}
}

func TestResolveSingleFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.tflite", "b.pb", "c_hexagon_model.so")

	cases := map[string]ml.Backend{
		"a.tflite":           ml.BackendMobile,
		"b.pb":               ml.BackendFrozen,
		"c_hexagon_model.so": ml.BackendDSP,
	}
	for name, want := range cases {
		r, err := Resolve(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("Resolve(%s): %v", name, err)
		}
		if r.Backend != want {
			t.Errorf("Resolve(%s) = %s, want %s", name, r.Backend, want)
		}
	}
}

func TestResolveNoModelFiles(t *testing.T) {
	cases := map[string][]string{
		"empty":      nil,
		"irrelevant": {"README.md", "notes.txt", "version.json"},
		"runtime":    {"libedgerun.so"},
	}

	for name, files := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, files...)

			_, err := Resolve(dir)
			if !errors.Is(err, ErrNoModelFiles) {
				t.Fatalf("expected ErrNoModelFiles, got %v", err)
			}
			var rerr *ResolveError
			if !errors.As(err, &rerr) {
				t.Errorf("expected *ResolveError, got %T", err)
			}
		})
	}
}

func TestResolveMissingRole(t *testing.T) {
	cases := map[string][]string{
		"graph without library":  {"model.json", "model.params"},
		"graph without json":     {"model.params", "model.so"},
		"relay without metadata": {"code.ro", "compiled.so"},
		"relay without library":  {"code.ro", "compiled.meta"},
	}

	for name, files := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, files...)

			if _, err := Resolve(dir); !errors.Is(err, ErrMissingRole) {
				t.Fatalf("expected ErrMissingRole, got %v", err)
			}
		})
	}
}

func TestResolveAmbiguous(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.json", "b.json", "model.params", "model.so")

	if _, err := Resolve(dir); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("expected ErrAmbiguous, got %v", err)
	}
}

func TestResolveMergesDirectories(t *testing.T) {
	graph := t.TempDir()
	lib := t.TempDir()
	writeFiles(t, graph, "model.json", "model.params")
	writeFiles(t, lib, "model.so")

	r, err := Resolve(graph, lib)
	if err != nil {
		t.Fatal(err)
	}
	if r.Backend != ml.BackendGraph {
		t.Errorf("backend = %s", r.Backend)
	}
}

func TestResolveElements(t *testing.T) {
	cases := []struct {
		name  string
		elems []Location
		want  ml.Backend
		err   error
	}{
		{
			name: "graph",
			elems: []Location{
				{Role: RoleGraph, Name: "graph.json", Data: []byte("{}")},
				{Role: RoleWeights, Name: "graph.params", Data: []byte{1}},
				{Role: RoleLibrary, Name: "graph.so", Data: []byte{2}},
			},
			want: ml.BackendGraph,
		},
		{
			name: "relay",
			elems: []Location{
				{Role: RoleRelayExec, Name: "code.ro", Data: []byte{1}},
				{Role: RoleLibrary, Name: "lib.so", Data: []byte{2}},
				{Role: RoleMetadata, Name: "x.meta", Data: []byte("{}")},
			},
			want: ml.BackendRelay,
		},
		{
			name:  "mobile",
			elems: []Location{{Role: RoleModelFile, Name: "m.tflite", Data: []byte{1}}},
			want:  ml.BackendMobile,
		},
		{
			name:  "tree",
			elems: []Location{{Role: RoleLibrary, Name: "tree.so", Data: []byte{1}}},
			want:  ml.BackendTree,
		},
		{
			name: "graph missing weights",
			elems: []Location{
				{Role: RoleGraph, Name: "graph.json", Data: []byte("{}")},
				{Role: RoleLibrary, Name: "graph.so", Data: []byte{2}},
			},
			err: ErrMissingRole,
		},
		{
			name: "duplicate role",
			elems: []Location{
				{Role: RoleRelayExec, Name: "a.ro"},
				{Role: RoleRelayExec, Name: "b.ro"},
				{Role: RoleLibrary, Name: "lib.so"},
				{Role: RoleMetadata, Name: "x.meta"},
			},
			err: ErrAmbiguous,
		},
		{
			name: "empty",
			err:  ErrNoModelFiles,
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ResolveElements(tt.elems...)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if r.Backend != tt.want {
				t.Errorf("backend = %s, want %s", r.Backend, tt.want)
			}
		})
	}
}

func TestRolesCovered(t *testing.T) {
	for _, b := range ml.Backends() {
		// must not panic for any backend
		_ = RequiredRoles(b)
		_ = OptionalRoles(b)
	}
}

func TestParseRole(t *testing.T) {
	for _, r := range Roles() {
		got, err := ParseRole(r.String())
		if err != nil || got != r {
			t.Errorf("ParseRole(%q) = %v, %v", r.String(), got, err)
		}
	}
	if _, err := ParseRole("weights.bin"); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.tflite")
	if err := os.WriteFile(path, []byte("tflite-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	blob, err := Location{Path: path}.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got := string(blob.Bytes()); got != "tflite-bytes" {
		t.Errorf("Bytes() = %q", got)
	}
	if err := blob.Close(); err != nil {
		t.Fatal(err)
	}
	if err := blob.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	empty := filepath.Join(dir, "empty.pb")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	blob, err = Location{Path: empty}.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(blob.Bytes()) != 0 {
		t.Error("expected empty blob")
	}

	mem, err := Location{Name: "m", Data: []byte{1, 2}}.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(mem.Bytes()) != 2 {
		t.Error("expected in-memory bytes")
	}
}

func TestResolvedMetadata(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "predictor.so")
	meta := `{"Model": {"Outputs": [{"name": "score", "dtype": "float32", "shape": [null, 1]}]}}`
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), []byte(meta), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := Resolve(dir)
	if err != nil {
		t.Fatal(err)
	}
	m, err := r.Metadata()
	if err != nil {
		t.Fatal(err)
	}
	if i, ok := m.OutputIndex("score"); !ok || i != 0 {
		t.Errorf("OutputIndex(score) = %d, %t", i, ok)
	}

	none := &Resolved{Backend: ml.BackendMobile}
	if m, err := none.Metadata(); m != nil || err != nil {
		t.Errorf("expected no metadata, got %v, %v", m, err)
	}
}
