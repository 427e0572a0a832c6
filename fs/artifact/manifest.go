// manifest.go - Pipeline-Artefakte
//
// Dieses Modul enthaelt:
// - ResolvePipeline: Loest eine geordnete Liste von Stufen-Pfaden auf
// - ResolveManifest: Liest pipeline.yaml und loest die Stufen relativ dazu auf
//
// Stufen werden parallel aufgeloest, die Reihenfolge bleibt erhalten.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/edgerun/edgerun/ml"
)

// Manifest is the content of a pipeline.yaml file.
type Manifest struct {
	Stages []ManifestStage `yaml:"stages"`
}

// ManifestStage points at one stage artifact. Relative paths are resolved
// against the manifest's directory.
type ManifestStage struct {
	Name string `yaml:"name,omitempty"`
	Path string `yaml:"path"`
}

// ParseManifest decodes a pipeline manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	if len(m.Stages) == 0 {
		return nil, fmt.Errorf("%w: no stages", ErrManifest)
	}
	for i, s := range m.Stages {
		if strings.TrimSpace(s.Path) == "" {
			return nil, fmt.Errorf("%w: stage %d has no path", ErrManifest, i)
		}
	}
	return &m, nil
}

// ResolveManifest resolves the pipeline described by a pipeline.yaml file.
func ResolveManifest(path string) (*Resolved, error) {
	return resolveManifest(path, 1)
}

func resolveManifest(path string, depth int) (*Resolved, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ResolveError{Op: "manifest", Path: path, Err: err}
	}

	m, err := ParseManifest(data)
	if err != nil {
		return nil, &ResolveError{Op: "manifest", Path: path, Err: err}
	}

	dir := filepath.Dir(path)
	stages := make([]string, len(m.Stages))
	for i, s := range m.Stages {
		p := s.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		if filepath.Clean(p) == filepath.Clean(dir) {
			return nil, &ResolveError{Op: "manifest", Path: path, Err: fmt.Errorf("%w: stage %d refers to the manifest's own directory", ErrManifest, i)}
		}
		stages[i] = p
	}

	r, err := resolveStages(stages, depth)
	if err != nil {
		return nil, err
	}
	r.Source = path
	return r, nil
}

// ResolvePipeline resolves each path as an independent stage.
func ResolvePipeline(paths []string) (*Resolved, error) {
	return resolveStages(paths, 0)
}

func resolveStages(paths []string, depth int) (*Resolved, error) {
	if len(paths) == 0 {
		return nil, &ResolveError{Op: "resolve pipeline", Err: fmt.Errorf("%w: no stages", ErrManifest)}
	}

	stages := make([]*Resolved, len(paths))

	var g errgroup.Group
	g.SetLimit(max(runtime.GOMAXPROCS(0)-1, 1))
	for i, p := range paths {
		g.Go(func() error {
			r, err := resolvePaths([]string{p}, depth)
			if err != nil {
				return fmt.Errorf("stage %d: %w", i, err)
			}
			stages[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Resolved{
		Backend: ml.BackendPipeline,
		Stages:  stages,
		Source:  strings.Join(paths, string(os.PathListSeparator)),
	}, nil
}
