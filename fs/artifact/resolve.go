// MODUL: artifact/resolve
// ZWECK: Erkennt, fuer welche Engine ein Modell-Artefakt gebaut wurde
// INPUT: Verzeichnisse, Einzeldateien oder eine Liste benannter Buffer
// OUTPUT: Resolved (Backend-Tag + Fundorte pro Rolle, bei Pipelines die Stufen)
// NEBENEFFEKTE: Nur Lesezugriffe auf das Dateisystem
// ABHAENGIGKEITEN: ml, fs/metadata
// HINWEISE: Erste passende Regel gewinnt; Dateiendungen vor Verzeichnis-Heuristik

// Package artifact classifies model artifacts by execution engine and
// locates the files each engine needs.
package artifact

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/edgerun/edgerun/fs/metadata"
	"github.com/edgerun/edgerun/ml"
)

const (
	suffixDSPModel = "_hexagon_model.so"
	skeletonName   = "libhexagon_nn_skel.so"
	manifestName   = "pipeline.yaml"
)

// reservedJSON are json files that never describe a graph.
var reservedJSON = []string{"version.json", "metadata.json"}

// Resolved is a classified artifact.
type Resolved struct {
	Backend   ml.Backend
	Locations map[Role]Location

	// Stages holds the resolved stages of a pipeline artifact in order.
	Stages []*Resolved

	// Source is the path or element list the artifact was resolved from.
	Source string
}

// Location returns the location for role.
func (r *Resolved) Location(role Role) (Location, bool) {
	l, ok := r.Locations[role]
	return l, ok
}

// Metadata loads and parses the optional metadata document. It returns
// nil, nil when the artifact has none.
func (r *Resolved) Metadata() (*metadata.Metadata, error) {
	l, ok := r.Locations[RoleMetadata]
	if !ok {
		return nil, nil
	}
	data, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	m, err := metadata.Parse(data)
	if err != nil {
		return nil, &ResolveError{Op: "metadata", Path: l.Label(), Err: err}
	}
	return m, nil
}

// RequiredRoles returns the roles backend b cannot work without.
func RequiredRoles(b ml.Backend) []Role {
	switch b {
	case ml.BackendGraph:
		return []Role{RoleGraph, RoleWeights, RoleLibrary}
	case ml.BackendTree:
		return []Role{RoleLibrary}
	case ml.BackendMobile, ml.BackendFrozen:
		return []Role{RoleModelFile}
	case ml.BackendDSP:
		return []Role{RoleLibrary}
	case ml.BackendRelay:
		return []Role{RoleLibrary, RoleRelayExec, RoleMetadata}
	case ml.BackendPipeline:
		return nil
	default:
		panic(fmt.Sprintf("artifact: unhandled backend %v", b))
	}
}

// OptionalRoles returns the roles backend b uses when present.
func OptionalRoles(b ml.Backend) []Role {
	switch b {
	case ml.BackendGraph, ml.BackendMobile:
		return []Role{RoleMetadata}
	case ml.BackendTree:
		return []Role{RoleMetadata, RoleVersion}
	case ml.BackendDSP:
		return []Role{RoleMetadata, RoleSkeleton}
	case ml.BackendFrozen, ml.BackendRelay, ml.BackendPipeline:
		return nil
	default:
		panic(fmt.Sprintf("artifact: unhandled backend %v", b))
	}
}

// =============================================================================
// Dateisystem
// =============================================================================

// Resolve classifies the artifact found at paths. A single path with a
// single-file engine extension selects that engine directly; otherwise the
// contents of every directory (and every plain file) are scanned once.
func Resolve(paths ...string) (*Resolved, error) {
	return resolvePaths(paths, 0)
}

const maxManifestDepth = 8

func resolvePaths(paths []string, depth int) (*Resolved, error) {
	if len(paths) == 0 {
		return nil, &ResolveError{Op: "resolve", Err: ErrNoModelFiles}
	}
	source := strings.Join(paths, string(os.PathListSeparator))

	if len(paths) == 1 {
		if b, ok := singleFileBackend(filepath.Base(paths[0])); ok {
			fi, err := os.Stat(paths[0])
			if err != nil {
				return nil, &ResolveError{Op: "resolve", Path: paths[0], Err: err}
			}
			if !fi.IsDir() {
				return single(b, Location{Path: paths[0]}, source), nil
			}
		}
	}

	var files []string
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return nil, &ResolveError{Op: "resolve", Path: p, Err: err}
		}
		if !fi.IsDir() {
			files = append(files, p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, &ResolveError{Op: "resolve", Path: p, Err: err}
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			files = append(files, filepath.Join(p, e.Name()))
		}
	}

	for _, f := range files {
		if filepath.Base(f) == manifestName {
			if depth >= maxManifestDepth {
				return nil, &ResolveError{Op: "manifest", Path: f, Err: fmt.Errorf("%w: nesting deeper than %d", ErrManifest, maxManifestDepth)}
			}
			return resolveManifest(f, depth+1)
		}
	}

	locs := make([]Location, len(files))
	for i, f := range files {
		locs[i] = Location{Path: f}
	}
	return classify(locs, source)
}

// singleFileBackend recognises the engines whose artifact is one file.
func singleFileBackend(name string) (ml.Backend, bool) {
	switch {
	case strings.HasSuffix(name, suffixDSPModel):
		return ml.BackendDSP, true
	case strings.HasSuffix(name, ".tflite"):
		return ml.BackendMobile, true
	case strings.HasSuffix(name, ".pb"):
		return ml.BackendFrozen, true
	default:
		return 0, false
	}
}

func single(b ml.Backend, l Location, source string) *Resolved {
	l.Role = RoleModelFile
	if b == ml.BackendDSP {
		l.Role = RoleLibrary
	}
	return &Resolved{
		Backend:   b,
		Locations: map[Role]Location{l.Role: l},
		Source:    source,
	}
}

// =============================================================================
// Klassifizierung
// =============================================================================

// candidates collects every location that could play a role.
type candidates map[Role][]Location

func (c candidates) add(role Role, l Location) {
	l.Role = role
	c[role] = append(c[role], l)
}

// isSharedLibrary reports plain shared libraries, excluding the runtime's
// own library.
func isSharedLibrary(name string) bool {
	if strings.HasPrefix(name, "libedgerun.") {
		return false
	}
	switch filepath.Ext(name) {
	case ".so", ".dylib", ".dll":
		return true
	default:
		return false
	}
}

// single-file engine candidates are kept apart from the shared roles
// until the backend is known.
type singles struct {
	mobile, frozen, dsp []Location
}

func scan(locs []Location) (candidates, singles) {
	c := make(candidates)
	var s singles
	for _, l := range locs {
		name := l.Label()
		switch {
		case strings.HasSuffix(name, suffixDSPModel):
			l.Role = RoleLibrary
			s.dsp = append(s.dsp, l)
		case name == skeletonName:
			c.add(RoleSkeleton, l)
		case strings.HasSuffix(name, ".params"):
			c.add(RoleWeights, l)
		case strings.HasSuffix(name, ".tflite"):
			l.Role = RoleModelFile
			s.mobile = append(s.mobile, l)
		case strings.HasSuffix(name, ".pb"):
			l.Role = RoleModelFile
			s.frozen = append(s.frozen, l)
		case strings.HasSuffix(name, ".ro"):
			c.add(RoleRelayExec, l)
		case strings.HasSuffix(name, ".meta"):
			c.add(RoleMetadata, l)
		case name == "version.json":
			c.add(RoleVersion, l)
		case name == "metadata.json":
			c.add(RoleMetadata, l)
		case strings.HasSuffix(name, ".json") && !slices.Contains(reservedJSON, name):
			c.add(RoleGraph, l)
		case isSharedLibrary(name):
			c.add(RoleLibrary, l)
		default:
			slog.Debug("ignoring artifact file", "name", name)
		}
	}
	return c, s
}

func classify(locs []Location, source string) (*Resolved, error) {
	c, s := scan(locs)

	var b ml.Backend
	switch {
	case len(c[RoleWeights]) > 0:
		b = ml.BackendGraph
	case len(s.mobile) > 0:
		b = ml.BackendMobile
		c[RoleModelFile] = s.mobile
	case len(s.frozen) > 0:
		b = ml.BackendFrozen
		c[RoleModelFile] = s.frozen
	case len(s.dsp) > 0:
		// the hexagon model is the dsp engine's compiled library
		b = ml.BackendDSP
		c[RoleLibrary] = s.dsp
	case len(c[RoleRelayExec]) > 0:
		b = ml.BackendRelay
	case len(c[RoleLibrary]) > 0:
		b = ml.BackendTree
	default:
		return nil, &ResolveError{Op: "resolve", Path: source, Err: ErrNoModelFiles}
	}

	return assemble(b, c, source)
}

// assemble picks exactly one location per role used by b.
func assemble(b ml.Backend, c candidates, source string) (*Resolved, error) {
	r := &Resolved{Backend: b, Locations: make(map[Role]Location), Source: source}

	for _, role := range RequiredRoles(b) {
		found := c[role]
		switch len(found) {
		case 0:
			return nil, &ResolveError{Op: "resolve", Path: source, Err: fmt.Errorf("%w: %s needs a %s", ErrMissingRole, b, role)}
		case 1:
			r.Locations[role] = found[0]
		default:
			return nil, &ResolveError{Op: "resolve", Path: source, Err: fmt.Errorf("%w: %d candidates for %s: %s", ErrAmbiguous, len(found), role, labels(found))}
		}
	}

	for _, role := range OptionalRoles(b) {
		found := c[role]
		switch len(found) {
		case 0:
		case 1:
			r.Locations[role] = found[0]
		default:
			return nil, &ResolveError{Op: "resolve", Path: source, Err: fmt.Errorf("%w: %d candidates for %s: %s", ErrAmbiguous, len(found), role, labels(found))}
		}
	}

	return r, nil
}

func labels(locs []Location) string {
	names := make([]string, len(locs))
	for i, l := range locs {
		names[i] = l.Label()
	}
	return strings.Join(names, ", ")
}

// =============================================================================
// Speicher-Elemente
// =============================================================================

// ResolveElements classifies a list of explicitly tagged in-memory (or
// path) elements. Roles are taken as given; the backend is derived from
// which roles are present.
func ResolveElements(elems ...Location) (*Resolved, error) {
	if len(elems) == 0 {
		return nil, &ResolveError{Op: "resolve elements", Err: ErrNoModelFiles}
	}

	c := make(candidates)
	for _, e := range elems {
		c.add(e.Role, e)
	}
	source := "elements(" + labels(elems) + ")"

	var b ml.Backend
	switch {
	case len(c[RoleModelFile]) > 0:
		name := c[RoleModelFile][0].Label()
		sb, ok := singleFileBackend(name)
		if !ok {
			return nil, &ResolveError{Op: "resolve elements", Path: name, Err: fmt.Errorf("%w: unknown model file type", ErrNoModelFiles)}
		}
		b = sb
		if b == ml.BackendDSP {
			c[RoleLibrary] = append(c[RoleLibrary], c[RoleModelFile]...)
			for i := range c[RoleLibrary] {
				c[RoleLibrary][i].Role = RoleLibrary
			}
		}
	case len(c[RoleRelayExec]) > 0:
		b = ml.BackendRelay
	case len(c[RoleGraph]) > 0 || len(c[RoleWeights]) > 0:
		b = ml.BackendGraph
	case len(c[RoleLibrary]) > 0:
		b = ml.BackendTree
		if strings.HasSuffix(c[RoleLibrary][0].Label(), suffixDSPModel) {
			b = ml.BackendDSP
		}
	default:
		return nil, &ResolveError{Op: "resolve elements", Path: source, Err: ErrNoModelFiles}
	}

	return assemble(b, c, source)
}
