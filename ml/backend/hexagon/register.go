//go:build hexagon && cgo

// MODUL: hexagon/register
// ZWECK: Registriert die DSP-Engine in der globalen Model-Registry
// NEBENEFFEKTE: RegisterEngine bei Package-Import
// ABHAENGIGKEITEN: model (DefaultRegistry), fs/artifact
// HINWEISE: Import mit _ "github.com/edgerun/edgerun/ml/backend/hexagon"

package hexagon

import (
	"fmt"
	"path/filepath"

	"github.com/edgerun/edgerun/fs/artifact"
	"github.com/edgerun/edgerun/ml"
	"github.com/edgerun/edgerun/model"
)

func init() {
	model.DefaultRegistry.RegisterEngine(ml.BackendDSP, open)
}

func open(r *artifact.Resolved, _ model.OpenParams) (ml.Engine, error) {
	lib, ok := r.Location(artifact.RoleLibrary)
	if !ok {
		return nil, fmt.Errorf("%w: %s", artifact.ErrMissingRole, artifact.RoleLibrary)
	}

	locs := []artifact.Location{lib}
	skel, ok := r.Location(artifact.RoleSkeleton)
	if ok {
		locs = append(locs, skel)
	}
	for _, l := range locs {
		if l.InMemory() {
			return nil, &Error{Op: "load", Err: fmt.Errorf("%w: in-memory %s", ml.ErrUnsupported, l.Role)}
		}
	}

	// the skeleton library is found by the DSP loader through its directory
	dir := ""
	if ok {
		dir = filepath.Dir(skel.Path)
	}
	return Load(lib.Path, dir)
}
