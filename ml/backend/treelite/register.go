//go:build treelite && cgo

// MODUL: treelite/register
// ZWECK: Registriert den Treelite-Predictor in der globalen Model-Registry
// NEBENEFFEKTE: RegisterPredictor bei Package-Import
// ABHAENGIGKEITEN: model (DefaultRegistry), fs/artifact
// HINWEISE: Import mit _ "github.com/edgerun/edgerun/ml/backend/treelite"

package treelite

import (
	"fmt"

	"github.com/edgerun/edgerun/fs/artifact"
	"github.com/edgerun/edgerun/ml"
	"github.com/edgerun/edgerun/model"
)

func init() {
	model.DefaultRegistry.RegisterPredictor(open)
}

func open(r *artifact.Resolved, p model.OpenParams) (ml.Predictor, error) {
	l, ok := r.Location(artifact.RoleLibrary)
	if !ok {
		return nil, fmt.Errorf("%w: %s", artifact.ErrMissingRole, artifact.RoleLibrary)
	}
	if l.InMemory() {
		return nil, &Error{Op: "load", Err: fmt.Errorf("%w: in-memory %s", ml.ErrUnsupported, artifact.RoleLibrary)}
	}
	return Load(l.Path, p.Threads)
}
