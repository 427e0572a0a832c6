// config_features.go - Engine-Tuning und Parallelitaet
//
// Dieses Modul enthaelt:
// - Thread- und Affinitaets-Einstellungen fuer neu erzeugte Modelle
// - Pfad zur nativen Tree-Engine Runtime
// - Parallelitaets-Einstellungen des Runners
package envconfig

// =============================================================================
// Engine-Tuning
// =============================================================================

var (
	// NumThreads setzt die Thread-Anzahl fuer neu erzeugte Modelle (0 = Engine-Default)
	NumThreads = Uint("EDGERUN_NUM_THREADS", 0)

	// CPUAffinity bindet Engine-Threads an CPU-Kerne, sofern die Engine das kann
	CPUAffinity = Bool("EDGERUN_CPU_AFFINITY")
)

// =============================================================================
// Native Libraries
// =============================================================================

var (
	// TreeliteLibrary ueberschreibt den Pfad zur Predictor-Runtime der Tree-Engine
	TreeliteLibrary = String("EDGERUN_TREELITE_LIBRARY")
)

// =============================================================================
// Parallelitaets-Einstellungen
// =============================================================================

var (
	// NumParallel begrenzt gleichzeitige Run-Aufrufe ueber alle Handles
	// Konfigurierbar via EDGERUN_NUM_PARALLEL
	NumParallel = Uint("EDGERUN_NUM_PARALLEL", 4)

	// MaxModels begrenzt die Anzahl gleichzeitig geladener Modelle (0 = unbegrenzt)
	// Konfigurierbar via EDGERUN_MAX_LOADED_MODELS
	MaxModels = Uint("EDGERUN_MAX_LOADED_MODELS", 0)
)
