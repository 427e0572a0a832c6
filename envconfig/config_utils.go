// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - BoolWithDefault/Bool: Boolean-Getter mit Default-Wert
// - String: String-Getter
// - Uint: Integer-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// =============================================================================
// Boolean-Getter
// =============================================================================

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// =============================================================================
// String-Getter
// =============================================================================

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// =============================================================================
// Integer-Getter
// =============================================================================

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"EDGERUN_DEBUG":             {"EDGERUN_DEBUG", LogLevel(), "Show additional debug information (e.g. EDGERUN_DEBUG=1)"},
		"EDGERUN_HOST":              {"EDGERUN_HOST", Host(), "IP Address for the edgerun server (default 127.0.0.1:11500)"},
		"EDGERUN_ORIGINS":           {"EDGERUN_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		"EDGERUN_DEVICE":            {"EDGERUN_DEVICE", Device(), "Device for newly created models: cpu, gpu or opencl (default cpu)"},
		"EDGERUN_NUM_THREADS":       {"EDGERUN_NUM_THREADS", NumThreads(), "Engine thread count for newly created models (0 = engine default)"},
		"EDGERUN_CPU_AFFINITY":      {"EDGERUN_CPU_AFFINITY", CPUAffinity(), "Pin engine threads to CPU cores where supported"},
		"EDGERUN_NUM_PARALLEL":      {"EDGERUN_NUM_PARALLEL", NumParallel(), "Maximum number of concurrent model runs"},
		"EDGERUN_MAX_LOADED_MODELS": {"EDGERUN_MAX_LOADED_MODELS", MaxModels(), "Maximum number of loaded models (0 = unlimited)"},
		"EDGERUN_TREELITE_LIBRARY":  {"EDGERUN_TREELITE_LIBRARY", TreeliteLibrary(), "Path to the tree-engine predictor runtime library"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
