// backend.go - Backend-Tags der unterstuetzten Execution-Engines
// Jeder Tag hat genau ein Label; neue Tags muessen in allen Switches ergaenzt werden.
package ml

import (
	"fmt"
	"strings"
)

// Backend identifies the execution engine family a model artifact targets.
type Backend int

const (
	BackendGraph Backend = iota
	BackendTree
	BackendMobile
	BackendFrozen
	BackendDSP
	BackendRelay
	BackendPipeline
)

// Backends lists every backend tag in declaration order.
func Backends() []Backend {
	return []Backend{
		BackendGraph,
		BackendTree,
		BackendMobile,
		BackendFrozen,
		BackendDSP,
		BackendRelay,
		BackendPipeline,
	}
}

func (b Backend) String() string {
	switch b {
	case BackendGraph:
		return "graph"
	case BackendTree:
		return "tree"
	case BackendMobile:
		return "mobile"
	case BackendFrozen:
		return "frozen-graph"
	case BackendDSP:
		return "dsp"
	case BackendRelay:
		return "relay-vm"
	case BackendPipeline:
		return "pipeline"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

func ParseBackend(s string) (Backend, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, b := range Backends() {
		if b.String() == s {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown backend %q", s)
}

func (b Backend) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Backend) UnmarshalText(text []byte) error {
	v, err := ParseBackend(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}
