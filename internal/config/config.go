// Package config holds the process-wide immutable configuration record and
// the error taxonomy the core reports through. A Config is built once at
// startup from CLI flags (and optional environment/file overrides) and is
// thereafter passed by pointer; nothing in the core mutates it.
package config

import "fmt"

// Algorithm selects the partitioning adapter consulted once by C2.
type Algorithm int

const (
	RCB Algorithm = iota
	RIB
	HSFC
	Graph
)

func (a Algorithm) String() string {
	switch a {
	case RCB:
		return "rcb"
	case RIB:
		return "rib"
	case HSFC:
		return "hsfc"
	case Graph:
		return "graph"
	default:
		return "unknown"
	}
}

// ParseAlgorithm maps a CLI/config string to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "rcb", "RCB":
		return RCB, nil
	case "rib", "RIB":
		return RIB, nil
	case "hsfc", "HSFC":
		return HSFC, nil
	case "graph", "GRAPH":
		return Graph, nil
	default:
		return 0, &ConfigError{Reason: fmt.Sprintf("unsupported partitioning algorithm %q", s)}
	}
}

// Config is the immutable configuration record described in DESIGN NOTES
// ("Global mutable configuration" -> replace with an immutable record built
// once and passed by reference). Every field here is read-only once cmd has
// built it from flags, applied any config-file overrides, and validated it.
type Config struct {
	// MeshPath is the input mesh file passed with -i.
	MeshPath string
	// NumPE is the number of processing elements (goroutine-simulated PEs).
	NumPE int
	// Virtualization is u in [0,1]; nchare is derived from it per-mesh once
	// the element count is known (see partition.Nchare).
	Virtualization float64
	// Algorithm selects the C2 partitioner adapter.
	Algorithm Algorithm
	// Ncomp is the number of scalar components carried per mesh row.
	Ncomp int
	// Refine requests one pass of uniform 1->8 tetrahedral refinement (C4).
	Refine bool
	// BCIncrementForm selects the rhs-at-BC-rows policy (spec.md S9 open
	// question): false sets rhs to the BC value, true sets it to zero
	// (increment-form solves). See DESIGN.md for the resolution rationale.
	BCIncrementForm bool
	// Feedback enables progress-reporting log lines during partitioning.
	Feedback bool
	// Profile enables a CPU profile across the partition+solve run.
	Profile bool
}

// Validate enforces the ConfigError edge cases that must be caught before
// any parallel work begins (spec.md S7).
func (c *Config) Validate() error {
	if c.NumPE < 1 {
		return &ConfigError{Reason: "number of PEs must be at least 1"}
	}
	if c.Virtualization < 0 || c.Virtualization > 1 {
		return &ConfigError{Reason: fmt.Sprintf("virtualization factor %g out of range [0,1]", c.Virtualization)}
	}
	if c.Ncomp < 1 {
		return &ConfigError{Reason: "number of components must be at least 1"}
	}
	return nil
}

// Category is implemented by every error the core raises so callers can
// uniformly print "category: detail" as specified in spec.md S7.
type Category interface {
	error
	Category() string
}

// InputError reports a mesh file that is missing, corrupt, or inconsistent
// with its declared counts.
type InputError struct {
	Path   string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("InputError: %s: %s", e.Path, e.Reason)
}
func (e *InputError) Category() string { return "InputError" }

// ConfigError reports a configuration that cannot be honored, e.g. a
// virtualization factor that would overdecompose the mesh.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string    { return "ConfigError: " + e.Reason }
func (e *ConfigError) Category() string { return "ConfigError" }

// OverDecomposition is the specific ConfigError raised when nchare/npes is
// so small a chare would own zero elements (spec.md S4.2).
type OverDecomposition struct {
	Virtualization float64
	NChare         int
	NElements      int
}

func (e *OverDecomposition) Error() string {
	return fmt.Sprintf(
		"ConfigError: OverDecomposition: virtualization factor %g yields %d chares "+
			"for %d elements, which would leave at least one chare with no elements",
		e.Virtualization, e.NChare, e.NElements)
}
func (e *OverDecomposition) Category() string { return "ConfigError" }

// InvariantViolation reports a received message referring to an id/edge the
// receiver does not own, a failed import-map equality check, or a BC table
// conflict. Fatal: the job aborts with the offending datum and the PE that
// detected it.
type InvariantViolation struct {
	PE     int
	Datum  string
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("InvariantViolation: PE %d: %s: %s", e.PE, e.Datum, e.Reason)
}
func (e *InvariantViolation) Category() string { return "InvariantViolation" }

// SolverError reports the external sparse solver's non-convergence or
// numerical breakdown. The core does not retry; the driver may.
type SolverError struct {
	Reason string
}

func (e *SolverError) Error() string    { return "SolverError: " + e.Reason }
func (e *SolverError) Category() string { return "SolverError" }
