package cmd

import (
	"fmt"
	"os"

	"github.com/notargets/tetrapart/internal/config"
	"github.com/notargets/tetrapart/internal/diag"
	"github.com/notargets/tetrapart/internal/linsys"
	"github.com/notargets/tetrapart/internal/meshio"
	"github.com/notargets/tetrapart/internal/meshmodel"
	"github.com/notargets/tetrapart/internal/pe"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Run the core pipeline and a Poisson-like demo solve with a Dirichlet boundary",
	Long: `
Runs partition/distribute/reorder exactly like "run", then assembles a
diagonal demo system (lhs=2 on the diagonal, rhs=0) over the renumbered
rows, applies a Dirichlet boundary condition at x <= bc-x-max, solves its
low-order (diagonal lowlhs) system, and reports diagnostics. The
SparseSolver path is not called. This exercises C6/C7 against every other
component's real output without requiring the input-deck grammar the spec
delegates elsewhere.`,
	RunE: solveE,
}

func init() {
	rootCmd.AddCommand(solveCmd)
	solveCmd.Flags().StringP("mesh", "i", "", "path to the binary mesh file (required)")
	solveCmd.Flags().IntP("npes", "p", 1, "number of simulated processing elements")
	solveCmd.Flags().Float64P("virtualization", "u", 0.0, "virtualization factor in [0,1]")
	solveCmd.Flags().StringP("algorithm", "a", "rcb", "partitioning algorithm: rcb, rib, hsfc, graph")
	solveCmd.Flags().Int("ncomp", 1, "number of scalar components per row")
	solveCmd.Flags().Float64("bc-x-max", 0.0, "nodes with x <= this value get a Dirichlet BC")
	solveCmd.Flags().Float64("bc-value", 0.0, "the Dirichlet value applied at boundary nodes")
	solveCmd.MarkFlagRequired("mesh")
}

func solveE(cmd *cobra.Command, args []string) error {
	if viper.GetBool("profile") {
		defer profile.Start(profile.CPUProfile).Stop()
	}

	meshPath, _ := cmd.Flags().GetString("mesh")
	algStr, _ := cmd.Flags().GetString("algorithm")
	npes, _ := cmd.Flags().GetInt("npes")
	u, _ := cmd.Flags().GetFloat64("virtualization")
	ncomp, _ := cmd.Flags().GetInt("ncomp")
	bcXMax, _ := cmd.Flags().GetFloat64("bc-x-max")
	bcValue, _ := cmd.Flags().GetFloat64("bc-value")

	alg, err := config.ParseAlgorithm(algStr)
	if err != nil {
		return err
	}
	cfg := &config.Config{MeshPath: meshPath, NumPE: npes, Virtualization: u, Algorithm: alg, Ncomp: ncomp}
	if _, err := ResolveAndApplyConfigFile(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	core, err := RunCore(cfg)
	if err != nil {
		return err
	}

	oldToNewX, _ := buildCoordLookup(core, meshPath)

	rt := pe.NewRuntime(cfg.NumPE)
	var contributions [][]linsys.Contribution
	for p, res := range core.Reorder {
		var batch []linsys.Contribution
		for _, newID := range res.NewIDs {
			row := uint64(newID) * uint64(cfg.Ncomp)
			if !core.Ranges[p].Contains(row) {
				continue // contributed by the PE that assigned this id
			}
			for c := 0; c < cfg.Ncomp; c++ {
				batch = append(batch,
					linsys.Contribution{Chare: p, Qty: linsys.QLhs, Row: row + uint64(c), Col: row + uint64(c), Vals: []float64{2}},
					linsys.Contribution{Chare: p, Qty: linsys.QLowLhs, Row: row + uint64(c), Col: row + uint64(c), Vals: []float64{1}},
					linsys.Contribution{Chare: p, Qty: linsys.QRhs, Row: row + uint64(c), Vals: []float64{0}},
					linsys.Contribution{Chare: p, Qty: linsys.QLowRhs, Row: row + uint64(c), Vals: []float64{0}},
				)
			}
		}
		contributions = append(contributions, batch)
	}

	systems := linsys.Assemble(rt, cfg.NumPE, core.Ranges, contributions)
	for p, res := range core.Reorder {
		sys := systems[p]
		for old, newID := range res.NewIDs {
			if x, ok := oldToNewX[old]; ok && x <= bcXMax {
				row := uint64(newID) * uint64(cfg.Ncomp)
				entries := make([]linsys.BCEntry, cfg.Ncomp)
				for c := range entries {
					entries[c] = linsys.BCEntry{Active: true, Value: bcValue}
				}
				for c := 0; c < cfg.Ncomp; c++ {
					sys.BC[row+uint64(c)] = entries
				}
			}
		}
		sys.ApplyBCs(core.Ranges[p], cfg.BCIncrementForm)
	}

	reducers := make([]*diag.Reducer, cfg.NumPE)
	for p, sys := range systems {
		xlow, err := sys.LowOrderSolve(core.Ranges[p])
		if err != nil {
			return err
		}
		reducers[p] = diag.NewReducer()
		for row, x := range xlow {
			reducers[p].Add(row, x, x, 1)
		}
	}

	norms := diag.AllReduce(rt, cfg.NumPE, reducers)
	fmt.Fprintf(os.Stdout, "solved %d rows across %d PEs: L2(x)=%.6g L2(err)=%.6g Linf(err)=%.6g\n",
		sumLens(core.Ranges), cfg.NumPE, norms.L2Numerical, norms.L2Error, norms.LInfError)
	return nil
}

func sumLens(ranges []meshmodel.RowRange) int {
	total := 0
	for _, r := range ranges {
		total += int(r.Len())
	}
	return total
}

// buildCoordLookup re-opens the mesh to map each old (file-id) node to its
// x coordinate, so the demo BC can select a boundary face by geometry
// exactly as spec.md's end-to-end scenario 2 does ("Dirichlet BC = 0 at
// x=0").
func buildCoordLookup(core *CoreResult, meshPath string) (map[meshmodel.NodeID]float64, bool) {
	out := map[meshmodel.NodeID]float64{}
	ids := map[meshmodel.NodeID]struct{}{}
	for _, res := range core.Reorder {
		for old := range res.NewIDs {
			ids[old] = struct{}{}
		}
	}
	r, err := meshio.Open(meshPath)
	if err != nil {
		return out, false
	}
	defer r.Close()
	coords, err := r.ReadNodeCoords(meshmodel.SortedNodeIDs(ids))
	if err != nil {
		return out, false
	}
	for id, c := range coords {
		out[id] = c[0]
	}
	return out, true
}
