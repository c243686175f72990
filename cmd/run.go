package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/notargets/tetrapart/internal/config"
	"github.com/notargets/tetrapart/internal/distribute"
	"github.com/notargets/tetrapart/internal/meshio"
	"github.com/notargets/tetrapart/internal/meshmodel"
	"github.com/notargets/tetrapart/internal/partition"
	"github.com/notargets/tetrapart/internal/pe"
	"github.com/notargets/tetrapart/internal/refine"
	"github.com/notargets/tetrapart/internal/reorder"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Partition, optionally refine, and renumber a mesh",
	RunE:  runE,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("mesh", "i", "", "path to the binary mesh file (required)")
	runCmd.Flags().IntP("npes", "p", 1, "number of simulated processing elements")
	runCmd.Flags().Float64P("virtualization", "u", 0.0, "virtualization factor in [0,1]")
	runCmd.Flags().StringP("algorithm", "a", "rcb", "partitioning algorithm: rcb, rib, hsfc, graph")
	runCmd.Flags().Int("ncomp", 1, "number of scalar components per row")
	runCmd.Flags().Bool("refine", false, "perform one pass of uniform 1->8 refinement")
	runCmd.Flags().Bool("bc-increment-form", false, "rhs at BC rows is zero (increment form) instead of the BC value")
	runCmd.Flags().Bool("feedback", false, "print progress lines during partitioning")
	runCmd.MarkFlagRequired("mesh")

	viper.BindPFlag("npes", runCmd.Flags().Lookup("npes"))
	viper.BindPFlag("virtualization", runCmd.Flags().Lookup("virtualization"))
	viper.BindPFlag("algorithm", runCmd.Flags().Lookup("algorithm"))
	viper.BindPFlag("ncomp", runCmd.Flags().Lookup("ncomp"))
}

func runE(cmd *cobra.Command, args []string) error {
	if viper.GetBool("profile") {
		defer profile.Start(profile.CPUProfile).Stop()
	}

	meshPath, _ := cmd.Flags().GetString("mesh")
	algStr, _ := cmd.Flags().GetString("algorithm")
	refineMesh, _ := cmd.Flags().GetBool("refine")
	feedback, _ := cmd.Flags().GetBool("feedback")

	alg, err := config.ParseAlgorithm(algStr)
	if err != nil {
		return err
	}

	cfg := &config.Config{
		MeshPath:        meshPath,
		NumPE:           viper.GetInt("npes"),
		Virtualization:  viper.GetFloat64("virtualization"),
		Algorithm:       alg,
		Ncomp:           viper.GetInt("ncomp"),
		Refine:          refineMesh,
		BCIncrementForm: cmd.Flags().Changed("bc-increment-form"),
		Feedback:        feedback,
		Profile:         viper.GetBool("profile"),
	}

	if path, err := ResolveAndApplyConfigFile(cfg); err != nil {
		return err
	} else if path != "" && cfg.Feedback {
		log.Printf("tetrapart: loaded overrides from %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	result, err := RunCore(cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "partitioned %d elements into %d chares across %d PEs\n",
		result.NumElements, result.NChare, cfg.NumPE)
	for p, r := range result.Ranges {
		fmt.Fprintf(os.Stdout, "  PE %d: rows [%d,%d)\n", p, r.Lower, r.Upper)
	}
	return nil
}

// ResolveAndApplyConfigFile loads the optional YAML overrides file (if one
// is configured or discoverable) and applies it to cfg.
func ResolveAndApplyConfigFile(cfg *config.Config) (string, error) {
	path, err := config.ResolveConfigPath(cfgFile)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &config.InputError{Path: path, Reason: err.Error()}
	}
	overrides, err := config.ParseFileOverrides(data)
	if err != nil {
		return "", err
	}
	if err := overrides.Apply(cfg); err != nil {
		return "", err
	}
	return path, nil
}

// CoreResult summarizes one end-to-end C1-C5 run for reporting.
type CoreResult struct {
	NumElements int
	NChare      int
	Ranges      []meshmodel.RowRange
	Reorder     []reorder.Result
	Distributed []distribute.Result
}

// RunCore drives C1 through C5 over cfg.NumPE simulated PEs against a
// single mesh file, mirroring the host-side Main chare's sequencing in the
// original source (open -> partition -> distribute -> refine -> reorder).
// It stops short of C6/C7, which require a caller-supplied BC table and
// source term the CLI's demo config file does not attempt to grammar-ize
// (spec.md's input-deck grammar is explicitly out of scope).
func RunCore(cfg *config.Config) (*CoreResult, error) {
	r, err := meshio.Open(cfg.MeshPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	nel := int(r.Header.TotalElements())
	nchare := partition.Nchare(cfg.Virtualization, nel, cfg.NumPE)

	adapter := partition.New(cfg.Algorithm)
	localChareNodes := make([]map[meshmodel.ChareID][]meshmodel.NodeID, cfg.NumPE)
	localIDSets := make([]map[meshmodel.NodeID]struct{}, cfg.NumPE)

	for p := 0; p < cfg.NumPE; p++ {
		from, till := meshio.Slab(uint64(nel), cfg.NumPE, p)
		tetinpoel, err := r.ReadElementBlock(from, till)
		if err != nil {
			return nil, err
		}
		centroids, err := buildCentroids(r, tetinpoel, from)
		if err != nil {
			return nil, err
		}
		chares, err := adapter.Assign(centroids, tetinpoel, nchare)
		if err != nil {
			return nil, err
		}

		chareNodes := map[meshmodel.ChareID][]meshmodel.NodeID{}
		localIDs := map[meshmodel.NodeID]struct{}{}
		for e, c := range chares {
			for k := 0; k < 4; k++ {
				id := tetinpoel[e*4+k]
				chareNodes[c] = append(chareNodes[c], id)
				localIDs[id] = struct{}{}
			}
		}
		localChareNodes[p] = chareNodes
		localIDSets[p] = localIDs

		if cfg.Feedback {
			log.Printf("tetrapart: PE %d read elements [%d,%d), assigned to %d chares", p, from, till, len(chares))
		}
	}

	rt := pe.NewRuntime(cfg.NumPE)
	distResults := distribute.Distribute(rt, cfg.NumPE, nchare, localChareNodes)

	chares := make([]map[meshmodel.ChareID]*meshmodel.ChareMesh, cfg.NumPE)
	for p := 0; p < cfg.NumPE; p++ {
		chares[p] = map[meshmodel.ChareID]*meshmodel.ChareMesh{}
		for c, nodes := range distResults[p].Nodes {
			cm := meshmodel.NewChareMesh(c)
			cm.Tets = nodes
			chares[p][c] = cm
		}
	}

	localIDs := make([]map[meshmodel.NodeID]struct{}, cfg.NumPE)
	localEdges := make([]map[meshmodel.Edge]struct{}, cfg.NumPE)
	for p := 0; p < cfg.NumPE; p++ {
		localIDs[p] = map[meshmodel.NodeID]struct{}{}
		localEdges[p] = map[meshmodel.Edge]struct{}{}
		for _, cm := range chares[p] {
			for id := range cm.NodeSet() {
				localIDs[p][id] = struct{}{}
			}
		}
	}

	if cfg.Refine {
		allIDs, err := allRequiredIDs(chares)
		if err != nil {
			return nil, err
		}
		coords, err := r.ReadNodeCoords(allIDs)
		if err != nil {
			return nil, err
		}
		// Each PE gets a disjoint slice of the provisional edge-node id
		// space so the PEs' writes into the shared coords table never
		// collide; stride is a generous upper bound (6 edges/tet) on how
		// many provisional ids any one PE's local elements could mint.
		base := meshmodel.NodeID(r.Header.NumNodes)
		stride := meshmodel.NodeID(nel)*6 + 1
		for p := 0; p < cfg.NumPE; p++ {
			ref := refine.NewRefiner(base + meshmodel.NodeID(p)*stride)
			edgeNodes := ref.Refine(chares[p], coords)
			for e := range edgeNodes {
				localEdges[p][e] = struct{}{}
			}
		}
	}

	rn := &reorder.Renumberer{Ncomp: cfg.Ncomp}
	reorderResults, err := rn.Run(rt, cfg.NumPE, localIDs, localEdges)
	if err != nil {
		return nil, err
	}

	ranges := make([]meshmodel.RowRange, cfg.NumPE)
	for p, res := range reorderResults {
		ranges[p] = res.Range
		for _, cm := range chares[p] {
			for id := range cm.NodeSet() {
				if nid, ok := res.NewIDs[id]; ok {
					cm.OldToNew[id] = nid
				}
			}
			for e := range cm.EdgeToNew {
				if nid, ok := res.NewEdgeIDs[e]; ok {
					cm.EdgeToNew[e] = nid
				}
			}
		}
	}

	return &CoreResult{
		NumElements: nel,
		NChare:      nchare,
		Ranges:      ranges,
		Reorder:     reorderResults,
		Distributed: distResults,
	}, nil
}

func buildCentroids(r *meshio.Reader, tetinpoel []meshmodel.NodeID, firstElem uint64) ([]partition.Centroid, error) {
	ids := map[meshmodel.NodeID]struct{}{}
	for _, id := range tetinpoel {
		ids[id] = struct{}{}
	}
	coords, err := r.ReadNodeCoords(meshmodel.SortedNodeIDs(ids))
	if err != nil {
		return nil, err
	}
	nel := len(tetinpoel) / 4
	out := make([]partition.Centroid, nel)
	for e := 0; e < nel; e++ {
		var c meshmodel.Coord
		for k := 0; k < 4; k++ {
			p := coords[tetinpoel[e*4+k]]
			c[0] += p[0] / 4
			c[1] += p[1] / 4
			c[2] += p[2] / 4
		}
		out[e] = partition.Centroid{GElemID: int(firstElem) + e, Coord: c}
	}
	return out, nil
}

func allRequiredIDs(chares []map[meshmodel.ChareID]*meshmodel.ChareMesh) ([]meshmodel.NodeID, error) {
	seen := map[meshmodel.NodeID]struct{}{}
	for _, byChare := range chares {
		for _, cm := range byChare {
			for id := range cm.NodeSet() {
				seen[id] = struct{}{}
			}
		}
	}
	return meshmodel.SortedNodeIDs(seen), nil
}
