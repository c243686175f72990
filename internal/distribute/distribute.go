// Package distribute implements C3, the chare-node distributor: each PE
// groups its local elements by chare id, keeps the entries for chares it
// owns, and exports the rest — batched one message per destination PE —
// to the owning PE. It is a direct generalization of
// Partitioner::distribute/add/recv (Inciter/Partitioner.h) from a single
// Charm++ group method set to a pe.Runtime message exchange.
package distribute

import (
	"sort"

	"github.com/notargets/tetrapart/internal/meshmodel"
	"github.com/notargets/tetrapart/internal/pe"
)

// addMsg carries one PE's export batch: for each chare id the sender does
// not own, the file-ids its local elements contributed to that chare.
type addMsg struct {
	pe.Envelope
	Nodes map[meshmodel.ChareID][]meshmodel.NodeID
}

// recvMsg acknowledges that an addMsg has been merged into the receiver's
// own chare->nodes map.
type recvMsg struct {
	pe.Envelope
}

// Result is a PE's final chare->file-ids map restricted to the chares it
// owns, ready for C4/C5.
type Result struct {
	Nodes map[meshmodel.ChareID][]meshmodel.NodeID
}

// Distribute runs C3 to completion across every PE in rt. localChareNodes
// is, per PE, the chare->file-ids map built from its local element
// ownership (spec.md S4.3's chareNodes output); nchare/npes determine
// chare ownership via meshmodel.PEOf.
//
// Distribute blocks until every PE's export batch has been acknowledged,
// mirroring the host-side barrier the Charm++ Partitioner enforces by
// requiring every branch's signal2host_distributed before advancing.
func Distribute(rt *pe.Runtime, npes, nchare int, localChareNodes []map[meshmodel.ChareID][]meshmodel.NodeID) []Result {
	results := make([]Result, npes)
	for p := range results {
		results[p].Nodes = map[meshmodel.ChareID][]meshmodel.NodeID{}
	}

	rt.RunPhase(func(mype int, inbox <-chan any, done func()) {
		owned := results[mype].Nodes

		export := map[int]map[meshmodel.ChareID][]meshmodel.NodeID{}
		for chareID, nodes := range localChareNodes[mype] {
			owner := meshmodel.PEOf(chareID, nchare, npes)
			if owner == mype {
				owned[chareID] = append(owned[chareID], nodes...)
				continue
			}
			if export[owner] == nil {
				export[owner] = map[meshmodel.ChareID][]meshmodel.NodeID{}
			}
			export[owner][chareID] = append(export[owner][chareID], nodes...)
		}

		pending := len(export)
		for dst, batch := range export {
			rt.Send(dst, addMsg{Envelope: pe.Envelope{FromPE: mype}, Nodes: batch})
		}
		if pending == 0 {
			done()
		}

		for msg := range inbox {
			if pe.IsPhaseDone(msg) {
				return
			}
			switch m := msg.(type) {
			case addMsg:
				for chareID, nodes := range m.Nodes {
					owned[chareID] = append(owned[chareID], nodes...)
				}
				rt.Send(m.From(), recvMsg{pe.Envelope{FromPE: mype}})
			case recvMsg:
				pending--
				if pending == 0 {
					done()
				}
			}
		}
	})

	return results
}

// SortedChareIDs is a small determinism helper used by callers that need
// to iterate a PE's owned chares in a stable order (logging, tests).
func SortedChareIDs(nodes map[meshmodel.ChareID][]meshmodel.NodeID) []meshmodel.ChareID {
	out := make([]meshmodel.ChareID, 0, len(nodes))
	for c := range nodes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
