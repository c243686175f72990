// Package reorder implements C5, the distributed renumberer: the S0-S5
// state machine of spec.md S4.5 that assigns every node and edge-node a
// globally unique linear-id, contiguous per PE, via a broadcast query/
// mask exchange followed by a request/reply protocol. It is a direct
// generalization of Partitioner::flatten/gather/query/mask/offset/reorder/
// prepare/neworder (Inciter/Partitioner.h) to also carry edges: the
// source's m_ed/m_ecommunication/m_newed fields are exercised here instead
// of left dead behind the original's commented-out sharededges handler —
// see spec.md S4.4/S9's resolution of that open question.
package reorder

import (
	"sort"

	"github.com/notargets/tetrapart/internal/config"
	"github.com/notargets/tetrapart/internal/meshmodel"
	"github.com/notargets/tetrapart/internal/pe"
)

// queryMsg is S1's broadcast: "here are all the file-ids and edges I hold;
// tell me which of them you also hold."
type queryMsg struct {
	pe.Envelope
	IDs   []meshmodel.NodeID
	Edges []meshmodel.Edge
}

// maskMsg is the reply to queryMsg: the subset of the query the replier
// also holds.
type maskMsg struct {
	pe.Envelope
	IDs   []meshmodel.NodeID
	Edges []meshmodel.Edge
}

// offsetMsg is S2's broadcast of a PE's uniquely-owned count, used by
// every receiver with a higher index than the sender to grow its own
// prefix-sum start.
type offsetMsg struct {
	pe.Envelope
	Count uint64
}

// requestMsg asks the owning PE for new ids, sent once a PE knows (from
// S1's mask finalize) which PE owns which of its non-owned ids/edges.
type requestMsg struct {
	pe.Envelope
	IDs   []meshmodel.NodeID
	Edges []meshmodel.Edge
}

// neworderMsg is the owner's reply to requestMsg.
type neworderMsg struct {
	pe.Envelope
	IDs   map[meshmodel.NodeID]meshmodel.NodeID
	Edges map[meshmodel.Edge]meshmodel.NodeID
}

// Result is one PE's final renumbering outcome.
type Result struct {
	// NewIDs maps every file-id this PE's chares reference to its final
	// linear-id, whether assigned locally or received from an owner.
	NewIDs map[meshmodel.NodeID]meshmodel.NodeID
	// NewEdgeIDs is NewIDs' counterpart for refined edges.
	NewEdgeIDs map[meshmodel.Edge]meshmodel.NodeID
	// Range is this PE's row range in linear-id*ncomp row space (C6).
	Range meshmodel.RowRange
}

type pendingRequest struct {
	fromPE int
	ids    []meshmodel.NodeID
	edges  []meshmodel.Edge
}

// Renumberer runs C5 to completion over an already-flattened, already
// query-able local id/edge set per PE (S0 Flatten is the caller's
// responsibility: build localIDs/localEdges from the chare connectivity
// C3/C4 produced).
type Renumberer struct {
	Ncomp int
}

// Run executes S1-S5 across every PE in rt and returns each PE's Result.
// localIDs/localEdges are, per PE, the set of file-ids/edges its chares
// reference (S0's output); Run does not mutate them.
func (rn *Renumberer) Run(rt *pe.Runtime, npes int, localIDs []map[meshmodel.NodeID]struct{}, localEdges []map[meshmodel.Edge]struct{}) ([]Result, error) {
	results := make([]Result, npes)
	fatal := make([]error, npes)

	rt.RunPhase(func(mype int, inbox <-chan any, done func()) {
		myIDs := localIDs[mype]
		myEdges := localEdges[mype]

		newIDs := map[meshmodel.NodeID]meshmodel.NodeID{}
		newEdgeIDs := map[meshmodel.Edge]meshmodel.NodeID{}

		// S1 Query.
		idList := meshmodel.SortedNodeIDs(myIDs)
		edgeList := sortedEdges(myEdges)
		rt.Broadcast(queryMsg{Envelope: pe.Envelope{FromPE: mype}, IDs: idList, Edges: edgeList})

		nquery := 0
		tempIDComm := map[int]map[meshmodel.NodeID]struct{}{}
		tempEdgeComm := map[int]map[meshmodel.Edge]struct{}{}

		// Populated once S1 finalizes (mask replies from all PEs arrived).
		var commMap meshmodel.CommMap
		var edgeCommMap meshmodel.EdgeCommMap
		ownedIDs := map[meshmodel.NodeID]struct{}{}
		ownedEdges := map[meshmodel.Edge]struct{}{}
		s1Done := false

		noffset := 0
		start := uint64(0)
		var lower uint64
		var uniqueOwnedCount uint64
		s2Done := false
		assignDone := false
		var upper uint64

		var pending []pendingRequest

		maybeReady := func() {
			if !assignDone {
				return
			}
			if len(newIDs) == len(myIDs) && len(newEdgeIDs) == len(myEdges) {
				results[mype].Range = meshmodel.RowRange{
					Lower: lower * uint64(rn.Ncomp),
					Upper: upper * uint64(rn.Ncomp),
				}
				results[mype].NewIDs = newIDs
				results[mype].NewEdgeIDs = newEdgeIDs
				done()
			}
		}

		runS3 := func() {
			lower = start
			for _, id := range meshmodel.SortedNodeIDs(ownedIDs) {
				newIDs[id] = meshmodel.NodeID(start)
				start++
			}
			for _, e := range sortedEdges(ownedEdges) {
				newEdgeIDs[e] = meshmodel.NodeID(start)
				start++
			}
			upper = start
			assignDone = true
			for _, r := range pending {
				reply := neworderMsg{
					Envelope: pe.Envelope{FromPE: mype},
					IDs:      map[meshmodel.NodeID]meshmodel.NodeID{},
					Edges:    map[meshmodel.Edge]meshmodel.NodeID{},
				}
				for _, id := range r.ids {
					nid, ok := newIDs[id]
					if !ok {
						fatal[mype] = &config.InvariantViolation{PE: mype, Datum: idString(id), Reason: "requested a node id we do not own"}
						continue
					}
					reply.IDs[id] = nid
				}
				for _, e := range r.edges {
					nid, ok := newEdgeIDs[e]
					if !ok {
						fatal[mype] = &config.InvariantViolation{PE: mype, Datum: edgeString(e), Reason: "requested an edge we do not own"}
						continue
					}
					reply.Edges[e] = nid
				}
				rt.Send(r.fromPE, reply)
			}
			pending = nil
			maybeReady()
		}

		finalizeS1 := func() {
			commMap = dedupOwners(tempIDComm)
			edgeCommMap = dedupEdgeOwners(tempEdgeComm)

			covered := map[meshmodel.NodeID]struct{}{}
			for _, ids := range commMap {
				for id := range ids {
					covered[id] = struct{}{}
				}
			}
			for id := range myIDs {
				if _, got := covered[id]; !got {
					ownedIDs[id] = struct{}{}
				}
			}
			coveredEdges := map[meshmodel.Edge]struct{}{}
			for _, edges := range edgeCommMap {
				for e := range edges {
					coveredEdges[e] = struct{}{}
				}
			}
			for e := range myEdges {
				if _, got := coveredEdges[e]; !got {
					ownedEdges[e] = struct{}{}
				}
			}
			uniqueOwnedCount = uint64(len(ownedIDs) + len(ownedEdges))
			s1Done = true

			for ownerPE, ids := range commMap {
				rt.Send(ownerPE, requestMsg{Envelope: pe.Envelope{FromPE: mype}, IDs: meshmodel.SortedNodeIDs(ids)})
			}
			for ownerPE, edges := range edgeCommMap {
				rt.Send(ownerPE, requestMsg{Envelope: pe.Envelope{FromPE: mype}, Edges: sortedEdges(edges)})
			}
			rt.Broadcast(offsetMsg{Envelope: pe.Envelope{FromPE: mype}, Count: uniqueOwnedCount})
		}

		for msg := range inbox {
			if pe.IsPhaseDone(msg) {
				return
			}
			switch m := msg.(type) {
			case queryMsg:
				reply := maskMsg{Envelope: pe.Envelope{FromPE: mype}}
				for _, id := range m.IDs {
					if _, ok := myIDs[id]; ok {
						reply.IDs = append(reply.IDs, id)
					}
				}
				for _, e := range m.Edges {
					if _, ok := myEdges[e]; ok {
						reply.Edges = append(reply.Edges, e)
					}
				}
				rt.Send(m.From(), reply)

			case maskMsg:
				from := m.From()
				if from < mype {
					if len(m.IDs) > 0 {
						if tempIDComm[from] == nil {
							tempIDComm[from] = map[meshmodel.NodeID]struct{}{}
						}
						for _, id := range m.IDs {
							tempIDComm[from][id] = struct{}{}
						}
					}
					if len(m.Edges) > 0 {
						if tempEdgeComm[from] == nil {
							tempEdgeComm[from] = map[meshmodel.Edge]struct{}{}
						}
						for _, e := range m.Edges {
							tempEdgeComm[from][e] = struct{}{}
						}
					}
				}
				nquery++
				if nquery == npes && !s1Done {
					finalizeS1()
				}

			case offsetMsg:
				if m.From() < mype {
					start += m.Count
				}
				noffset++
				if noffset == npes && !s2Done {
					s2Done = true
					runS3()
				}

			case requestMsg:
				if assignDone {
					reply := neworderMsg{
						Envelope: pe.Envelope{FromPE: mype},
						IDs:      map[meshmodel.NodeID]meshmodel.NodeID{},
						Edges:    map[meshmodel.Edge]meshmodel.NodeID{},
					}
					for _, id := range m.IDs {
						nid, ok := newIDs[id]
						if !ok {
							fatal[mype] = &config.InvariantViolation{PE: mype, Datum: idString(id), Reason: "requested a node id we do not own"}
							continue
						}
						reply.IDs[id] = nid
					}
					for _, e := range m.Edges {
						nid, ok := newEdgeIDs[e]
						if !ok {
							fatal[mype] = &config.InvariantViolation{PE: mype, Datum: edgeString(e), Reason: "requested an edge we do not own"}
							continue
						}
						reply.Edges[e] = nid
					}
					rt.Send(m.From(), reply)
				} else {
					pending = append(pending, pendingRequest{fromPE: m.From(), ids: m.IDs, edges: m.Edges})
				}

			case neworderMsg:
				for id, nid := range m.IDs {
					newIDs[id] = nid
				}
				for e, nid := range m.Edges {
					newEdgeIDs[e] = nid
				}
				maybeReady()
			}
		}
	})

	for p, err := range fatal {
		if err != nil {
			return nil, pe.Fatal(p, err)
		}
	}
	return results, nil
}

// dedupOwners implements the ordering rule of spec.md S4.5: for each id,
// keep only the lowest PE that reported holding it.
func dedupOwners(temp map[int]map[meshmodel.NodeID]struct{}) meshmodel.CommMap {
	pes := make([]int, 0, len(temp))
	for p := range temp {
		pes = append(pes, p)
	}
	sort.Ints(pes)
	claimed := map[meshmodel.NodeID]struct{}{}
	out := meshmodel.CommMap{}
	for _, p := range pes {
		for id := range temp[p] {
			if _, taken := claimed[id]; taken {
				continue
			}
			claimed[id] = struct{}{}
			if out[p] == nil {
				out[p] = map[meshmodel.NodeID]struct{}{}
			}
			out[p][id] = struct{}{}
		}
	}
	return out
}

func dedupEdgeOwners(temp map[int]map[meshmodel.Edge]struct{}) meshmodel.EdgeCommMap {
	pes := make([]int, 0, len(temp))
	for p := range temp {
		pes = append(pes, p)
	}
	sort.Ints(pes)
	claimed := map[meshmodel.Edge]struct{}{}
	out := meshmodel.EdgeCommMap{}
	for _, p := range pes {
		for e := range temp[p] {
			if _, taken := claimed[e]; taken {
				continue
			}
			claimed[e] = struct{}{}
			if out[p] == nil {
				out[p] = map[meshmodel.Edge]struct{}{}
			}
			out[p][e] = struct{}{}
		}
	}
	return out
}

func sortedEdges(s map[meshmodel.Edge]struct{}) []meshmodel.Edge {
	out := make([]meshmodel.Edge, 0, len(s))
	for e := range s {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

func idString(id meshmodel.NodeID) string {
	return "node:" + itoa(uint64(id))
}

func edgeString(e meshmodel.Edge) string {
	return "edge:" + itoa(uint64(e.A)) + "-" + itoa(uint64(e.B))
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
