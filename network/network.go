// Package network walks the National Water Model hydrofabric's
// reach-to-reach tree and answers adjacency/proximity queries over it,
// per spec.md §4.3.
package network

import (
	"fmt"
	"math"
	"sort"

	"github.com/Dewberry/ripple1d"
)

// DefaultMaxHops bounds Walk's traversal, per spec.md §4.3.
const DefaultMaxHops = 100

// Tree is a `tree_dict[id] → to_id` adjacency lookup over a local
// sub-network of reaches.
type Tree struct {
	reaches map[int]*ripple1d.NetworkReach
}

// NewTree builds a Tree from a flat reach list.
func NewTree(reaches []*ripple1d.NetworkReach) *Tree {
	t := &Tree{reaches: make(map[int]*ripple1d.NetworkReach, len(reaches))}
	for _, r := range reaches {
		t.reaches[r.ID] = r
	}
	return t
}

// Reach looks up a reach by id.
func (t *Tree) Reach(id int) (*ripple1d.NetworkReach, bool) {
	r, ok := t.reaches[id]
	return r, ok
}

// Walk returns the chain of reach ids from usID through ToID links to
// dsID inclusive, per spec.md §4.3. maxHops bounds the traversal;
// maxHops<=0 uses DefaultMaxHops.
func Walk(t *Tree, usID, dsID int, maxHops int) ([]int, error) {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	chain := []int{usID}
	id := usID
	for hop := 0; hop < maxHops; hop++ {
		if id == dsID {
			return chain, nil
		}
		r, ok := t.Reach(id)
		if !ok {
			return nil, fmt.Errorf("network: reach %d: %w", id, ripple1d.ErrInvalidNetworkPath)
		}
		if r.Terminal() {
			return nil, fmt.Errorf("network: reach %d is terminal before reaching %d: %w", id, dsID, ripple1d.ErrInvalidNetworkPath)
		}
		id = r.ToID
		chain = append(chain, id)
	}
	if id == dsID {
		return chain, nil
	}
	return nil, fmt.Errorf("network: no path from %d to %d within %d hops: %w", usID, dsID, maxHops, ripple1d.ErrInvalidNetworkPath)
}

// AreConnected is the boolean variant of Walk.
func AreConnected(t *Tree, a, b int, maxHops int) bool {
	_, err := Walk(t, a, b, maxHops)
	return err == nil
}

// Confluence returns the nearest common descendant of a and b, walking
// each reach's ToID chain until one meets the other, per spec.md §4.3.
// ok is false if no common descendant exists within maxHops of either
// reach.
func Confluence(t *Tree, a, b int, maxHops int) (id int, ok bool) {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	descendantsOf := func(start int) []int {
		out := []int{start}
		id := start
		for hop := 0; hop < maxHops; hop++ {
			r, found := t.Reach(id)
			if !found || r.Terminal() {
				break
			}
			id = r.ToID
			out = append(out, id)
		}
		return out
	}
	aChain := descendantsOf(a)
	bSeen := make(map[int]bool, len(aChain))
	for _, id := range descendantsOf(b) {
		bSeen[id] = true
	}
	for _, id := range aChain {
		if bSeen[id] {
			return id, true
		}
	}
	return 0, false
}

// NearestLineToPoint returns the k candidates nearest point, by Euclidean
// distance from the candidate's nearest vertex, ascending, per spec.md
// §4.3.
func NearestLineToPoint(candidates []*ripple1d.NetworkReach, point [2]float64, k int) []*ripple1d.NetworkReach {
	type scored struct {
		r *ripple1d.NetworkReach
		d float64
	}
	scoredList := make([]scored, len(candidates))
	for i, c := range candidates {
		scoredList[i] = scored{r: c, d: minDistanceToLine(point, c)}
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].d < scoredList[j].d })
	if k > len(scoredList) {
		k = len(scoredList)
	}
	out := make([]*ripple1d.NetworkReach, k)
	for i := 0; i < k; i++ {
		out[i] = scoredList[i].r
	}
	return out
}

func minDistanceToLine(point [2]float64, r *ripple1d.NetworkReach) float64 {
	best := math.Inf(1)
	for _, p := range r.Geometry {
		dx, dy := p.X-point[0], p.Y-point[1]
		d := dx*dx + dy*dy
		if d < best {
			best = d
		}
	}
	return math.Sqrt(best)
}
