package repo

import (
	"fmt"

	"github.com/hexroot-vcs/core/internal/errs"
	"github.com/hexroot-vcs/core/pkg/oid"
	"github.com/hexroot-vcs/core/pkg/opstore"
	"github.com/hexroot-vcs/core/pkg/view"
)

// operationAncestorDepths walks ops backward from start via Parents,
// returning every reachable operation id mapped to its shortest distance
// (in parent hops) from start. Used to find the true common ancestor of
// two concurrent operations (spec §4.2/§4.4), rather than degenerately
// treating one side as its own base.
func operationAncestorDepths(ops *opstore.Store, start oid.OperationID) (map[oid.OperationID]int, error) {
	depth := map[oid.OperationID]int{start: 0}
	queue := []oid.OperationID{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		op, err := ops.ReadOperation(id)
		if err != nil {
			return nil, err
		}
		for _, p := range op.Parents {
			nd := depth[id] + 1
			if d, ok := depth[p]; !ok || nd < d {
				depth[p] = nd
				queue = append(queue, p)
			}
		}
	}
	return depth, nil
}

// commonAncestorOperation returns the nearest common ancestor of a and b in
// the operation DAG (spec §4.4's "base" for a three-way view merge): the
// operation reachable from both whose combined distance from a and b is
// smallest. If a and b coincide, that operation is its own ancestor.
func commonAncestorOperation(ops *opstore.Store, a, b oid.OperationID) (*opstore.Operation, error) {
	if a == b {
		return ops.ReadOperation(a)
	}
	depthA, err := operationAncestorDepths(ops, a)
	if err != nil {
		return nil, err
	}
	depthB, err := operationAncestorDepths(ops, b)
	if err != nil {
		return nil, err
	}
	var best oid.OperationID
	bestSum := -1
	found := false
	for id, da := range depthA {
		db, ok := depthB[id]
		if !ok {
			continue
		}
		sum := da + db
		if !found || sum < bestSum {
			bestSum = sum
			best = id
			found = true
		}
	}
	if !found {
		return nil, errs.NewBackend("repo: common ancestor operation", fmt.Errorf("operations %s and %s share no ancestor", a, b))
	}
	return ops.ReadOperation(best)
}

// commonAncestorView resolves commonAncestorOperation's result straight to
// its View, the shape every MergeViews caller actually wants as "base".
func commonAncestorView(ops *opstore.Store, a, b oid.OperationID) (*view.View, error) {
	op, err := commonAncestorOperation(ops, a, b)
	if err != nil {
		return nil, err
	}
	return ops.ReadView(op.ViewID)
}
