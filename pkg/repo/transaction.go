package repo

import (
	"time"

	"github.com/hexroot-vcs/core/pkg/oid"
	"github.com/hexroot-vcs/core/pkg/opstore"
)

// Transaction accumulates view mutations against a MutableRepo and writes
// a new operation on commit (spec §4.5, C7). A Transaction is single-use:
// Write (then Publish or LeaveUnpublished) finishes it.
type Transaction struct {
	base        *ReadonlyRepo
	description string
	username    string
	hostname    string
	mutable     *MutableRepo
	mergedOps   []oid.OperationID
	startTime   time.Time
}

// RepoMut returns the transaction's MutableRepo, the only way to stage
// view/index mutations during the transaction's lifetime.
func (t *Transaction) RepoMut() *MutableRepo { return t.mutable }

// MergeOperation folds otherOp's view into this transaction's staged view
// as if it were a second concurrent parent, via the same three-way merge
// used for op-heads races (spec §4.5 "merge_operation", §4.4). `base` is
// the true common ancestor operation of this transaction's starting
// operation and otherOp, looked up in the operation DAG — not the
// transaction's current staged view, which is `left` and may already carry
// local mutations that must be preserved, not discarded, when they don't
// conflict with otherOp's side.
func (t *Transaction) MergeOperation(otherOp *opstore.Operation) error {
	otherView, err := t.base.opStore.ReadView(otherOp.ViewID)
	if err != nil {
		return err
	}
	baseView, err := commonAncestorView(t.base.opStore, t.base.operation.ID, otherOp.ID)
	if err != nil {
		return err
	}
	current := t.mutable.View()

	otherIndex, err := t.base.loader.buildIndex(t.base.store, otherView)
	if err != nil {
		return err
	}
	if err := t.mutable.index.MergeIn(otherIndex, t.base.GetCommit); err != nil {
		return err
	}

	merged := MergeViews(baseView, current, otherView, t.mutable.index)
	t.mutable.view = merged
	t.mergedOps = append(t.mergedOps, otherOp.ID)
	return nil
}

// Write hashes the current view, writes it and a new operation (parents =
// the base operation plus any merged-in operations from MergeOperation),
// without yet touching op-heads (spec §4.5 "write()").
func (t *Transaction) Write() (*UnpublishedOperation, error) {
	now := t.startTime
	if now.IsZero() {
		now = time.Now()
	}
	v := t.mutable.View()
	viewID, err := t.base.opStore.WriteView(v)
	if err != nil {
		return nil, err
	}
	parents := append([]oid.OperationID{t.base.operation.ID}, t.mergedOps...)
	op := &opstore.Operation{
		Parents: parents,
		ViewID:  viewID,
		Metadata: opstore.Metadata{
			StartTime:   now,
			EndTime:     time.Now(),
			Description: t.description,
			Hostname:    t.hostname,
			Username:    t.username,
		},
	}
	opID, err := t.base.opStore.WriteOperation(op)
	if err != nil {
		return nil, err
	}
	op.ID = opID
	return &UnpublishedOperation{txn: t, op: op}, nil
}

// UnpublishedOperation is a written-but-not-yet-head operation: the record
// exists in the operation store, but op-heads hasn't been updated, so
// another process loading the repo right now won't see it (spec §4.5
// "UnpublishedOperation").
type UnpublishedOperation struct {
	txn *Transaction
	op  *opstore.Operation
}

// Operation returns the underlying, already-persisted operation.
func (u *UnpublishedOperation) Operation() *opstore.Operation { return u.op }

// Publish atomically updates op-heads: adds the new operation as a head
// and removes every operation it supersedes (its own base plus any merged
// operations), then returns a ReadonlyRepo bound to the new operation
// (spec §4.5 "publish()").
func (u *UnpublishedOperation) Publish() (*ReadonlyRepo, error) {
	t := u.txn
	superseded := append([]oid.OperationID{t.base.operation.ID}, t.mergedOps...)
	for _, id := range superseded {
		if err := t.base.opHeads.RemoveHead(id); err != nil {
			return nil, err
		}
	}
	if err := t.base.opHeads.AddHead(u.op.ID); err != nil {
		return nil, err
	}
	v := t.mutable.View()
	return t.base.loader.open(t.base.settings, t.base.store, t.base.opStore, t.base.opHeads, t.mutable.index, u.op, v)
}

// LeaveUnpublished discards the transaction's claim on op-heads: the
// operation record stays in the operation store (harmless, content-
// addressed garbage until a GC pass, out of scope here) but never becomes
// a head, as if the transaction had never run (spec §4.5
// "leave_unpublished()").
func (u *UnpublishedOperation) LeaveUnpublished() {}
