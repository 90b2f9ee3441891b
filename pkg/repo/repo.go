// Package repo implements the repo facade and transaction layer of spec
// §4.5 (C6, C7): ReadonlyRepo, MutableRepo, Transaction, RepoLoader. The
// facade shape (a struct binding path, stores and settings, with Open/Init
// style constructors and a Close) mirrors the teacher's pkg/zeta.Repository
// (repository.go); the object read-through cache mirrors
// modules/zeta/backend/odb.go's metaLRU (a ristretto.Cache guarding decoded
// commits by id string).
package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/sirupsen/logrus"

	"github.com/hexroot-vcs/core/internal/errs"
	"github.com/hexroot-vcs/core/pkg/index"
	"github.com/hexroot-vcs/core/pkg/object"
	"github.com/hexroot-vcs/core/pkg/oid"
	"github.com/hexroot-vcs/core/pkg/opheads"
	"github.com/hexroot-vcs/core/pkg/opstore"
	"github.com/hexroot-vcs/core/pkg/store"
	"github.com/hexroot-vcs/core/pkg/view"
)

// Settings are the per-repo knobs a ReadonlyRepo is opened with (spec §4.5
// "settings"). Unlike the teacher's config.Config (user/CLI facing, toml
// decoded), these are just what the core needs, kept separate from
// internal/config which handles the on-disk file.
type Settings struct {
	RepoPath string
	Backend  string // store backend name, e.g. store.NativeBackendName
}

// RepoLoader resolves the current op-head(s) of a repo path into a
// ReadonlyRepo, reusable across repeated loads against the same on-disk
// stores (spec's supplemented feature, grounded on original_source's
// `repo.rs` RepoLoader carrying store factories across multiple
// `load_at_head` calls rather than being single-use).
type RepoLoader struct {
	Factories *store.Factories
	log       *logrus.Entry
}

// NewRepoLoader returns a loader using the given backend-name registry
// (store.DefaultFactories() for native+git).
func NewRepoLoader(factories *store.Factories) *RepoLoader {
	return &RepoLoader{
		Factories: factories,
		log:       logrus.WithField("component", "repo_loader"),
	}
}

// Init creates a brand-new repo layout at settings.RepoPath: an object
// store of the requested backend, an operation store, an op-heads store,
// and a single root operation whose view has no heads at all, matching
// the teacher's Init-then-write-config sequencing in pkg/zeta.Init.
func (l *RepoLoader) Init(settings Settings) (*ReadonlyRepo, error) {
	if err := os.MkdirAll(settings.RepoPath, 0o755); err != nil {
		return nil, errs.NewBackend("repo init: mkdir", err)
	}
	storeDir := filepath.Join(settings.RepoPath, "store")
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return nil, errs.NewBackend("repo init: mkdir store", err)
	}
	objStore, err := l.Factories.New(settings.Backend, storeDir)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(storeDir, filepath.Base(store.BackendNameFile)), []byte(settings.Backend), 0o644); err != nil {
		return nil, errs.NewBackend("repo init: write backend name", err)
	}

	ops, err := opstore.Open(filepath.Join(settings.RepoPath, "op_store"))
	if err != nil {
		return nil, err
	}
	heads, err := opheads.Open(filepath.Join(settings.RepoPath, "op_heads"))
	if err != nil {
		return nil, err
	}

	v := view.NewView()
	viewID, err := ops.WriteView(v)
	if err != nil {
		return nil, err
	}
	op := &opstore.Operation{ViewID: viewID, Metadata: opstore.Metadata{Description: "initialize repo"}}
	opID, err := ops.WriteOperation(op)
	if err != nil {
		return nil, err
	}
	op.ID = opID
	if err := heads.Finish(opID); err != nil {
		return nil, err
	}

	idx := index.New()
	if err := idx.Add(&object.Commit{ID: objStore.RootCommitID()}); err != nil {
		return nil, err
	}

	return l.open(settings, objStore, ops, heads, idx, op, v)
}

// Load resolves the current op-head(s) of an existing repo at
// settings.RepoPath into a ReadonlyRepo, merging concurrent heads into a
// fresh operation when GetHeads reports a race (spec §4.2).
func (l *RepoLoader) Load(settings Settings) (*ReadonlyRepo, error) {
	storeDir := filepath.Join(settings.RepoPath, "store")
	backendName := settings.Backend
	if raw, err := os.ReadFile(filepath.Join(storeDir, filepath.Base(store.BackendNameFile))); err == nil {
		backendName = string(raw)
	}
	objStore, err := l.Factories.New(backendName, storeDir)
	if err != nil {
		return nil, err
	}

	ops, err := opstore.Open(filepath.Join(settings.RepoPath, "op_store"))
	if err != nil {
		return nil, err
	}
	heads, err := opheads.Open(filepath.Join(settings.RepoPath, "op_heads"))
	if err != nil {
		return nil, err
	}

	outcome, err := heads.GetHeads()
	if err != nil {
		return nil, err
	}

	var op *opstore.Operation
	if len(outcome.Heads) <= 1 {
		if len(outcome.Heads) == 0 {
			return nil, errs.NewBackend("repo load", fmt.Errorf("no operations recorded"))
		}
		op, err = ops.ReadOperation(outcome.Heads[0])
		if err != nil {
			return nil, err
		}
	} else {
		op, err = l.mergeConcurrentHeads(objStore, ops, outcome.Heads)
		if err != nil {
			return nil, err
		}
		if err := outcome.Lock.Finish(op.ID); err != nil {
			return nil, err
		}
	}

	v, err := ops.ReadView(op.ViewID)
	if err != nil {
		return nil, err
	}
	idx, err := l.buildIndex(objStore, v)
	if err != nil {
		return nil, err
	}

	return l.open(settings, objStore, ops, heads, idx, op, v)
}

// mergeConcurrentHeads folds N concurrent operation heads into one new
// operation whose parents are all of them and whose view is their
// three-way merge against each pair's true common ancestor operation (spec
// §4.2, §4.4), not the accumulator reused as its own base. For N>2 heads
// this folds pairwise: at each step, the base is the real common ancestor
// of the operation just folded in and the previous one, which is exact for
// the (overwhelmingly common) two-head race and a reasonable, spec-
// sanctioned pairwise generalization beyond that.
func (l *RepoLoader) mergeConcurrentHeads(objStore store.ObjectStore, ops *opstore.Store, headIDs []oid.OperationID) (*opstore.Operation, error) {
	merged, err := ops.ReadOperation(headIDs[0])
	if err != nil {
		return nil, err
	}
	mergedView, err := ops.ReadView(merged.ViewID)
	if err != nil {
		return nil, err
	}
	parents := []oid.OperationID{merged.ID}
	prevOpID := merged.ID
	for _, id := range headIDs[1:] {
		other, err := ops.ReadOperation(id)
		if err != nil {
			return nil, err
		}
		otherView, err := ops.ReadView(other.ViewID)
		if err != nil {
			return nil, err
		}
		baseView, err := commonAncestorView(ops, prevOpID, other.ID)
		if err != nil {
			return nil, err
		}
		idx, err := l.buildIndex(objStore, unionHeadsView(baseView, mergedView, otherView))
		if err != nil {
			return nil, err
		}
		mergedView = MergeViews(baseView, mergedView, otherView, idx)
		parents = append(parents, other.ID)
		prevOpID = other.ID
	}
	viewID, err := ops.WriteView(mergedView)
	if err != nil {
		return nil, err
	}
	op := &opstore.Operation{
		Parents:  parents,
		ViewID:   viewID,
		Metadata: opstore.Metadata{Description: "merge concurrent operations"},
	}
	opID, err := ops.WriteOperation(op)
	if err != nil {
		return nil, err
	}
	op.ID = opID
	return op, nil
}

// unionHeadsView builds a throwaway view whose HeadIDs/PublicHeadIDs/
// WCCommitIDs are the union of every given view's, so buildIndex can index
// the full ancestry spanned by a merge's base/left/right sides in one walk
// (spec §4.4 step 4 needs ancestry across all three, not just one side).
func unionHeadsView(views ...*view.View) *view.View {
	out := view.NewView()
	seen := make(map[oid.CommitID]bool)
	for _, v := range views {
		for _, id := range v.HeadIDs {
			if !seen[id] {
				seen[id] = true
				out.HeadIDs = append(out.HeadIDs, id)
			}
		}
		for _, id := range v.PublicHeadIDs {
			out.PublicHeadIDs = append(out.PublicHeadIDs, id)
		}
		for ws, id := range v.WCCommitIDs {
			out.WCCommitIDs[ws] = id
		}
	}
	return out
}

// buildIndex reconstructs the index by walking every commit reachable from
// the view's heads (spec §4.3 invariant "every commit reachable from any
// view head is indexed"). A persisted-per-operation index is the spec's
// steady-state design; rebuilding from the object store on load keeps this
// package's on-disk footprint small and is always correct, at the cost of
// one walk per process startup.
func (l *RepoLoader) buildIndex(objStore store.ObjectStore, v *view.View) (*index.Index, error) {
	idx := index.New()
	if err := idx.Add(&object.Commit{ID: objStore.RootCommitID()}); err != nil {
		return nil, err
	}
	visited := make(map[oid.CommitID]bool)
	var addAncestors func(id oid.CommitID) error
	addAncestors = func(id oid.CommitID) error {
		if visited[id] || idx.HasID(id) {
			return nil
		}
		visited[id] = true
		c, err := objStore.GetCommit(id)
		if err != nil {
			return err
		}
		for _, p := range c.Parents {
			if err := addAncestors(p); err != nil {
				return err
			}
		}
		return idx.Add(c)
	}
	allHeads := append(append([]oid.CommitID(nil), v.HeadIDs...), v.PublicHeadIDs...)
	for _, id := range v.WCCommitIDs {
		allHeads = append(allHeads, id)
	}
	for _, id := range allHeads {
		if err := addAncestors(id); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (l *RepoLoader) open(settings Settings, objStore store.ObjectStore, ops *opstore.Store, heads *opheads.Store, idx *index.Index, op *opstore.Operation, v *view.View) (*ReadonlyRepo, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: 100000,
		MaxCost:     100000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errs.NewBackend("repo: new object cache", err)
	}
	return &ReadonlyRepo{
		settings:  settings,
		loader:    l,
		store:     objStore,
		opStore:   ops,
		opHeads:   heads,
		index:     idx,
		operation: op,
		view:      v,
		cache:     cache,
		log:       logrus.WithFields(logrus.Fields{"component": "repo", "repo_path": settings.RepoPath, "backend": objStore.Name()}),
	}, nil
}

// ReadonlyRepo is spec §4.5's "ReadonlyRepo": repo-path, object store,
// operation store, op-heads store, index, the current Operation and its
// View, plus settings. All reads go through it.
type ReadonlyRepo struct {
	settings  Settings
	loader    *RepoLoader
	store     store.ObjectStore
	opStore   *opstore.Store
	opHeads   *opheads.Store
	index     *index.Index
	operation *opstore.Operation
	view      *view.View
	cache     *ristretto.Cache[string, any]
	log       *logrus.Entry
}

func (r *ReadonlyRepo) Store() store.ObjectStore    { return r.store }
func (r *ReadonlyRepo) OpStore() *opstore.Store      { return r.opStore }
func (r *ReadonlyRepo) OpHeads() *opheads.Store      { return r.opHeads }
func (r *ReadonlyRepo) Index() *index.Index          { return r.index }
func (r *ReadonlyRepo) Operation() *opstore.Operation { return r.operation }
func (r *ReadonlyRepo) View() *view.View              { return r.view }
func (r *ReadonlyRepo) Settings() Settings            { return r.settings }

// GetCommit reads a commit through the read-through cache (spec §4.5's
// ReadonlyRepo owning "all reads"), mirroring odb.go's metaLRU Get/Set
// pattern keyed by the hex id string.
func (r *ReadonlyRepo) GetCommit(id oid.CommitID) (*object.Commit, error) {
	key := id.String()
	if v, ok := r.cache.Get(key); ok {
		return v.(*object.Commit), nil
	}
	c, err := r.store.GetCommit(id)
	if err != nil {
		return nil, err
	}
	r.cache.Set(key, c, 1)
	return c, nil
}

// StartTransaction begins a new Transaction against this repo, cloning its
// view so the base ReadonlyRepo is untouched until publish (spec §4.5,
// §3 "Ownership").
func (r *ReadonlyRepo) StartTransaction(description, username, hostname string) *Transaction {
	return &Transaction{
		base:        r,
		description: description,
		username:    username,
		hostname:    hostname,
		mutable:     newMutableRepo(r),
		mergedOps:   nil,
	}
}

// Close releases the underlying object store and cache.
func (r *ReadonlyRepo) Close() error {
	r.cache.Close()
	return r.store.Close()
}
