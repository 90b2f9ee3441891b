// Package store implements the object store of spec §4.1: persisting and
// retrieving commits, trees and files while hiding whether the backend is
// the native format or Git. The interface shape and the native backend's
// on-disk layout mirror the teacher's modules/zeta/backend package
// (odb.go's Database facade, file_storer.go's fanout+header format).
package store

import (
	"io"

	"github.com/hexroot-vcs/core/internal/errs"
	"github.com/hexroot-vcs/core/pkg/object"
	"github.com/hexroot-vcs/core/pkg/oid"
)

// BackendNameFile is the file under a repo's store directory naming which
// backend owns it, read on load to select a factory (spec §4.1 "a backend
// declares its name ... persisted in store/backend").
const BackendNameFile = "store/backend"

// ObjectStore is the C1 object store contract. All methods return errs.Backend
// on I/O or integrity failure; lookups return errs.NotFound when the id is
// absent.
type ObjectStore interface {
	// Name is the short ASCII backend name persisted at BackendNameFile.
	Name() string

	WriteCommit(c *object.Commit) (oid.CommitID, error)
	GetCommit(id oid.CommitID) (*object.Commit, error)

	ReadFile(id oid.FileID) (io.ReadCloser, error)
	WriteFile(r io.Reader) (oid.FileID, error)

	ReadTree(id oid.TreeID) (*object.Tree, error)
	WriteTree(t *object.Tree) (oid.TreeID, error)

	// RootCommitID is the unique synthetic root: all-zero bytes.
	RootCommitID() oid.CommitID

	Close() error
}

// Factory constructs an ObjectStore rooted at dir. Implementations accept a
// freshly-created empty dir (Init) as well as an existing one (Load).
type Factory func(dir string) (ObjectStore, error)

// Factories is the backend-name registry, mirroring the teacher's
// object.Backend abstract-backend selection in backend/odb.go, generalized
// from a single hardcoded backend into a name->factory map so additional
// backends can be registered without touching this package.
type Factories struct {
	byName map[string]Factory
}

// NewFactories returns an empty registry. Callers normally use
// DefaultFactories to get native+git pre-registered.
func NewFactories() *Factories {
	return &Factories{byName: make(map[string]Factory)}
}

// Add registers factory under name, overwriting any prior registration.
func (f *Factories) Add(name string, factory Factory) {
	f.byName[name] = factory
}

// New invokes the factory registered under name.
func (f *Factories) New(name, dir string) (ObjectStore, error) {
	factory, ok := f.byName[name]
	if !ok {
		return nil, errs.NewNotFound("backend", name)
	}
	return factory(dir)
}

// DefaultFactories returns a registry with the "native" and "git" backends
// pre-registered (spec §4.1: "Two backends are required: native ... and
// git").
func DefaultFactories() *Factories {
	f := NewFactories()
	f.Add(NativeBackendName, NewNative)
	f.Add(GitBackendName, NewGit)
	return f
}
