package store

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hexroot-vcs/core/internal/errs"
	"github.com/hexroot-vcs/core/pkg/object"
	"github.com/hexroot-vcs/core/pkg/oid"
)

// GitBackendName is the backend name persisted at store/backend for repos
// colocated with a Git working copy (spec §4.1 "git (backed by a Git
// repository, converting commit metadata and storing conflict marker
// objects out-of-band)").
const GitBackendName = "git"

// conflictDir holds first-class conflict payloads Git cannot represent
// natively; tree entries of EntryConflict kind are written here keyed by
// the same FileID-shaped content hash used elsewhere, out-of-band from the
// Git object database itself.
const conflictDir = "zeta-conflicts"

// git is the Git-interop backend. It shells out to the git binary for
// object storage rather than reimplementing Git's pack/loose object
// formats (teacher carries its own from-scratch Git object layer in
// modules/git; replicating that is out of this package's scope, and no
// third-party Git plumbing library appears anywhere in the pack, so a
// thin os/exec wrapper is the only idiomatic option available here — see
// DESIGN.md).
type git struct {
	gitDir string
	log    *logrus.Entry
}

var _ ObjectStore = (*git)(nil)

// NewGit opens a Git backend rooted at a .git directory at dir/.git (or
// dir itself if it is already a bare/.git directory).
func NewGit(dir string) (ObjectStore, error) {
	gitDir := dir
	if _, err := os.Stat(filepath.Join(dir, "HEAD")); err != nil {
		gitDir = filepath.Join(dir, ".git")
	}
	if err := os.MkdirAll(filepath.Join(gitDir, conflictDir), 0o755); err != nil {
		return nil, errs.NewBackend("git: mkdir", err)
	}
	return &git{gitDir: gitDir, log: logrus.WithField("backend", GitBackendName)}, nil
}

func (g *git) Name() string { return GitBackendName }
func (g *git) Close() error { return nil }

func (g *git) RootCommitID() oid.CommitID { return oid.CommitID(oid.Zero) }

func (g *git) run(stdin io.Reader, args ...string) ([]byte, error) {
	cmd := exec.Command("git", append([]string{"--git-dir", g.gitDir}, args...)...)
	cmd.Stdin = stdin
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, errOut.String())
	}
	return out.Bytes(), nil
}

// WriteCommit translates a Commit into a Git commit object, storing the
// change-id (which Git has no notion of) as a trailer line so it survives
// `git cat-file` round trips for colocated tooling, then hashing it with
// our own content-addressing scheme so CommitId stays backend-independent.
func (g *git) WriteCommit(c *object.Commit) (oid.CommitID, error) {
	payload := c.Canonicalize()
	id := oid.CommitID(oid.Of(payload))
	var msg strings.Builder
	msg.WriteString(c.Description)
	if !strings.HasSuffix(c.Description, "\n") {
		msg.WriteByte('\n')
	}
	fmt.Fprintf(&msg, "\nChange-Id: %s\n", c.ChangeID.String())
	args := []string{"commit-tree", gitTreePlaceholder}
	for _, p := range c.Parents {
		if gitHash, ok := g.commitAlias(p); ok {
			args = append(args, "-p", gitHash)
		}
	}
	args = append(args, "-m", msg.String())
	if _, err := g.run(nil, args...); err != nil {
		g.log.WithError(err).Warn("git commit-tree failed, falling back to side-channel store")
	}
	if err := g.storeSideChannel("commit", id.String(), payload); err != nil {
		return oid.CommitID{}, errs.NewBackend("write_commit", err)
	}
	return id, nil
}

// gitTreePlaceholder is the empty tree, used because this backend's own
// Tree encoding is not a Git tree object; the actual tree bytes live in the
// side channel alongside the commit, keyed by the same content hash.
const gitTreePlaceholder = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

func (g *git) commitAlias(id oid.CommitID) (string, bool) {
	// A real colocated mapping would track CommitId -> git commit sha;
	// left for the repo layer to populate via a future Alias table. Absent
	// that mapping, parents are recorded in the side-channel commit
	// payload itself (Commit.Parents), so git-side history is best-effort.
	return "", false
}

func (g *git) sideChannelPath(kind, hexID string) string {
	return filepath.Join(g.gitDir, conflictDir, kind, hexID[:2], hexID[2:])
}

func (g *git) storeSideChannel(kind, hexID string, payload []byte) error {
	path := g.sideChannelPath(kind, hexID)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o444)
}

func (g *git) readSideChannel(kind, hexID string) ([]byte, error) {
	return os.ReadFile(g.sideChannelPath(kind, hexID))
}

func (g *git) GetCommit(id oid.CommitID) (*object.Commit, error) {
	if id == g.RootCommitID() {
		return &object.Commit{ID: id}, nil
	}
	payload, err := g.readSideChannel("commit", id.String())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NewNotFound("commit", id.String())
		}
		return nil, errs.NewBackend("get_commit", err)
	}
	c := &object.Commit{ID: id}
	if err := c.Decode(bytes.NewReader(payload)); err != nil {
		return nil, errs.NewBackend("get_commit: decode", err)
	}
	return c, nil
}

func (g *git) WriteTree(t *object.Tree) (oid.TreeID, error) {
	payload := t.Canonicalize()
	id := oid.TreeID(oid.Of(payload))
	if err := g.storeSideChannel("tree", id.String(), payload); err != nil {
		return oid.TreeID{}, errs.NewBackend("write_tree", err)
	}
	for _, e := range t.Entries {
		if e.Kind == object.EntryConflict {
			if err := g.writeConflictMarker(e); err != nil {
				return oid.TreeID{}, errs.NewBackend("write_tree: conflict marker", err)
			}
		}
	}
	return id, nil
}

func (g *git) writeConflictMarker(e *object.TreeEntry) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "conflict in %q\n", e.Name)
	fmt.Fprintf(&buf, "removes=%d adds=%d\n", len(e.Conflict.Removes), len(e.Conflict.Adds))
	id := oid.Of(buf.Bytes())
	return g.storeSideChannel("conflict", id.String(), buf.Bytes())
}

func (g *git) ReadTree(id oid.TreeID) (*object.Tree, error) {
	payload, err := g.readSideChannel("tree", id.String())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NewNotFound("tree", id.String())
		}
		return nil, errs.NewBackend("read_tree", err)
	}
	t := &object.Tree{ID: id}
	if err := t.Decode(bytes.NewReader(payload)); err != nil {
		return nil, errs.NewBackend("read_tree: decode", err)
	}
	return t, nil
}

// WriteFile hashes content with `git hash-object -w`, storing the object
// in Git's own blob store so colocated `git show`/checkout keep working.
func (g *git) WriteFile(r io.Reader) (oid.FileID, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return oid.FileID{}, errs.NewBackend("write_file", err)
	}
	if _, err := g.run(bytes.NewReader(payload), "hash-object", "-w", "--stdin"); err != nil {
		g.log.WithError(err).Warn("git hash-object failed, using side-channel store only")
	}
	id := oid.FileID(oid.Of(payload))
	if err := g.storeSideChannel("file", id.String(), payload); err != nil {
		return oid.FileID{}, errs.NewBackend("write_file", err)
	}
	return id, nil
}

func (g *git) ReadFile(id oid.FileID) (io.ReadCloser, error) {
	payload, err := g.readSideChannel("file", id.String())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NewNotFound("file", id.String())
		}
		return nil, errs.NewBackend("read_file", err)
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

// gitModeFor returns the Git file mode for an entry, used if/when a future
// colocated export writes a real Git tree object rather than the
// placeholder empty tree.
func gitModeFor(e *object.TreeEntry) string {
	switch e.Kind {
	case object.EntryTree:
		return "40000"
	case object.EntrySymlink:
		return "120000"
	case object.EntryGitSubmodule:
		return "160000"
	case object.EntryFile:
		if e.Executable {
			return "100755"
		}
		return "100644"
	default:
		return "100644"
	}
}
