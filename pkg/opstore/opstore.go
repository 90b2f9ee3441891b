// Package opstore implements the operation store of spec §4.2 (C2):
// content-addressed persistence of operations and view snapshots. The
// envelope format and fanout layout mirror pkg/store's native backend
// (itself grounded on the teacher's modules/zeta/backend/file_storer.go),
// generalized to hash arbitrary canonical-encoded records instead of
// commit/tree objects specifically.
package opstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hexroot-vcs/core/internal/errs"
	"github.com/hexroot-vcs/core/pkg/oid"
	"github.com/hexroot-vcs/core/pkg/view"
)

// Metadata carries the descriptive fields of an operation (spec §3
// "Operation"). All of them are part of the canonical encoding that is
// hashed to the OperationID.
type Metadata struct {
	StartTime   time.Time
	EndTime     time.Time
	Description string
	Hostname    string
	Username    string
	Tags        map[string]string
}

// Operation is one node of the operation DAG (spec §3 "Operation"). Two
// operations sharing Parents but differing in ViewID are concurrent.
type Operation struct {
	ID       oid.OperationID
	Parents  []oid.OperationID
	ViewID   oid.ViewID
	Metadata Metadata
}

// Store persists operations and view snapshots by content hash (spec §4.2
// "Operation store"): write_view/read_view, write_operation/read_operation.
type Store struct {
	root string
}

// Open opens (creating if absent) an operation store rooted at dir.
func Open(dir string) (*Store, error) {
	for _, sub := range []string{"operations", "views"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, errs.NewBackend("opstore: mkdir", err)
		}
	}
	return &Store{root: dir}, nil
}

var envelopeMagic = [4]byte{'H', 'O', 0x00, 0x01}

func writeEnvelope(path string, payload []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(envelopeMagic[:]); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := binary.Write(tmp, binary.BigEndian, uint64(len(payload))); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func readEnvelope(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < 12 || [4]byte(raw[:4]) != envelopeMagic {
		return nil, fmt.Errorf("opstore: mismatched envelope at %s", path)
	}
	length := binary.BigEndian.Uint64(raw[4:12])
	body := raw[12:]
	if uint64(len(body)) != length {
		return nil, fmt.Errorf("opstore: truncated record at %s", path)
	}
	return body, nil
}

func fanoutPath(root, kind, hexID string) string {
	return filepath.Join(root, kind, hexID[:2], hexID[2:])
}

// canonicalizeView writes a deterministic, sorted-key text encoding of a
// view so ViewID is stable regardless of map iteration order (spec §8
// "hash determinism" extended to views).
func canonicalizeView(v *view.View) []byte {
	var buf bytes.Buffer
	writeCommitIDList := func(label string, ids []oid.CommitID) {
		sorted := append([]oid.CommitID(nil), ids...)
		sort.Slice(sorted, func(i, j int) bool { return oid.CommitIDLess(sorted[i], sorted[j]) })
		fmt.Fprintf(&buf, "%s %d\n", label, len(sorted))
		for _, id := range sorted {
			fmt.Fprintf(&buf, "  %s\n", id.String())
		}
	}
	writeCommitIDList("heads", v.HeadIDs)
	writeCommitIDList("public_heads", v.PublicHeadIDs)

	wcKeys := sortedKeys(v.WCCommitIDs)
	fmt.Fprintf(&buf, "wc_commits %d\n", len(wcKeys))
	for _, k := range wcKeys {
		fmt.Fprintf(&buf, "  %s %s\n", k, v.WCCommitIDs[k].String())
	}

	branchKeys := sortedKeys(v.Branches)
	fmt.Fprintf(&buf, "branches %d\n", len(branchKeys))
	for _, name := range branchKeys {
		b := v.Branches[name]
		fmt.Fprintf(&buf, "  branch %s local %s\n", name, refTargetString(b.Local))
		remoteKeys := sortedRemoteKeys(b.Remotes)
		for _, rname := range remoteKeys {
			rr := b.Remotes[rname]
			fmt.Fprintf(&buf, "    remote %s %s tracked=%v\n", rname, refTargetString(rr.Target), rr.Tracked)
		}
	}

	tagKeys := sortedRefTargetKeys(v.Tags)
	fmt.Fprintf(&buf, "tags %d\n", len(tagKeys))
	for _, name := range tagKeys {
		fmt.Fprintf(&buf, "  tag %s %s\n", name, refTargetString(v.Tags[name]))
	}

	gitRefKeys := sortedRefTargetKeys(v.GitRefs)
	fmt.Fprintf(&buf, "git_refs %d\n", len(gitRefKeys))
	for _, name := range gitRefKeys {
		fmt.Fprintf(&buf, "  git_ref %s %s\n", name, refTargetString(v.GitRefs[name]))
	}

	if v.GitHead != nil {
		fmt.Fprintf(&buf, "git_head %s\n", v.GitHead.String())
	} else {
		buf.WriteString("git_head none\n")
	}
	return buf.Bytes()
}

func refTargetString(t view.RefTarget) string {
	switch t.Kind {
	case view.RefAbsent:
		return "absent"
	case view.RefNormal:
		return "normal:" + t.Normal.String()
	default:
		removes := make([]string, len(t.Removes))
		for i, r := range t.Removes {
			removes[i] = r.String()
		}
		adds := make([]string, len(t.Adds))
		for i, a := range t.Adds {
			adds[i] = a.String()
		}
		sort.Strings(removes)
		sort.Strings(adds)
		return "conflicted:" + strings.Join(removes, ",") + "/" + strings.Join(adds, ",")
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRefTargetKeys(m map[string]view.RefTarget) []string { return sortedKeys(m) }

func sortedRemoteKeys(m map[string]view.RemoteRef) []string { return sortedKeys(m) }

// WriteView hashes and idempotently persists a view snapshot.
func (s *Store) WriteView(v *view.View) (oid.ViewID, error) {
	payload := canonicalizeView(v)
	id := oid.ViewID(oid.Of(payload))
	path := fanoutPath(s.root, "views", id.String())
	if err := writeEnvelope(path, payload); err != nil {
		return oid.ViewID{}, errs.NewBackend("write_view", err)
	}
	return id, nil
}

// ReadView decodes the canonical view text format produced by WriteView.
func (s *Store) ReadView(id oid.ViewID) (*view.View, error) {
	path := fanoutPath(s.root, "views", id.String())
	payload, err := readEnvelope(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NewNotFound("view", id.String())
		}
		return nil, errs.NewBackend("read_view", err)
	}
	return decodeView(payload)
}

// canonicalizeOperation produces the deterministic bytes hashed to an
// OperationID: sorted parent ids (order-independence for concurrent-head
// merges, spec §6), the view id, and canonical metadata encoding.
func canonicalizeOperation(op *Operation) []byte {
	var buf bytes.Buffer
	parents := append([]oid.OperationID(nil), op.Parents...)
	sort.Slice(parents, func(i, j int) bool { return parents[i].String() < parents[j].String() })
	fmt.Fprintf(&buf, "parents %d\n", len(parents))
	for _, p := range parents {
		fmt.Fprintf(&buf, "  %s\n", p.String())
	}
	fmt.Fprintf(&buf, "view %s\n", op.ViewID.String())
	fmt.Fprintf(&buf, "start_time %d\n", op.Metadata.StartTime.UnixNano())
	fmt.Fprintf(&buf, "end_time %d\n", op.Metadata.EndTime.UnixNano())
	fmt.Fprintf(&buf, "hostname %s\n", op.Metadata.Hostname)
	fmt.Fprintf(&buf, "username %s\n", op.Metadata.Username)
	tagKeys := sortedKeys(op.Metadata.Tags)
	fmt.Fprintf(&buf, "tags %d\n", len(tagKeys))
	for _, k := range tagKeys {
		fmt.Fprintf(&buf, "  %s=%s\n", k, op.Metadata.Tags[k])
	}
	fmt.Fprintf(&buf, "\n%s", op.Metadata.Description)
	return buf.Bytes()
}

// WriteOperation hashes and idempotently persists an operation record.
func (s *Store) WriteOperation(op *Operation) (oid.OperationID, error) {
	payload := canonicalizeOperation(op)
	id := oid.OperationID(oid.Of(payload))
	path := fanoutPath(s.root, "operations", id.String())
	if err := writeEnvelope(path, payload); err != nil {
		return oid.OperationID{}, errs.NewBackend("write_operation", err)
	}
	return id, nil
}

// ReadOperation decodes the canonical operation text format.
func (s *Store) ReadOperation(id oid.OperationID) (*Operation, error) {
	path := fanoutPath(s.root, "operations", id.String())
	payload, err := readEnvelope(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NewNotFound("operation", id.String())
		}
		return nil, errs.NewBackend("read_operation", err)
	}
	op, err := decodeOperation(payload)
	if err != nil {
		return nil, errs.NewBackend("read_operation: decode", err)
	}
	op.ID = id
	return op, nil
}

func decodeOperation(payload []byte) (*Operation, error) {
	lines := strings.SplitN(string(payload), "\n\n", 2)
	header := lines[0]
	var description string
	if len(lines) == 2 {
		description = lines[1]
	}
	op := &Operation{Metadata: Metadata{Tags: map[string]string{}, Description: description}}
	scanner := strings.Split(header, "\n")
	i := 0
	next := func() string {
		if i >= len(scanner) {
			return ""
		}
		line := scanner[i]
		i++
		return line
	}
	parentsHeader := strings.Fields(next())
	if len(parentsHeader) != 2 {
		return nil, fmt.Errorf("opstore: malformed parents header")
	}
	n, err := strconv.Atoi(parentsHeader[1])
	if err != nil {
		return nil, err
	}
	for k := 0; k < n; k++ {
		op.Parents = append(op.Parents, oid.NewOperationID(strings.TrimSpace(next())))
	}
	viewLine := strings.Fields(next())
	if len(viewLine) != 2 {
		return nil, fmt.Errorf("opstore: malformed view header")
	}
	op.ViewID = oid.NewViewID(viewLine[1])

	parseField := func(label, line string) (string, error) {
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 || fields[0] != label {
			return "", fmt.Errorf("opstore: expected %q, got %q", label, line)
		}
		return fields[1], nil
	}
	startTime, err := parseField("start_time", next())
	if err != nil {
		return nil, err
	}
	endTime, err := parseField("end_time", next())
	if err != nil {
		return nil, err
	}
	st, _ := strconv.ParseInt(startTime, 10, 64)
	et, _ := strconv.ParseInt(endTime, 10, 64)
	op.Metadata.StartTime = time.Unix(0, st).UTC()
	op.Metadata.EndTime = time.Unix(0, et).UTC()
	hostname, err := parseField("hostname", next())
	if err != nil {
		return nil, err
	}
	op.Metadata.Hostname = hostname
	username, err := parseField("username", next())
	if err != nil {
		return nil, err
	}
	op.Metadata.Username = username
	tagsHeader := strings.Fields(next())
	if len(tagsHeader) == 2 {
		tn, _ := strconv.Atoi(tagsHeader[1])
		for k := 0; k < tn; k++ {
			kv := strings.TrimSpace(next())
			if key, val, ok := strings.Cut(kv, "="); ok {
				op.Metadata.Tags[key] = val
			}
		}
	}
	return op, nil
}

func decodeView(payload []byte) (*view.View, error) {
	v := view.NewView()
	lines := strings.Split(string(payload), "\n")
	i := 0
	next := func() string {
		if i >= len(lines) {
			return ""
		}
		l := lines[i]
		i++
		return l
	}
	readCommitList := func(label string) ([]oid.CommitID, error) {
		header := strings.Fields(strings.TrimSpace(next()))
		if len(header) != 2 || header[0] != label {
			return nil, fmt.Errorf("opstore: expected %q header", label)
		}
		n, _ := strconv.Atoi(header[1])
		ids := make([]oid.CommitID, 0, n)
		for k := 0; k < n; k++ {
			ids = append(ids, oid.NewCommitID(strings.TrimSpace(next())))
		}
		return ids, nil
	}
	var err error
	if v.HeadIDs, err = readCommitList("heads"); err != nil {
		return nil, err
	}
	if v.PublicHeadIDs, err = readCommitList("public_heads"); err != nil {
		return nil, err
	}
	wcHeader := strings.Fields(strings.TrimSpace(next()))
	if len(wcHeader) != 2 || wcHeader[0] != "wc_commits" {
		return nil, fmt.Errorf("opstore: malformed wc_commits header")
	}
	wcN, _ := strconv.Atoi(wcHeader[1])
	for k := 0; k < wcN; k++ {
		fields := strings.Fields(strings.TrimSpace(next()))
		if len(fields) != 2 {
			return nil, fmt.Errorf("opstore: malformed wc_commit line")
		}
		v.WCCommitIDs[fields[0]] = oid.NewCommitID(fields[1])
	}
	branchHeader := strings.Fields(strings.TrimSpace(next()))
	if len(branchHeader) != 2 || branchHeader[0] != "branches" {
		return nil, fmt.Errorf("opstore: malformed branches header")
	}
	branchN, _ := strconv.Atoi(branchHeader[1])
	for k := 0; k < branchN; k++ {
		line := strings.TrimSpace(next())
		fields := strings.Fields(line)
		if len(fields) != 4 || fields[0] != "branch" || fields[2] != "local" {
			return nil, fmt.Errorf("opstore: malformed branch line %q", line)
		}
		name := fields[1]
		local, err := parseRefTarget(fields[3])
		if err != nil {
			return nil, err
		}
		b := &view.Branch{Local: local, Remotes: make(map[string]view.RemoteRef)}
		for i < len(lines) {
			save := i
			peek := strings.TrimSpace(next())
			rfields := strings.Fields(peek)
			if len(rfields) == 4 && rfields[0] == "remote" {
				rt, err := parseRefTarget(rfields[2])
				if err != nil {
					return nil, err
				}
				tracked := strings.TrimPrefix(rfields[3], "tracked=") == "true"
				b.Remotes[rfields[1]] = view.RemoteRef{Target: rt, Tracked: tracked}
				continue
			}
			i = save
			break
		}
		v.Branches[name] = b
	}
	readRefTargetMap := func(label, itemLabel string) (map[string]view.RefTarget, error) {
		header := strings.Fields(strings.TrimSpace(next()))
		if len(header) != 2 || header[0] != label {
			return nil, fmt.Errorf("opstore: malformed %s header", label)
		}
		n, _ := strconv.Atoi(header[1])
		result := make(map[string]view.RefTarget, n)
		for k := 0; k < n; k++ {
			line := strings.TrimSpace(next())
			fields := strings.Fields(line)
			if len(fields) != 3 || fields[0] != itemLabel {
				return nil, fmt.Errorf("opstore: malformed %s line %q", itemLabel, line)
			}
			rt, err := parseRefTarget(fields[2])
			if err != nil {
				return nil, err
			}
			result[fields[1]] = rt
		}
		return result, nil
	}
	if v.Tags, err = readRefTargetMap("tags", "tag"); err != nil {
		return nil, err
	}
	if v.GitRefs, err = readRefTargetMap("git_refs", "git_ref"); err != nil {
		return nil, err
	}
	gitHeadLine := strings.Fields(strings.TrimSpace(next()))
	if len(gitHeadLine) == 2 && gitHeadLine[0] == "git_head" && gitHeadLine[1] != "none" {
		id := oid.NewCommitID(gitHeadLine[1])
		v.GitHead = &id
	}
	return v, nil
}

func parseRefTarget(s string) (view.RefTarget, error) {
	switch {
	case s == "absent":
		return view.Absent(), nil
	case strings.HasPrefix(s, "normal:"):
		return view.Normal(oid.NewCommitID(strings.TrimPrefix(s, "normal:"))), nil
	case strings.HasPrefix(s, "conflicted:"):
		rest := strings.TrimPrefix(s, "conflicted:")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			return view.RefTarget{}, fmt.Errorf("opstore: malformed conflicted ref target %q", s)
		}
		var removes, adds []oid.CommitID
		if parts[0] != "" {
			for _, h := range strings.Split(parts[0], ",") {
				removes = append(removes, oid.NewCommitID(h))
			}
		}
		if parts[1] != "" {
			for _, h := range strings.Split(parts[1], ",") {
				adds = append(adds, oid.NewCommitID(h))
			}
		}
		return view.RefTarget{Kind: view.RefConflicted, Removes: removes, Adds: adds}, nil
	default:
		return view.RefTarget{}, fmt.Errorf("opstore: unknown ref target %q", s)
	}
}
