package oid

// The repository core distinguishes several id kinds that are all, at the
// storage layer, plain ID values. Giving each a distinct Go type lets the
// compiler catch a CommitID accidentally passed where a TreeID is expected.

// CommitID hashes a commit object.
type CommitID ID

// ChangeID is a stable identifier assigned when a logical change is first
// written; it survives amend/rebase (spec §3 "Change-id").
type ChangeID ID

// TreeID hashes a tree object.
type TreeID ID

// FileID hashes a file (blob) object.
type FileID ID

// OperationID hashes an operation record.
type OperationID ID

// ViewID hashes a view snapshot.
type ViewID ID

func (id CommitID) String() string    { return ID(id).String() }
func (id CommitID) IsZero() bool      { return ID(id).IsZero() }
func (id CommitID) Bytes() []byte     { return ID(id).Bytes() }
func (id ChangeID) String() string    { return ID(id).String() }
func (id ChangeID) IsZero() bool      { return ID(id).IsZero() }
func (id TreeID) String() string      { return ID(id).String() }
func (id TreeID) IsZero() bool        { return ID(id).IsZero() }
func (id FileID) String() string      { return ID(id).String() }
func (id FileID) IsZero() bool        { return ID(id).IsZero() }
func (id OperationID) String() string { return ID(id).String() }
func (id OperationID) IsZero() bool   { return ID(id).IsZero() }
func (id ViewID) String() string      { return ID(id).String() }
func (id ViewID) IsZero() bool        { return ID(id).IsZero() }

func NewCommitID(s string) CommitID       { return CommitID(FromHex(s)) }
func NewChangeID(s string) ChangeID       { return ChangeID(FromHex(s)) }
func NewTreeID(s string) TreeID           { return TreeID(FromHex(s)) }
func NewFileID(s string) FileID           { return FileID(FromHex(s)) }
func NewOperationID(s string) OperationID { return OperationID(FromHex(s)) }
func NewViewID(s string) ViewID           { return ViewID(FromHex(s)) }

// CommitIDLess orders commit ids for stable topological tie-breaking
// (spec §4.3 "stable tie-break by id").
func CommitIDLess(a, b CommitID) bool { return Less(ID(a), ID(b)) }

// CommitIDSlice sorts a slice of CommitID in increasing byte order.
type CommitIDSlice []CommitID

func (s CommitIDSlice) Len() int           { return len(s) }
func (s CommitIDSlice) Less(i, j int) bool { return CommitIDLess(s[i], s[j]) }
func (s CommitIDSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
