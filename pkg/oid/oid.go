// Package oid implements the content-addressed identifiers shared by every
// store in the repository core: commit, change, tree, file, operation and
// view ids are all opaque, fixed-width, backend-hashed byte strings rendered
// as lowercase hex.
package oid

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"hash"
	"sort"

	"github.com/zeebo/blake3"
)

// Size is the digest size, in bytes, produced by Hasher. All id kinds share
// this width; a backend that wants a different width still renders through
// the same hex encoding.
const Size = 32

// HexSize is the length of the hex-encoded string form of an ID.
const HexSize = Size * 2

// ID is a BLAKE3-hashed content address.
type ID [Size]byte

// Zero is the all-zero ID, used as the synthetic root commit id and as the
// sentinel "absent" value in ref targets.
var Zero ID

// FromHex decodes a hex string into an ID. Malformed input decodes to a
// partially-zeroed ID; callers that must reject bad input should use
// ValidateHex first.
func FromHex(s string) ID {
	b, _ := hex.DecodeString(s)
	var id ID
	copy(id[:], b)
	return id
}

// ValidateHex reports whether s is a syntactically valid hex ID.
func ValidateHex(s string) bool {
	if len(s) != HexSize {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func (id ID) IsZero() bool {
	return id == Zero
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ID) Bytes() []byte {
	return id[:]
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	*id = ID{}
	copy(id[:], b)
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *ID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return id.UnmarshalText([]byte(s))
}

// Compare orders two ids by their byte representation, for deterministic
// tie-breaks (stable sorts of commit/change ids).
func Compare(a, b ID) int {
	return bytes.Compare(a[:], b[:])
}

// Less reports whether a sorts before b.
func Less(a, b ID) bool {
	return Compare(a, b) < 0
}

// Slice attaches sort.Interface to a slice of ID, ascending byte order.
type Slice []ID

func (s Slice) Len() int           { return len(s) }
func (s Slice) Less(i, j int) bool { return Less(s[i], s[j]) }
func (s Slice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Sort sorts ids in increasing byte order, in place.
func Sort(ids []ID) {
	sort.Sort(Slice(ids))
}

// Hasher incrementally hashes content into an ID, mirroring the teacher's
// plumbing.Hasher wrapper over blake3.
type Hasher struct {
	hash.Hash
}

func NewHasher() Hasher {
	return Hasher{Hash: blake3.New()}
}

func (h Hasher) Sum() (id ID) {
	copy(id[:], h.Hash.Sum(nil))
	return
}

// Of hashes a single byte slice to an ID in one call.
func Of(b []byte) ID {
	h := NewHasher()
	_, _ = h.Write(b)
	return h.Sum()
}

// OfStrings hashes the concatenation of several byte slices, each implicitly
// separated by a NUL so that ["ab", "c"] and ["a", "bc"] never collide.
func OfStrings(parts ...[]byte) ID {
	h := NewHasher()
	for _, p := range parts {
		_, _ = h.Write(p)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum()
}
