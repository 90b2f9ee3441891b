// Package refname implements the ref naming contract of spec §6: branch and
// tag names are arbitrary UTF-8, but when mirrored to Git no branch name may
// be a parent path of another (e.g. "foo" vs "foo/bar"). Violations are
// reported per-name at export time rather than rejected at creation time.
//
// The validation style (typed error + Is<Kind> predicate) mirrors the
// teacher's modules/plumbing/validate.go.
package refname

import "strings"

// ErrNestedName reports that two names conflict because one is a
// slash-nested parent path of the other, which Git cannot represent as two
// simultaneous refs (refs/heads/foo is a file, refs/heads/foo/bar needs
// refs/heads/foo to be a directory).
type ErrNestedName struct {
	Name   string
	Nested string
}

func (e *ErrNestedName) Error() string {
	return "ref name '" + e.Name + "' nests with '" + e.Nested + "'"
}

func IsErrNestedName(err error) bool {
	_, ok := err.(*ErrNestedName)
	return ok
}

// IsPrefixPath reports whether parent is a slash-delimited prefix path of
// child (parent == "foo", child == "foo/bar" => true; parent == "foo",
// child == "foobar" => false; parent == child => false).
func IsPrefixPath(parent, child string) bool {
	if len(child) <= len(parent) {
		return false
	}
	return strings.HasPrefix(child, parent) && child[len(parent)] == '/'
}

// CheckExportable validates names (branch or tag names, independently) for
// the Git-export slash-nesting rule, returning one *ErrNestedName for each
// name and each other name it nests with, so both names of a nesting pair
// are reported. Per spec §6, these are reported per-name at export time;
// the caller (transaction export step) decides whether to treat the result
// as fatal or as a warning alongside a successful publication.
func CheckExportable(names []string) []error {
	var errs []error
	for i, a := range names {
		for j, b := range names {
			if i == j {
				continue
			}
			if IsPrefixPath(a, b) || IsPrefixPath(b, a) {
				errs = append(errs, &ErrNestedName{Name: a, Nested: b})
			}
		}
	}
	return errs
}
