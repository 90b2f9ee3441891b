package refname

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsPrefixPath(t *testing.T) {
	require.True(t, IsPrefixPath("foo", "foo/bar"))
	require.False(t, IsPrefixPath("foo", "foobar"))
	require.False(t, IsPrefixPath("foo", "foo"))
	require.False(t, IsPrefixPath("foo/bar", "foo"))
}

func TestCheckExportableReportsNesting(t *testing.T) {
	errs := CheckExportable([]string{"foo", "foo/bar", "baz"})
	require.Len(t, errs, 2)
	require.True(t, IsErrNestedName(errs[0]))
	require.True(t, IsErrNestedName(errs[1]))
}

func TestCheckExportableNoNesting(t *testing.T) {
	require.Empty(t, CheckExportable([]string{"foo", "bar", "baz"}))
}
