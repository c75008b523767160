package descriptor

import (
	"testing"

	"github.com/lightninglabs/outputdesc/keyexpr"
	"github.com/stretchr/testify/require"
)

func TestResolveMultipathWildcard(t *testing.T) {
	change := 1
	resolved, err := ResolveMultipath(
		"wpkh([fp/84'/0'/0']xpub.../**)", &change,
	)
	require.NoError(t, err)
	require.Equal(t, "wpkh([fp/84'/0'/0']xpub.../<1>/*)", resolved)
}

func TestResolveMultipathTuple(t *testing.T) {
	change := 5
	resolved, err := ResolveMultipath(
		"wsh(multi(1,xpubA/<0;5;9>/*,xpubB/<0;5;9>/*))", &change,
	)
	require.NoError(t, err)
	require.Equal(t,
		"wsh(multi(1,xpubA/<5>/*,xpubB/<5>/*))", resolved)
}

func TestResolveMultipathRequiresChange(t *testing.T) {
	_, err := ResolveMultipath("wpkh(xpub.../<0;1>/*)", nil)
	require.ErrorIs(t, err, keyexpr.ErrRange)
}

func TestResolveMultipathChangeNotInTuple(t *testing.T) {
	change := 7
	_, err := ResolveMultipath("wpkh(xpub.../<0;1>/*)", &change)
	require.ErrorIs(t, err, keyexpr.ErrRange)
}

func TestResolveMultipathMismatchedCardinality(t *testing.T) {
	change := 0
	_, err := ResolveMultipath(
		"wsh(multi(1,xpubA/<0;1>/*,xpubB/<0;1;2>/*))", &change,
	)
	require.ErrorIs(t, err, keyexpr.ErrParse)
}

func TestResolveMultipathIdempotent(t *testing.T) {
	change := 1
	once, err := ResolveMultipath("wpkh(xpub.../**)", &change)
	require.NoError(t, err)

	twice, err := ResolveMultipath(once, &change)
	require.NoError(t, err)
	require.Equal(t, once, twice)
}

func TestResolveMultipathNoTuples(t *testing.T) {
	resolved, err := ResolveMultipath("pkh(02aabb)", nil)
	require.NoError(t, err)
	require.Equal(t, "pkh(02aabb)", resolved)
}
