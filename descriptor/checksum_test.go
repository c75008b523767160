package descriptor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var checksumTestCases = []struct {
	descriptor  string
	expectedSum string
}{{
	descriptor:  "addr(mkmZxiEcEd8ZqjQWVZuC6so5dFMKEFpN2j)",
	expectedSum: "#02wpgw69",
}, {
	descriptor:  "tr(cRhCT5vC5NdnSrQ2Jrah6NPCcth41uT8DWFmA6uD8R4x2ufucnYX)",
	expectedSum: "#gwfmkgga",
}}

func TestChecksum(t *testing.T) {
	for _, tc := range checksumTestCases {
		sum := ChecksumCreate(tc.descriptor)
		require.Equal(t, tc.descriptor+tc.expectedSum, sum)
		require.True(t, ChecksumVerify(sum, true))
		require.Equal(t, tc.descriptor, ChecksumStrip(sum))
	}
}

func TestChecksumRequiredVsOptional(t *testing.T) {
	bare := checksumTestCases[0].descriptor
	require.False(t, ChecksumVerify(bare, true))
	require.True(t, ChecksumVerify(bare, false))

	wrong := bare + "#00000000"
	require.False(t, ChecksumVerify(wrong, true))
	require.False(t, ChecksumVerify(wrong, false))
}
