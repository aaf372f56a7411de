package feed

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lccanon/simdeg/types"
)

func TestSubject(t *testing.T) {
	subject, err := Subject("simdeg.obs", "boinc", types.KindAgreement)
	require.NoError(t, err)
	require.Equal(t, "simdeg.obs.boinc.agreement", subject)

	for _, pool := range []string{"", "a.b", "a*", "a>", "a b"} {
		_, err := Subject("simdeg.obs", pool, types.KindJoin)
		require.ErrorIs(t, err, types.ErrInvalidObservation, "pool %q", pool)
	}
}

func TestFilterSubject(t *testing.T) {
	require.Equal(t, "simdeg.obs.>", FilterSubject("simdeg.obs"))
}

func TestParseSubject(t *testing.T) {
	pool, kind, ok := parseSubject("simdeg.obs", "simdeg.obs.boinc.collusion")
	require.True(t, ok)
	require.Equal(t, "boinc", pool)
	require.Equal(t, types.KindCollusion, kind)

	for _, subject := range []string{
		"other.boinc.agreement",
		"simdeg.obs.boinc",
		"simdeg.obs.boinc.agreement.extra",
		"simdeg.obs..agreement",
		"simdeg.obsx.boinc.agreement",
	} {
		_, _, ok := parseSubject("simdeg.obs", subject)
		require.False(t, ok, subject)
	}
}

func TestSubject_RoundTrip(t *testing.T) {
	for _, kind := range []types.ObservationKind{types.KindAgreement, types.KindCollusion, types.KindJoin, types.KindLeave} {
		subject, err := Subject("a.b", "pool-1", kind)
		require.NoError(t, err)

		pool, got, ok := parseSubject("a.b", subject)
		require.True(t, ok)
		require.Equal(t, "pool-1", pool)
		require.Equal(t, kind, got)
	}
}
