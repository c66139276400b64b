package requests

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guichet-civil/guichet/internal/platform/httpx"
)

func TestAllowAnyPermitsReversals(t *testing.T) {
	require.NoError(t, AllowAny(StatusDelivered, StatusPending))
	require.NoError(t, AllowAny(StatusRejected, StatusApproved))
	require.ErrorIs(t, AllowAny(StatusPending, Status("archived")), httpx.ErrValidation)
}

func TestStrictFollowsOrderedGraph(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusInReview, true},
		{StatusInReview, StatusApproved, true},
		{StatusInReview, StatusRejected, true},
		{StatusApproved, StatusReadyForPickup, true},
		{StatusReadyForPickup, StatusDelivered, true},
		{StatusPending, StatusApproved, false},
		{StatusPending, StatusDelivered, false},
		{StatusInReview, StatusPending, false},
		{StatusRejected, StatusInReview, false},
		{StatusDelivered, StatusPending, false},
	}
	for _, tc := range cases {
		err := Strict(tc.from, tc.to)
		if tc.allowed {
			require.NoError(t, err, "%s → %s", tc.from, tc.to)
		} else {
			require.ErrorIs(t, err, httpx.ErrValidation, "%s → %s", tc.from, tc.to)
		}
	}
}

func TestFoldStripsDiacritics(t *testing.T) {
	require.Equal(t, "helene faye", Fold("Hélène Faye"))
	require.Equal(t, "francois", Fold("François"))
	require.Equal(t, "deces", Fold("DÉCÈS"))
}
