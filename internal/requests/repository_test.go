package requests

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/guichet-civil/guichet/testing"
)

func TestSearchConditionFoldsBothNameColumns(t *testing.T) {
	// The pattern is folded in Go, so every column it is compared against
	// must be accent-free too: the stored folded person name, and the
	// owner name unaccented in SQL.
	require.Contains(t, searchConditionSQL, "r.person_fullname_folded LIKE")
	require.Contains(t, searchConditionSQL, "LOWER(unaccent(p.full_name)) LIKE")
	require.Contains(t, searchConditionSQL, "r.id::text LIKE")
	require.False(t, strings.Contains(searchConditionSQL, "LOWER(p.full_name)"))

	require.Equal(t, "helene faye", Fold("Hélène Faye"))
}
