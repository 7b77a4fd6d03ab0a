package transform

import (
	"context"
	"testing"

	"inkwell-pipeline/internal/etl"

	"github.com/stretchr/testify/require"
)

func TestPseudonymize(t *testing.T) {
	stage := Pseudonymize{
		Columns: map[string]string{
			"contact_email": "drop",
			"owner_name":    "hash",
			"phone":         "drop",
		},
		Salt: "test-salt",
	}

	store := etl.NewEntity(etl.KindBookstore, "store:a|paris")
	store.Set("name", "Store A", "file-bookstores")
	store.Set("contact_email", "owner@example.com", "file-bookstores")
	store.Set("owner_name", "Jane Doe", "file-bookstores")
	store.Set("phone", "+33 1 00 00 00 01", "file-bookstores")

	out, rejects, err := stage.Apply(context.Background(), Batch{
		Entities: []etl.Entity{store},
	})
	require.NoError(t, err)
	require.Empty(t, rejects)

	e := out.Entities[0]
	_, hasEmail := e.Fields["contact_email"]
	require.False(t, hasEmail)
	_, hasPhone := e.Fields["phone"]
	require.False(t, hasPhone)
	require.Equal(t, "Store A", e.Str("name"))

	pseudonym := e.Str("owner_name")
	require.NotEqual(t, "Jane Doe", pseudonym)
	require.Len(t, pseudonym, 16)

	// stable for the same input and salt
	require.Equal(t, pseudonym, stage.pseudonym("Jane Doe"))
	// a different salt yields a different pseudonym
	other := Pseudonymize{Salt: "other-salt"}
	require.NotEqual(t, pseudonym, other.pseudonym("Jane Doe"))
}
