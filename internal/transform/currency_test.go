package transform

import (
	"context"
	"testing"

	"inkwell-pipeline/internal/etl"

	"github.com/stretchr/testify/require"
)

func TestConvertCurrency(t *testing.T) {
	stage := ConvertCurrency{
		Target: "EUR",
		Rates:  map[string]float64{"GBP": 1.17, "USD": 0.92},
	}

	gbp := etl.NewEntity(etl.KindBook, "book:a")
	gbp.Set("price", 10.99, "site-books")
	gbp.Set("currency", "GBP", "site-books")

	eur := etl.NewEntity(etl.KindBookstore, "store:b|paris")
	eur.Set("avg_price", 12.50, "file-bookstores")
	eur.Set("currency", "EUR", "file-bookstores")

	unknown := etl.NewEntity(etl.KindBook, "book:c")
	unknown.Set("price", 5.0, "site-books")
	unknown.Set("currency", "JPY", "site-books")

	out, rejects, err := stage.Apply(context.Background(), Batch{
		Entities: []etl.Entity{gbp, eur, unknown},
	})
	require.NoError(t, err)
	require.Len(t, out.Entities, 2)

	price, _ := out.Entities[0].Float("price")
	require.Equal(t, 12.86, price)
	require.Equal(t, "EUR", out.Entities[0].Str("currency"))

	// already in the target currency, untouched
	avg, _ := out.Entities[1].Float("avg_price")
	require.Equal(t, 12.50, avg)

	require.Len(t, rejects, 1)
	require.Equal(t, "missing_rate: JPY", rejects[0].Reason)
	require.Equal(t, "book:c", rejects[0].NaturalKey)
}
