package transform

import (
	"context"
	"errors"
	"testing"

	"inkwell-pipeline/internal/etl"
	"inkwell-pipeline/internal/geocode"

	"github.com/stretchr/testify/require"
)

type fakeGeocoder struct {
	results map[string]geocode.Result
	err     error
	queries []string
}

func (f *fakeGeocoder) Search(ctx context.Context, query string) (geocode.Result, bool, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return geocode.Result{}, false, f.err
	}
	result, ok := f.results[query]
	return result, ok, nil
}

func TestEnrich(t *testing.T) {
	geocoder := &fakeGeocoder{results: map[string]geocode.Result{
		"1 Main St Paris": {Latitude: 48.8566, Longitude: 2.3522, Locality: "Paris, France"},
	}}
	stage := Enrich{Geocoder: geocoder}

	resolved := etl.NewEntity(etl.KindBookstore, "store:a|paris")
	resolved.Set("address", "1 Main St", "file-bookstores")
	resolved.Set("city", "Paris", "file-bookstores")

	unresolved := etl.NewEntity(etl.KindBookstore, "store:b|nowhere")
	unresolved.Set("address", "42 Missing Rd", "file-bookstores")

	noAddress := etl.NewEntity(etl.KindBook, "book:c")
	noAddress.Set("title", "C", "site-books")

	out, rejects, err := stage.Apply(context.Background(), Batch{
		Entities: []etl.Entity{resolved, unresolved, noAddress},
	})
	require.NoError(t, err)
	require.Empty(t, rejects)
	require.Len(t, out.Entities, 3)

	e := out.Entities[0]
	require.Equal(t, etl.EnrichmentResolved, e.Enrichment)
	lat, _ := e.Float("latitude")
	require.Equal(t, 48.8566, lat)
	require.Equal(t, "Paris, France", e.Str("locality"))

	// a miss is recorded, never dropped
	require.Equal(t, etl.EnrichmentUnresolved, out.Entities[1].Enrichment)
	_, hasLat := out.Entities[1].Fields["latitude"]
	require.False(t, hasLat)

	// entities without an address never reach the geocoder
	require.Equal(t, []string{"1 Main St Paris", "42 Missing Rd"}, geocoder.queries)
}

func TestEnrichGeocoderError(t *testing.T) {
	geocoder := &fakeGeocoder{err: errors.New("connection refused")}
	stage := Enrich{Geocoder: geocoder}

	store := etl.NewEntity(etl.KindBookstore, "store:a|paris")
	store.Set("address", "1 Main St", "file-bookstores")

	out, rejects, err := stage.Apply(context.Background(), Batch{
		Entities: []etl.Entity{store},
	})
	require.NoError(t, err)
	require.Empty(t, out.Entities)
	require.Len(t, rejects, 1)
	require.Equal(t, "enrich", rejects[0].Stage)
	require.Contains(t, rejects[0].Reason, "geocode_failed")
}

func TestEnrichNilGeocoder(t *testing.T) {
	stage := Enrich{}

	store := etl.NewEntity(etl.KindBookstore, "store:a|paris")
	store.Set("address", "1 Main St", "file-bookstores")

	out, rejects, err := stage.Apply(context.Background(), Batch{
		Entities: []etl.Entity{store},
	})
	require.NoError(t, err)
	require.Empty(t, rejects)
	require.Len(t, out.Entities, 1)
	require.Equal(t, etl.EnrichmentNone, out.Entities[0].Enrichment)
}
