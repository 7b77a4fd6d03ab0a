package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"inkwell-pipeline/internal/etl"
	"inkwell-pipeline/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func TestSearch(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:geocode")
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "json", r.URL.Query().Get("format"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("q") {
		case "1 Main St Paris":
			fmt.Fprint(w, `[{"lat":"48.8566","lon":"2.3522","display_name":"Paris, Île-de-France, France"}]`)
		default:
			fmt.Fprint(w, `[]`)
		}
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, RequestsPerSecond: 100})

	result, found, err := client.Search(context.Background(), "1 Main St Paris")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, Result{
		Latitude:  48.8566,
		Longitude: 2.3522,
		Locality:  "Paris, Île-de-France, France",
	}, result)

	// an empty result set is unresolved, not an error
	_, found, err = client.Search(context.Background(), "nowhere at all")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSearchServerError(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:geocode")
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, RequestsPerSecond: 100})
	_, _, err := client.Search(context.Background(), "anything")
	require.Error(t, err)
	require.True(t, etl.IsTransient(err))
}

// every sliding one second window must stay at or under the ceiling
func TestSearchRespectsRateCeiling(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:geocode")
	defer cleanup()

	var mu sync.Mutex
	var stamps []time.Time

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	ceiling := 5.0
	client := NewClient(Options{BaseURL: server.URL, RequestsPerSecond: ceiling})

	for i := 0; i < 12; i++ {
		_, _, err := client.Search(context.Background(), "query")
		require.NoError(t, err)
	}

	for i := range stamps {
		count := 0
		for j := i; j < len(stamps); j++ {
			if stamps[j].Sub(stamps[i]) < time.Second {
				count++
			}
		}
		require.LessOrEqual(t, count, int(ceiling)+1,
			"window starting at request %d exceeded the ceiling", i)
	}
}
