// Package geocode wraps the free-text geocoding collaborator. The
// client never exceeds the source's published request ceiling, calls
// that would go over suspend on the limiter instead of failing.
package geocode

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"inkwell-pipeline/internal/etl"
	"inkwell-pipeline/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("geocode")

type Result struct {
	Latitude  float64
	Longitude float64
	Locality  string
}

// Geocoder is what the enrichment stage depends on, the second return
// is false when the source had no result for the query.
type Geocoder interface {
	Search(ctx context.Context, query string) (Result, bool, error)
}

type Options struct {
	BaseURL string
	// published ceiling of the source, requests per second
	RequestsPerSecond float64
	Timeout           time.Duration
	MaxRetries        int
}

type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
}

func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 10
	}
	if opts.RequestsPerSecond == 0 {
		opts.RequestsPerSecond = 50
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetHeader("user-agent", "inkwell-pipeline/1.0 (geocoding; contact: data@inkwell.example)")
	client.SetTimeout(opts.Timeout)
	client.SetRetryCount(opts.MaxRetries)
	client.SetRetryWaitTime(time.Second)
	client.SetRetryMaxWaitTime(time.Second * 10)
	client.AddRetryCondition(func(res *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return res.StatusCode() >= 500
	})
	telemetry.InstrumentResty(client, "geocode/http")

	// burst of 1 keeps every sliding one-second window at or under
	// the ceiling
	return &Client{
		http:    client,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
	}
}

type searchHit struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Search geocodes a free-text address. An empty result set from the
// source is a normal unresolved outcome, not an error.
func (c *Client) Search(ctx context.Context, query string) (Result, bool, error) {
	ctx, span := tracer.Start(ctx, "client:Search")
	defer span.End()
	span.SetAttributes(attribute.String("query", query))

	err := c.limiter.Wait(ctx)
	if err != nil {
		return Result{}, false, err
	}

	var hits []searchHit
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetQueryParam("format", "json").
		SetResult(&hits).
		Get("/search")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, false, etl.TransientSourceError{Source: "api-address", Err: err}
	}
	err = checkStatus(res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, false, err
	}

	if len(hits) == 0 {
		span.SetStatus(codes.Ok, "no result")
		return Result{}, false, nil
	}

	first := hits[0]
	lat, err := strconv.ParseFloat(first.Lat, 64)
	if err != nil {
		return Result{}, false, etl.ValidationError{FieldName: "lat", Reason: "unparsable coordinate"}
	}
	lon, err := strconv.ParseFloat(first.Lon, 64)
	if err != nil {
		return Result{}, false, etl.ValidationError{FieldName: "lon", Reason: "unparsable coordinate"}
	}

	return Result{
		Latitude:  lat,
		Longitude: lon,
		Locality:  first.DisplayName,
	}, true, nil
}

func checkStatus(res *resty.Response) error {
	if res.IsSuccess() {
		return nil
	}
	return etl.TransientSourceError{
		Source: "api-address",
		Err:    fmt.Errorf("unexpected status %d", res.StatusCode()),
	}
}
