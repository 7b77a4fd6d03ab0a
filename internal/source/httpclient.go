package source

import (
	"context"
	"fmt"
	"time"

	"inkwell-pipeline/internal/etl"
	"inkwell-pipeline/lib/telemetry"

	"github.com/go-resty/resty/v2"
)

const userAgent = "inkwell-pipeline/1.0 (data collection; contact: data@inkwell.example)"

type HTTPOptions struct {
	BaseURL string
	// minimum delay between requests to the same source
	Politeness time.Duration
	Timeout    time.Duration
	MaxRetries int
}

// NewHTTPClient builds the resty client every scraping adapter shares:
// identifiable user agent, bounded timeout, bounded retries with
// exponential backoff on transport errors and non-2xx responses.
func NewHTTPClient(opts HTTPOptions, tracerName string) *resty.Client {
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 30
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetHeader("user-agent", userAgent)
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

	telemetry.InstrumentResty(client, tracerName)
	return client
}

// Politeness enforces the minimum inter-request interval of one source.
// Waits are cooperative, a cancelled context aborts the wait.
type Politeness struct {
	interval time.Duration
	last     time.Time
}

func NewPoliteness(interval time.Duration) *Politeness {
	return &Politeness{interval: interval}
}

func (p *Politeness) Wait(ctx context.Context) error {
	if p.interval == 0 {
		return nil
	}
	wait := p.interval - time.Since(p.last)
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	p.last = time.Now()
	return nil
}

// CheckStatus converts a non-2xx scrape response into an error the
// orchestrator treats as retryable.
func CheckStatus(sourceID string, res *resty.Response) error {
	if res.IsSuccess() {
		return nil
	}
	return etl.TransientSourceError{
		Source: sourceID,
		Err:    fmt.Errorf("unexpected status %d", res.StatusCode()),
	}
}
