// Package booksite scrapes the paginated book catalogue.
package booksite

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"path"
	"strings"
	"time"

	"inkwell-pipeline/internal/etl"
	"inkwell-pipeline/internal/source"
	"inkwell-pipeline/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("source/booksite")

const SourceID = "site-books"

type BookPayload struct {
	Title        string `json:"title"`
	Price        string `json:"price"`
	Currency     string `json:"currency"`
	Availability string `json:"availability"`
	Rating       int    `json:"rating"`
	URL          string `json:"url"`
}

type Options struct {
	BaseURL    string
	Politeness time.Duration
	MaxRetries int
	MaxPages   int
	// first page to fetch relative to BaseURL, "/" when empty. The
	// catalogue's listing does not live at the site root.
	StartPath string
}

type Adapter struct {
	http      *resty.Client
	polite    *source.Politeness
	maxPages  int
	pages     int
	startPath string
}

func New(opts Options) *Adapter {
	startPath := opts.StartPath
	if startPath == "" {
		startPath = "/"
	}
	return &Adapter{
		http: source.NewHTTPClient(source.HTTPOptions{
			BaseURL:    opts.BaseURL,
			MaxRetries: opts.MaxRetries,
		}, "source/booksite"),
		polite:    source.NewPoliteness(opts.Politeness),
		maxPages:  opts.MaxPages,
		startPath: startPath,
	}
}

func (a *Adapter) ID() string {
	return SourceID
}

var ratingWords = map[string]int{
	"One": 1, "Two": 2, "Three": 3, "Four": 4, "Five": 5,
}

func (a *Adapter) Extract(ctx context.Context, cursor source.Cursor) (source.Page, error) {
	ctx, span := tracer.Start(ctx, "adapter:Extract")
	defer span.End()

	endpoint := string(cursor)
	if endpoint == "" {
		endpoint = a.startPath
	}
	span.SetAttributes(attribute.String("page", endpoint))

	if a.maxPages > 0 && a.pages >= a.maxPages {
		return source.Page{}, nil
	}

	err := a.polite.Wait(ctx)
	if err != nil {
		return source.Page{}, err
	}

	res, err := a.http.R().
		SetContext(ctx).
		Get(endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return source.Page{}, etl.TransientSourceError{Source: SourceID, Err: err}
	}
	err = source.CheckStatus(SourceID, res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return source.Page{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return source.Page{}, err
	}
	a.pages++

	var page source.Page
	fetchedAt := time.Now()

	doc.Find("article.product_pod").Each(func(_ int, sel *goquery.Selection) {
		payload := parseBook(sel, endpoint)
		if payload.Title == "" {
			page.Rejects = append(page.Rejects, etl.Reject{
				SourceID: SourceID,
				Stage:    "extract",
				Reason:   "missing_title",
			})
			return
		}

		raw, err := json.Marshal(payload)
		if err != nil {
			return
		}
		page.Records = append(page.Records, etl.RawRecord{
			SourceID:     SourceID,
			NaturalKey:   payload.URL,
			Payload:      raw,
			FetchedAt:    fetchedAt,
			AttemptCount: 1,
		})
	})

	next := doc.Find("li.next a").AttrOr("href", "")
	if next != "" {
		// catalogue hrefs are relative to the current page
		next = path.Join(path.Dir(endpoint), next)
	}
	page.Next = source.Cursor(next)

	return page, nil
}

func parseBook(sel *goquery.Selection, pageURL string) BookPayload {
	b := BookPayload{
		Title:        sel.Find("h3 a").AttrOr("title", ""),
		Availability: htmlutil.CleanText(sel.Find("p.instock.availability").Text()),
		URL:          sel.Find("h3 a").AttrOr("href", ""),
	}

	price := htmlutil.CleanText(sel.Find("p.price_color").Text())
	b.Currency, b.Price = splitCurrency(price)

	rating := sel.Find("p.star-rating").AttrOr("class", "")
	for word, n := range ratingWords {
		if strings.Contains(rating, word) {
			b.Rating = n
			break
		}
	}

	if b.URL != "" {
		if u, err := url.Parse(b.URL); err == nil && !u.IsAbs() {
			b.URL = path.Join(path.Dir(pageURL), b.URL)
		}
	}
	return b
}

// splitCurrency separates the currency symbol prefix from the numeric
// part of a scraped price like "£10.99".
func splitCurrency(price string) (currency, amount string) {
	symbols := map[string]string{
		"£": "GBP",
		"€": "EUR",
		"$": "USD",
	}
	for sym, code := range symbols {
		if strings.HasPrefix(price, sym) {
			return code, strings.TrimPrefix(price, sym)
		}
	}
	return "", price
}
