// Package quotesite scrapes the paginated quotes website, emitting one
// raw record per quote plus one per newly discovered author page.
package quotesite

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"inkwell-pipeline/internal/etl"
	"inkwell-pipeline/internal/source"
	"inkwell-pipeline/lib/htmlutil"
	"inkwell-pipeline/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("source/quotesite")

const SourceID = "site-quotes"

type QuotePayload struct {
	Type      string   `json:"type"`
	Text      string   `json:"text"`
	Author    string   `json:"author"`
	AuthorURL string   `json:"author_url"`
	Tags      []string `json:"tags"`
	PageURL   string   `json:"page_url"`
}

type AuthorPayload struct {
	Type         string `json:"type"`
	Name         string `json:"name"`
	BornDate     string `json:"born_date"`
	BornLocation string `json:"born_location"`
	Bio          string `json:"bio"`
	URL          string `json:"url"`
}

type Options struct {
	BaseURL    string
	Politeness time.Duration
	MaxRetries int
	// safety cap, 0 means unbounded
	MaxPages int
}

type Adapter struct {
	http     *resty.Client
	polite   *source.Politeness
	maxPages int
	pages    int
	// author pages already fetched during this run
	seenAuthors map[string]bool
}

func New(opts Options) *Adapter {
	return &Adapter{
		http: source.NewHTTPClient(source.HTTPOptions{
			BaseURL:    opts.BaseURL,
			MaxRetries: opts.MaxRetries,
		}, "source/quotesite"),
		polite:      source.NewPoliteness(opts.Politeness),
		maxPages:    opts.MaxPages,
		seenAuthors: map[string]bool{},
	}
}

func (a *Adapter) ID() string {
	return SourceID
}

func (a *Adapter) Extract(ctx context.Context, cursor source.Cursor) (source.Page, error) {
	ctx, span := tracer.Start(ctx, "adapter:Extract")
	defer span.End()

	endpoint := string(cursor)
	if endpoint == "" {
		endpoint = "/"
	}
	span.SetAttributes(attribute.String("page", endpoint))

	if a.maxPages > 0 && a.pages >= a.maxPages {
		return source.Page{}, nil
	}

	doc, err := a.fetch(ctx, endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return source.Page{}, err
	}
	a.pages++

	var page source.Page
	fetchedAt := time.Now()

	var quotes []QuotePayload
	doc.Find("div.quote").Each(func(_ int, sel *goquery.Selection) {
		quotes = append(quotes, parseQuote(sel, endpoint))
	})

	for _, q := range quotes {
		if q.Text == "" {
			page.Rejects = append(page.Rejects, etl.Reject{
				SourceID: SourceID,
				Stage:    "extract",
				Reason:   "empty_quote_text",
			})
			continue
		}
		payload, err := json.Marshal(q)
		if err != nil {
			return source.Page{}, err
		}
		page.Records = append(page.Records, etl.RawRecord{
			SourceID:     SourceID,
			NaturalKey:   quoteNaturalKey(q),
			Payload:      payload,
			FetchedAt:    fetchedAt,
			AttemptCount: 1,
		})

		if q.AuthorURL == "" || a.seenAuthors[q.AuthorURL] {
			continue
		}
		a.seenAuthors[q.AuthorURL] = true

		author, err := a.fetchAuthor(ctx, q.AuthorURL)
		if err != nil {
			span.RecordError(err)
			return source.Page{}, err
		}
		authorPayload, err := json.Marshal(author)
		if err != nil {
			return source.Page{}, err
		}
		page.Records = append(page.Records, etl.RawRecord{
			SourceID:     SourceID,
			NaturalKey:   q.AuthorURL,
			Payload:      authorPayload,
			FetchedAt:    fetchedAt,
			AttemptCount: 1,
		})
	}

	// pagination continues until the source stops advertising a next
	// page, not for a fixed count
	next := doc.Find("li.next a").AttrOr("href", "")
	page.Next = source.Cursor(next)

	return page, nil
}

func (a *Adapter) fetch(ctx context.Context, endpoint string) (*goquery.Document, error) {
	err := a.polite.Wait(ctx)
	if err != nil {
		return nil, err
	}

	res, err := a.http.R().
		SetContext(ctx).
		Get(endpoint)
	if err != nil {
		return nil, etl.TransientSourceError{Source: SourceID, Err: err}
	}
	err = source.CheckStatus(SourceID, res)
	if err != nil {
		return nil, err
	}

	return goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
}

func (a *Adapter) fetchAuthor(ctx context.Context, authorURL string) (AuthorPayload, error) {
	ctx, span := tracer.Start(ctx, "adapter:fetchAuthor")
	defer span.End()
	span.SetAttributes(attribute.String("url", authorURL))

	doc, err := a.fetch(ctx, authorURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return AuthorPayload{}, err
	}

	return AuthorPayload{
		Type:         "author",
		Name:         htmlutil.CleanText(doc.Find("h3.author-title").Text()),
		BornDate:     htmlutil.CleanText(doc.Find("span.author-born-date").Text()),
		BornLocation: htmlutil.CleanText(doc.Find("span.author-born-location").Text()),
		Bio:          htmlutil.CleanText(doc.Find("div.author-description").Text()),
		URL:          authorURL,
	}, nil
}

func parseQuote(sel *goquery.Selection, pageURL string) QuotePayload {
	q := QuotePayload{
		Type:    "quote",
		Text:    textutil.StripQuoteMarks(sel.Find("span.text").Text()),
		Author:  htmlutil.CleanText(sel.Find("small.author").Text()),
		PageURL: pageURL,
	}
	sel.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := a.AttrOr("href", "")
		if href != "" && len(href) > len("/author/") && href[:len("/author/")] == "/author/" {
			q.AuthorURL = href
			return false
		}
		return true
	})
	sel.Find("div.tags a.tag").Each(func(_ int, t *goquery.Selection) {
		tag := htmlutil.CleanText(t.Text())
		if tag != "" {
			q.Tags = append(q.Tags, tag)
		}
	})
	return q
}

// the quote's content is its identity, the same quote found on two
// different pages keys identically
func quoteNaturalKey(q QuotePayload) string {
	h := sha256.Sum256([]byte(q.Text + "\x00" + q.Author))
	return "quote:" + hex.EncodeToString(h[:8])
}
