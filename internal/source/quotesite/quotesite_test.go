package quotesite

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"inkwell-pipeline/internal/source"
	"inkwell-pipeline/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const pageOne = `<html><body>
<div class="quote">
	<span class="text">“The world as we have created it is a process of our thinking.”</span>
	<small class="author">Albert Einstein</small>
	<a href="/author/Albert-Einstein">(about)</a>
	<div class="tags">
		<a class="tag" href="/tag/change/">change</a>
		<a class="tag" href="/tag/world/">world</a>
	</div>
</div>
<div class="quote">
	<span class="text">“Try not to become a man of success.”</span>
	<small class="author">Albert Einstein</small>
	<a href="/author/Albert-Einstein">(about)</a>
	<div class="tags">
		<a class="tag" href="/tag/success/">success</a>
	</div>
</div>
<ul class="pager"><li class="next"><a href="/page/2/">Next</a></li></ul>
</body></html>`

const pageTwo = `<html><body>
<div class="quote">
	<span class="text">“A day without sunshine is like, you know, night.”</span>
	<small class="author">Steve Martin</small>
	<a href="/author/Steve-Martin">(about)</a>
	<div class="tags">
		<a class="tag" href="/tag/humor/">humor</a>
	</div>
</div>
</body></html>`

const einsteinPage = `<html><body>
<h3 class="author-title">Albert Einstein</h3>
<span class="author-born-date">March 14, 1879</span>
<span class="author-born-location">in Ulm, Germany</span>
<div class="author-description">A theoretical physicist.</div>
</body></html>`

const martinPage = `<html><body>
<h3 class="author-title">Steve Martin</h3>
<span class="author-born-date">August 14, 1945</span>
<span class="author-born-location">in Waco, Texas, The United States</span>
<div class="author-description">A comedian.</div>
</body></html>`

func serveSite(t *testing.T) (*httptest.Server, *map[string]int) {
	hits := map[string]int{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path]++
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, pageOne)
		case "/page/2/":
			fmt.Fprint(w, pageTwo)
		case "/author/Albert-Einstein":
			fmt.Fprint(w, einsteinPage)
		case "/author/Steve-Martin":
			fmt.Fprint(w, martinPage)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestExtract(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:source/quotesite")
	defer cleanup()

	server, hits := serveSite(t)
	adapter := New(Options{BaseURL: server.URL})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	page, err := adapter.Extract(ctx, "")
	require.NoError(t, err)

	// two quotes plus one author page, fetched exactly once
	require.Len(t, page.Records, 3)
	require.Equal(t, source.Cursor("/page/2/"), page.Next)
	require.Equal(t, 1, (*hits)["/author/Albert-Einstein"])

	var quote QuotePayload
	require.NoError(t, json.Unmarshal(page.Records[0].Payload, &quote))
	require.Equal(t, "quote", quote.Type)
	require.Equal(t, "The world as we have created it is a process of our thinking.", quote.Text)
	require.Equal(t, "Albert Einstein", quote.Author)
	require.Equal(t, []string{"change", "world"}, quote.Tags)

	var author AuthorPayload
	require.NoError(t, json.Unmarshal(page.Records[1].Payload, &author))
	require.Equal(t, "author", author.Type)
	require.Equal(t, "Albert Einstein", author.Name)
	require.Equal(t, "March 14, 1879", author.BornDate)

	page2, err := adapter.Extract(ctx, page.Next)
	require.NoError(t, err)
	require.Len(t, page2.Records, 2)
	require.Equal(t, source.Cursor(""), page2.Next)

	// the author page was cached within the run
	require.Equal(t, 1, (*hits)["/author/Albert-Einstein"])
	require.Equal(t, 1, (*hits)["/author/Steve-Martin"])
}

func TestNaturalKeyIsContentDerived(t *testing.T) {
	a := QuotePayload{Text: "same text", Author: "same author", PageURL: "/page/1/"}
	b := QuotePayload{Text: "same text", Author: "same author", PageURL: "/page/7/"}
	require.Equal(t, quoteNaturalKey(a), quoteNaturalKey(b))

	c := QuotePayload{Text: "same text", Author: "other author"}
	require.NotEqual(t, quoteNaturalKey(a), quoteNaturalKey(c))
}

func TestMaxPagesCap(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:source/quotesite")
	defer cleanup()

	server, _ := serveSite(t)
	adapter := New(Options{BaseURL: server.URL, MaxPages: 1})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	page, err := adapter.Extract(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, page.Records)

	capped, err := adapter.Extract(ctx, page.Next)
	require.NoError(t, err)
	require.Empty(t, capped.Records)
	require.Equal(t, source.Cursor(""), capped.Next)
}

func TestUserAgentHeader(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:source/quotesite")
	defer cleanup()

	var agent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
		fmt.Fprint(w, pageTwo)
	}))
	defer server.Close()

	adapter := New(Options{BaseURL: server.URL})
	_, err := adapter.Extract(context.Background(), "")
	require.NoError(t, err)
	require.Contains(t, agent, "inkwell-pipeline")
}
