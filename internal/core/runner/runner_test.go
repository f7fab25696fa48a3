package runner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"seedscraper/internal/core/extract"
	"seedscraper/internal/core/robots"
)

type stubDetail struct{}

func (stubDetail) ExtractDetail(doc *goquery.Document, url string) (*extract.ProductRecord, error) {
	name := strings.TrimSpace(doc.Find("h1").Text())
	if name == "" {
		return nil, nil
	}
	return &extract.ProductRecord{Name: name, URL: url}, nil
}

type stubListing struct{}

func (stubListing) ExtractListing(doc *goquery.Document) (*extract.ListingPage, error) {
	page := &extract.ListingPage{}
	doc.Find("div.item").Each(func(_ int, s *goquery.Selection) {
		page.Records = append(page.Records, extract.ProductRecord{
			Name: strings.TrimSpace(s.Text()),
			URL:  s.AttrOr("data-url", ""),
		})
	})
	page.NextPageURL, _ = doc.Find("a.next").Attr("href")
	return page, nil
}

func testPolicy(t *testing.T, baseURL string) *robots.Policy {
	t.Helper()
	svc := robots.New(robots.Options{
		UserAgent: "test-agent",
		MinDelay:  time.Millisecond,
		MaxDelay:  2 * time.Millisecond,
	})
	return svc.PolicyFor(context.Background(), baseURL)
}

func newTestRunner(client *http.Client) (*Runner, *[]time.Duration) {
	r := New(Config{Client: client, MaxRetries: 3})
	var sleeps []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) { sleeps = append(sleeps, d) }
	return r, &sleeps
}

func TestRunSitemapStrategy(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/sitemap.xml":
			fmt.Fprintf(w, `<urlset>
<url><loc>%[1]s/product/alpha/</loc></url>
<url><loc>%[1]s/page/2/</loc></url>
<url><loc>%[1]s/product/beta/</loc></url>
<url><loc>%[1]s/category/seeds/</loc></url>
<url><loc>%[1]s/product/broken/</loc></url>
</urlset>`, srv.URL)
		case r.URL.Path == "/product/broken/":
			fmt.Fprint(w, `<html><body><p>no title here</p></body></html>`)
		case strings.HasPrefix(r.URL.Path, "/product/"):
			name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/product/"), "/")
			fmt.Fprintf(w, `<html><body><h1>%s</h1></body></html>`, name)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	r, sleeps := newTestRunner(srv.Client())
	var progressCalls int32
	res, err := r.Run(context.Background(), Input{
		Source: extract.Source{
			Name:                "stubsite",
			Strategy:            extract.StrategySitemap,
			Detail:              stubDetail{},
			SitemapPath:         "/sitemap.xml",
			ProductPathPatterns: []string{`^/product/[a-z-]+/?$`},
		},
		BaseURL:  srv.URL,
		Policy:   testPolicy(t, srv.URL),
		Progress: func(Progress) { atomic.AddInt32(&progressCalls, 1) },
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.URLsDiscovered)
	require.Equal(t, 3, res.URLsToProcess)
	require.Equal(t, 3, res.TotalPages)
	require.Equal(t, 2, res.TotalProducts)
	require.Equal(t, 1, res.Errors, "extraction miss on the broken page is counted, not fatal")
	require.Equal(t, []string{"alpha", "beta"}, []string{res.Records[0].Name, res.Records[1].Name})
	require.EqualValues(t, 3, progressCalls)
	require.Len(t, *sleeps, 2, "one courtesy sleep between consecutive fetches")
}

func TestRunSitemapTestModeTruncatesDeterministically(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			fmt.Fprint(w, "<urlset>")
			for _, s := range []string{"a", "b", "c", "d", "e"} {
				fmt.Fprintf(w, "<url><loc>%s/product/%s/</loc></url>", srv.URL, s)
			}
			fmt.Fprint(w, "</urlset>")
			return
		}
		name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/product/"), "/")
		fmt.Fprintf(w, `<html><body><h1>%s</h1></body></html>`, name)
	}))
	defer srv.Close()

	r, _ := newTestRunner(srv.Client())
	in := Input{
		Source: extract.Source{
			Name:                "stubsite",
			Strategy:            extract.StrategySitemap,
			Detail:              stubDetail{},
			ProductPathPatterns: []string{`^/product/[a-z]+/?$`},
		},
		BaseURL:   srv.URL,
		Policy:    testPolicy(t, srv.URL),
		TestLimit: 2, // startPage=1, endPage=3
	}
	res, err := r.Run(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 5, res.URLsDiscovered)
	require.Equal(t, 2, res.URLsToProcess)
	require.Equal(t, []string{"a", "b"}, []string{res.Records[0].Name, res.Records[1].Name})

	// Same limit, same discovery order, same URLs: reproducible.
	res2, err := r.Run(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, res.Records, res2.Records)
}

func TestFetchRetriesOn429ThenSucceeds(t *testing.T) {
	var hits int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			fmt.Fprintf(w, "<urlset><url><loc>%s/product/slow/</loc></url></urlset>", srv.URL)
			return
		}
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `<html><body><h1>slow</h1></body></html>`)
	}))
	defer srv.Close()

	r, sleeps := newTestRunner(srv.Client())
	policy := testPolicy(t, srv.URL)
	res, err := r.Run(context.Background(), Input{
		Source: extract.Source{
			Name:                "stubsite",
			Strategy:            extract.StrategySitemap,
			Detail:              stubDetail{},
			ProductPathPatterns: []string{`^/product/[a-z]+/?$`},
		},
		BaseURL: srv.URL,
		Policy:  policy,
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalProducts)
	require.Equal(t, 0, res.Errors, "a retried-then-successful URL does not count as an error")
	require.NotEmpty(t, *sleeps)
	require.Equal(t, policy.BackoffFor(429), (*sleeps)[0], "backoff after 429 is the policy-computed value")
}

func TestFetchDoesNotRetryPermanentErrors(t *testing.T) {
	var hits int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			fmt.Fprintf(w, "<urlset><url><loc>%s/product/gone/</loc></url><url><loc>%s/product/ok/</loc></url></urlset>", srv.URL, srv.URL)
			return
		}
		if strings.Contains(r.URL.Path, "gone") {
			atomic.AddInt32(&hits, 1)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `<html><body><h1>ok</h1></body></html>`)
	}))
	defer srv.Close()

	r, _ := newTestRunner(srv.Client())
	res, err := r.Run(context.Background(), Input{
		Source: extract.Source{
			Name:                "stubsite",
			Strategy:            extract.StrategySitemap,
			Detail:              stubDetail{},
			ProductPathPatterns: []string{`^/product/[a-z]+/?$`},
		},
		BaseURL: srv.URL,
		Policy:  testPolicy(t, srv.URL),
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, hits, "404 is fetched exactly once")
	require.Equal(t, 1, res.Errors)
	require.Equal(t, 1, res.TotalProducts, "the bad URL does not abort the run")
}

func TestRunPaginationFollowsNextAndStalls(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		switch page {
		case "", "1":
			fmt.Fprintf(w, `<html><body><div class="item" data-url="u1">one</div><div class="item" data-url="u2">two</div><a class="next" href="%s/shop?page=2">next</a></body></html>`, srv.URL)
		case "2":
			fmt.Fprintf(w, `<html><body><a class="next" href="%s/shop?page=3">next</a></body></html>`, srv.URL)
		case "3":
			fmt.Fprintf(w, `<html><body><a class="next" href="%s/shop?page=4">next</a></body></html>`, srv.URL)
		default:
			fmt.Fprint(w, `<html><body><div class="item">never reached</div></body></html>`)
		}
	}))
	defer srv.Close()

	r, _ := newTestRunner(srv.Client())
	res, err := r.Run(context.Background(), Input{
		Source:  extract.Source{Name: "stublist", Strategy: extract.StrategyPagination, Listing: stubListing{}},
		BaseURL: srv.URL + "/shop",
		Policy:  testPolicy(t, srv.URL),
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.TotalPages, "stops after two consecutive empty pages")
	require.Equal(t, 2, res.TotalProducts)
	require.Equal(t, 0, res.Errors)
}

func TestRunPaginationHonorsPageBound(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if q := r.URL.Query().Get("page"); q != "" {
			fmt.Sscanf(q, "%d", &page)
		}
		fmt.Fprintf(w, `<html><body><div class="item">p%d</div><a class="next" href="%s/shop?page=%d">next</a></body></html>`, page, srv.URL, page+1)
	}))
	defer srv.Close()

	r, _ := newTestRunner(srv.Client())
	res, err := r.Run(context.Background(), Input{
		Source:  extract.Source{Name: "stublist", Strategy: extract.StrategyPagination, Listing: stubListing{}},
		BaseURL: srv.URL + "/shop",
		Policy:  testPolicy(t, srv.URL),
		MaxPage: 4,
	})
	require.NoError(t, err)
	require.Equal(t, 4, res.TotalPages)
	require.Equal(t, 4, res.TotalProducts)
}

func TestRunPaginationUnreachableSourceFailsRunLevel(t *testing.T) {
	r, _ := newTestRunner(&http.Client{Timeout: 200 * time.Millisecond})
	_, err := r.Run(context.Background(), Input{
		Source:  extract.Source{Name: "stublist", Strategy: extract.StrategyPagination, Listing: stubListing{}},
		BaseURL: "http://127.0.0.1:1/shop",
		Policy:  testPolicy(t, "http://127.0.0.1:1"),
	})
	require.Error(t, err)
}

func TestZeroRecordRunIsWellFormed(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			fmt.Fprintf(w, "<urlset><url><loc>%s/product/x/</loc></url><url><loc>%s/product/y/</loc></url></urlset>", srv.URL, srv.URL)
			return
		}
		fmt.Fprint(w, `<html><body><p>nothing extractable</p></body></html>`)
	}))
	defer srv.Close()

	r, _ := newTestRunner(srv.Client())
	res, err := r.Run(context.Background(), Input{
		Source: extract.Source{
			Name:                "stubsite",
			Strategy:            extract.StrategySitemap,
			Detail:              stubDetail{},
			ProductPathPatterns: []string{`^/product/[a-z]+/?$`},
		},
		BaseURL: srv.URL,
		Policy:  testPolicy(t, srv.URL),
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.TotalProducts)
	require.Equal(t, 2, res.TotalPages)
	require.Equal(t, 2, res.Errors)
	require.NotZero(t, res.Elapsed)
}
