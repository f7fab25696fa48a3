package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"seedscraper/internal/core/extract"
	"seedscraper/internal/core/job"
	"seedscraper/internal/core/mapper"
	"seedscraper/internal/core/robots"
	"seedscraper/internal/core/runner"
	"seedscraper/internal/core/seller"
)

type fakeDetail struct{}

func (fakeDetail) ExtractDetail(doc *goquery.Document, url string) (*extract.ProductRecord, error) {
	name := strings.TrimSpace(doc.Find("h1").Text())
	if name == "" {
		return nil, nil
	}
	return &extract.ProductRecord{Name: name, URL: url, Slug: name}, nil
}

func fakeSite(t *testing.T, products []string) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			fmt.Fprint(w, "<urlset>")
			for _, p := range products {
				fmt.Fprintf(w, "<url><loc>%s/product/%s/</loc></url>", srv.URL, p)
			}
			fmt.Fprint(w, "</urlset>")
			return
		}
		if strings.HasPrefix(r.URL.Path, "/product/") {
			name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/product/"), "/")
			fmt.Fprintf(w, "<html><body><h1>%s</h1></body></html>", name)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	svc      *Service
	jobs     *job.Service
	sellers  *seller.MemoryStore
	products *MemoryProductStore
}

func newFixture(t *testing.T, client *http.Client) *fixture {
	t.Helper()
	reg := extract.NewRegistry()
	require.NoError(t, reg.Register(extract.Source{
		Name:                "fakesite",
		Strategy:            extract.StrategySitemap,
		Detail:              fakeDetail{},
		SitemapPath:         "/sitemap.xml",
		ProductPathPatterns: []string{`^/product/[a-z]+/?$`},
	}))
	robotsSvc := robots.New(robots.Options{
		UserAgent: "test-agent",
		MinDelay:  time.Millisecond,
		MaxDelay:  2 * time.Millisecond,
	})
	jobs := job.NewService(job.NewMemoryStore(), nil)
	sellers := seller.NewMemoryStore()
	products := NewMemoryProductStore()
	svc := NewService(Deps{
		Jobs:     jobs,
		Sellers:  sellers,
		Robots:   robotsSvc,
		Registry: reg,
		Runner:   runner.New(runner.Config{Client: client}),
		Mapper:   mapper.New(robotsSvc),
		Products: products,
	})
	return &fixture{svc: svc, jobs: jobs, sellers: sellers, products: products}
}

func seedSeller(t *testing.T, f *fixture, id string, active bool) {
	t.Helper()
	require.NoError(t, f.sellers.Upsert(context.Background(), &seller.Seller{
		ID: id, Name: id, IsActive: active,
	}))
}

func newTask(t *testing.T, p Payload) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(p)
	require.NoError(t, err)
	return asynq.NewTask("scrape:task", body)
}

func TestHandleScrapeTaskCompletesAndPersists(t *testing.T) {
	ctx := context.Background()
	srv := fakeSite(t, []string{"alpha", "beta", "gamma"})
	f := newFixture(t, srv.Client())
	seedSeller(t, f, "seller-1", true)

	j, err := f.jobs.Create(ctx, "seller-1", job.ModeManual, job.CreateParams{})
	require.NoError(t, err)

	err = f.svc.HandleScrapeTask(ctx, newTask(t, Payload{
		JobID:    j.JobID,
		SellerID: "seller-1",
		ScrapingSources: []seller.ScrapingSource{
			{URL: srv.URL, SourceName: "fakesite"},
		},
		Config: RunConfig{Mode: job.ModeManual},
	}))
	require.NoError(t, err)

	got, err := f.jobs.Get(ctx, j.JobID)
	require.NoError(t, err)
	require.Equal(t, job.StatusCompleted, got.Status)
	require.Equal(t, 3, got.ProductsScraped)
	require.Equal(t, 3, got.ProductsSaved)
	require.Equal(t, 0, got.ProductsUpdated)
	require.Equal(t, 0, got.Errors)
	require.NotNil(t, got.StartTime)
	require.NotNil(t, got.EndTime)
	require.Len(t, f.products.Keys(), 3)
}

func TestHandleScrapeTaskSecondRunCountsUpdates(t *testing.T) {
	ctx := context.Background()
	srv := fakeSite(t, []string{"alpha", "beta"})
	f := newFixture(t, srv.Client())
	seedSeller(t, f, "seller-1", true)

	for i := 0; i < 2; i++ {
		j, err := f.jobs.Create(ctx, "seller-1", job.ModeManual, job.CreateParams{})
		require.NoError(t, err)
		require.NoError(t, f.svc.HandleScrapeTask(ctx, newTask(t, Payload{
			JobID:           j.JobID,
			SellerID:        "seller-1",
			ScrapingSources: []seller.ScrapingSource{{URL: srv.URL, SourceName: "fakesite"}},
			Config:          RunConfig{Mode: job.ModeManual},
		})))
		got, err := f.jobs.Get(ctx, j.JobID)
		require.NoError(t, err)
		if i == 0 {
			require.Equal(t, 2, got.ProductsSaved)
			require.Equal(t, 0, got.ProductsUpdated)
		} else {
			require.Equal(t, 0, got.ProductsSaved)
			require.Equal(t, 2, got.ProductsUpdated)
		}
	}
}

func TestHandleScrapeTaskTestModeBoundsURLs(t *testing.T) {
	ctx := context.Background()
	srv := fakeSite(t, []string{"alpha", "beta", "gamma", "delta", "epsilon"})
	f := newFixture(t, srv.Client())
	seedSeller(t, f, "seller-1", true)

	start, end := 1, 3
	j, err := f.jobs.Create(ctx, "seller-1", job.ModeTest, job.CreateParams{StartPage: &start, EndPage: &end})
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleScrapeTask(ctx, newTask(t, Payload{
		JobID:           j.JobID,
		SellerID:        "seller-1",
		ScrapingSources: []seller.ScrapingSource{{URL: srv.URL, SourceName: "fakesite"}},
		Config:          RunConfig{Mode: job.ModeTest, StartPage: &start, EndPage: &end},
	})))

	got, err := f.jobs.Get(ctx, j.JobID)
	require.NoError(t, err)
	require.Equal(t, job.StatusCompleted, got.Status)
	require.Equal(t, 2, got.TotalPages, "endPage-startPage bounds the processed URL set")
	require.Equal(t, 2, got.ProductsScraped)
}

func TestHandleScrapeTaskUnknownSourceFailsJob(t *testing.T) {
	ctx := context.Background()
	srv := fakeSite(t, nil)
	f := newFixture(t, srv.Client())
	seedSeller(t, f, "seller-1", true)

	j, err := f.jobs.Create(ctx, "seller-1", job.ModeManual, job.CreateParams{})
	require.NoError(t, err)

	err = f.svc.HandleScrapeTask(ctx, newTask(t, Payload{
		JobID:           j.JobID,
		SellerID:        "seller-1",
		ScrapingSources: []seller.ScrapingSource{{URL: srv.URL, SourceName: "nosuch"}},
		Config:          RunConfig{Mode: job.ModeManual},
	}))
	require.ErrorIs(t, err, asynq.SkipRetry)

	got, err := f.jobs.Get(ctx, j.JobID)
	require.NoError(t, err)
	require.Equal(t, job.StatusFailed, got.Status)
}

func TestHandleScrapeTaskInactiveSellerFailsJob(t *testing.T) {
	ctx := context.Background()
	srv := fakeSite(t, []string{"alpha"})
	f := newFixture(t, srv.Client())
	seedSeller(t, f, "seller-1", false)

	j, err := f.jobs.Create(ctx, "seller-1", job.ModeManual, job.CreateParams{})
	require.NoError(t, err)

	err = f.svc.HandleScrapeTask(ctx, newTask(t, Payload{
		JobID:           j.JobID,
		SellerID:        "seller-1",
		ScrapingSources: []seller.ScrapingSource{{URL: srv.URL, SourceName: "fakesite"}},
		Config:          RunConfig{Mode: job.ModeManual},
	}))
	require.ErrorIs(t, err, asynq.SkipRetry)

	got, err := f.jobs.Get(ctx, j.JobID)
	require.NoError(t, err)
	require.Equal(t, job.StatusFailed, got.Status)
}

func TestHandleScrapeTaskAutoRefiringCreatesFreshRow(t *testing.T) {
	ctx := context.Background()
	srv := fakeSite(t, []string{"alpha"})
	f := newFixture(t, srv.Client())
	seedSeller(t, f, "seller-1", true)

	j, err := f.jobs.Create(ctx, "seller-1", job.ModeAuto, job.CreateParams{})
	require.NoError(t, err)

	payload := Payload{
		JobID:           j.JobID,
		SellerID:        "seller-1",
		ScrapingSources: []seller.ScrapingSource{{URL: srv.URL, SourceName: "fakesite"}},
		Config:          RunConfig{Mode: job.ModeAuto},
		RepeatOptions:   &RepeatOptions{Repeat: Repeat{Cron: "0 */6 * * *"}, JobID: "auto_scrape_seller-1"},
	}

	require.NoError(t, f.svc.HandleScrapeTask(ctx, newTask(t, payload)))
	first, err := f.jobs.Get(ctx, j.JobID)
	require.NoError(t, err)
	require.Equal(t, job.StatusCompleted, first.Status)

	// Second firing reuses the same payload; the original row is terminal so
	// a fresh auto row absorbs the attempt.
	require.NoError(t, f.svc.HandleScrapeTask(ctx, newTask(t, payload)))
	rows, err := f.jobs.ListBySeller(ctx, "seller-1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.Equal(t, job.StatusCompleted, r.Status)
		require.Equal(t, job.ModeAuto, r.Mode)
	}
}
