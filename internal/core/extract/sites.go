package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// builtinSources lists every site plugin the engine ships with. Adding a
// source is one entry here plus its extractor; the runner never changes.
func builtinSources() []Source {
	return []Source{
		{
			Name:     "seedcity",
			Strategy: StrategyPagination,
			Listing:  seedCityExtractor{},
		},
		{
			Name:     "growershub",
			Strategy: StrategyPagination,
			Listing:  growersHubExtractor{},
		},
		{
			Name:                "herbaldepot",
			Strategy:            StrategySitemap,
			Detail:              herbalDepotExtractor{},
			SitemapPath:         "/sitemap.xml",
			ProductPathPatterns: []string{`^/product/[a-z0-9-]+/?$`},
		},
		{
			Name:                "cropkings",
			Strategy:            StrategySitemap,
			Detail:              cropKingsExtractor{},
			SitemapPath:         "/sitemap_products.xml",
			ProductPathPatterns: []string{`^/seeds/[a-z0-9-]+/?$`, `^/shop/[a-z0-9-]+-seeds/?$`},
		},
	}
}

// ---- seedcity: WooCommerce-style listing grid ----

type seedCityExtractor struct{}

func (seedCityExtractor) ExtractListing(doc *goquery.Document) (*ListingPage, error) {
	page := &ListingPage{}

	doc.Find("ul.products li.product").Each(func(_ int, sel *goquery.Selection) {
		var rec ProductRecord
		link := sel.Find("a.woocommerce-LoopProduct-link")
		rec.URL, _ = link.Attr("href")
		if rec.URL == "" {
			return
		}
		rec.Name = strings.TrimSpace(sel.Find("h2.woocommerce-loop-product__title").Text())
		rec.Slug = slugFromURL(rec.URL)
		rec.ImageURL, _ = sel.Find("img").First().Attr("src")
		rec.SeedType = seedTypeFrom(rec.Name + " " + sel.AttrOr("class", ""))

		if priceText := sel.Find("span.price").First().Text(); priceText != "" {
			if price, cur, ok := parsePrice(priceText); ok {
				rec.Prices = append(rec.Prices, PriceTier{PackSize: 1, Price: price, Currency: cur})
			}
		}
		page.Records = append(page.Records, rec)
	})

	if href, ok := doc.Find("a.next.page-numbers").First().Attr("href"); ok {
		page.NextPageURL = strings.TrimSpace(href)
	}
	return page, nil
}

// ---- growershub: table-based listing with inline attribute cells ----

type growersHubExtractor struct{}

func (growersHubExtractor) ExtractListing(doc *goquery.Document) (*ListingPage, error) {
	page := &ListingPage{}

	doc.Find("table.strain-list tbody tr").Each(func(_ int, row *goquery.Selection) {
		var rec ProductRecord
		link := row.Find("td.strain a").First()
		rec.URL, _ = link.Attr("href")
		if rec.URL == "" {
			return
		}
		rec.Name = strings.TrimSpace(link.Text())
		rec.Slug = slugFromURL(rec.URL)
		rec.CannabisType = cannabisTypeFrom(row.Find("td.type").Text())
		rec.SeedType = seedTypeFrom(row.Find("td.variant").Text())
		rec.THC = parsePotencyRange(row.Find("td.thc").Text())
		rec.CBD = parsePotencyRange(row.Find("td.cbd").Text())
		rec.FloweringTime = strings.TrimSpace(row.Find("td.flowering").Text())

		row.Find("td.packs span.pack").Each(func(_ int, pack *goquery.Selection) {
			size, _ := strconv.Atoi(pack.AttrOr("data-size", ""))
			if size <= 0 {
				return
			}
			if price, cur, ok := parsePrice(pack.Text()); ok {
				rec.Prices = append(rec.Prices, PriceTier{PackSize: size, Price: price, Currency: cur})
			}
		})
		page.Records = append(page.Records, rec)
	})

	if href, ok := doc.Find("nav.pagination a[rel=next]").First().Attr("href"); ok {
		page.NextPageURL = strings.TrimSpace(href)
	}
	return page, nil
}

// ---- herbaldepot: product detail pages reached via sitemap ----

type herbalDepotExtractor struct{}

func (herbalDepotExtractor) ExtractDetail(doc *goquery.Document, url string) (*ProductRecord, error) {
	name := strings.TrimSpace(doc.Find("h1.product-title").First().Text())
	if name == "" {
		// Structural mismatch: not a product page after all.
		return nil, nil
	}
	rec := &ProductRecord{Name: name, URL: url, Slug: slugFromURL(url)}
	rec.ImageURL, _ = doc.Find("div.product-gallery img").First().Attr("src")

	doc.Find("table.product-specs tr").Each(func(_ int, row *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(row.Find("th").Text()))
		value := strings.TrimSpace(row.Find("td").Text())
		switch {
		case strings.Contains(label, "thc"):
			rec.THC = parsePotencyRange(value)
		case strings.Contains(label, "cbd"):
			rec.CBD = parsePotencyRange(value)
		case strings.Contains(label, "type"):
			rec.CannabisType = cannabisTypeFrom(value)
		case strings.Contains(label, "flowering"):
			rec.FloweringTime = value
		case strings.Contains(label, "genetics"):
			rec.Genetics = value
		case strings.Contains(label, "variety"), strings.Contains(label, "seed"):
			rec.SeedType = seedTypeFrom(value)
		}
	})

	doc.Find("select#pack-size option").Each(func(_ int, opt *goquery.Selection) {
		size, _ := strconv.Atoi(opt.AttrOr("data-count", ""))
		if size <= 0 {
			return
		}
		if price, cur, ok := parsePrice(opt.AttrOr("data-price", opt.Text())); ok {
			rec.Prices = append(rec.Prices, PriceTier{PackSize: size, Price: price, Currency: cur})
		}
	})

	if stock := doc.Find("p.stock").First(); stock.Length() > 0 {
		inStock := !strings.Contains(strings.ToLower(stock.Text()), "out of stock")
		rec.InStock = &inStock
	}
	return rec, nil
}

// ---- cropkings: detail pages with microdata-style attributes ----

type cropKingsExtractor struct{}

func (cropKingsExtractor) ExtractDetail(doc *goquery.Document, url string) (*ProductRecord, error) {
	name := strings.TrimSpace(doc.Find(`[itemprop="name"]`).First().Text())
	if name == "" {
		return nil, nil
	}
	rec := &ProductRecord{Name: name, URL: url, Slug: slugFromURL(url)}
	rec.ImageURL, _ = doc.Find(`img[itemprop="image"]`).First().Attr("src")
	rec.Genetics = strings.TrimSpace(doc.Find("span.genetics").First().Text())
	rec.CannabisType = cannabisTypeFrom(doc.Find("span.strain-type").Text())
	rec.SeedType = seedTypeFrom(doc.Find("span.seed-variant").Text())
	rec.THC = parsePotencyRange(doc.Find("span.thc-content").Text())
	rec.CBD = parsePotencyRange(doc.Find("span.cbd-content").Text())
	rec.FloweringTime = strings.TrimSpace(doc.Find("span.flowering-time").Text())

	doc.Find("ul.pricing li").Each(func(_ int, li *goquery.Selection) {
		size, _ := strconv.Atoi(li.AttrOr("data-pack", ""))
		if size <= 0 {
			return
		}
		if price, cur, ok := parsePrice(li.Find("span.amount").Text()); ok {
			rec.Prices = append(rec.Prices, PriceTier{PackSize: size, Price: price, Currency: cur})
		}
	})
	return rec, nil
}

// ---- shared field parsers ----

var (
	potencyRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:%|percent)?\s*(?:-|–|to)?\s*(\d+(?:\.\d+)?)?\s*%?`)
	priceRe   = regexp.MustCompile(`([$€£])\s*(\d+(?:[.,]\d{1,2})?)`)
)

func parsePotencyRange(text string) *PotencyRange {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	m := potencyRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	min, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	max := min
	if m[2] != "" {
		if v, err := strconv.ParseFloat(m[2], 64); err == nil {
			max = v
		}
	}
	return &PotencyRange{Min: min, Max: max}
}

func parsePrice(text string) (float64, string, bool) {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return 0, "", false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", "."), 64)
	if err != nil {
		return 0, "", false
	}
	currency := map[string]string{"$": "USD", "€": "EUR", "£": "GBP"}[m[1]]
	return v, currency, true
}

func seedTypeFrom(text string) string {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "autoflower"), strings.Contains(t, "auto-flower"), strings.Contains(t, " auto"):
		return "autoflower"
	case strings.Contains(t, "feminized"), strings.Contains(t, "feminised"):
		return "feminized"
	case strings.Contains(t, "regular"):
		return "regular"
	default:
		return ""
	}
}

func cannabisTypeFrom(text string) string {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "indica") && strings.Contains(t, "sativa"):
		return "hybrid"
	case strings.Contains(t, "hybrid"):
		return "hybrid"
	case strings.Contains(t, "indica"):
		return "indica"
	case strings.Contains(t, "sativa"):
		return "sativa"
	default:
		return ""
	}
}

func slugFromURL(raw string) string {
	trimmed := strings.TrimRight(raw, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return ""
}
