package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func docFrom(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestDefaultRegistryLookup(t *testing.T) {
	r := DefaultRegistry()

	src, ok := r.Lookup("seedcity")
	require.True(t, ok)
	require.Equal(t, StrategyPagination, src.Strategy)
	require.NotNil(t, src.Listing)

	src, ok = r.Lookup("herbaldepot")
	require.True(t, ok)
	require.Equal(t, StrategySitemap, src.Strategy)
	require.NotNil(t, src.Detail)
	require.NotEmpty(t, src.ProductPathPatterns)

	_, ok = r.Lookup("no-such-source")
	require.False(t, ok)
}

func TestRegistryRejectsIncompleteSources(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.Register(Source{Name: "x", Strategy: StrategyPagination}))
	require.Error(t, r.Register(Source{Name: "y", Strategy: StrategySitemap, Detail: herbalDepotExtractor{}}))
	require.Error(t, r.Register(Source{Name: "z", Strategy: "weird"}))
}

func TestSeedCityListingExtraction(t *testing.T) {
	html := `<html><body>
<ul class="products">
  <li class="product type-product feminized">
    <a class="woocommerce-LoopProduct-link" href="https://seedcity.example/product/blue-dream/">
      <img src="https://cdn.example/blue-dream.jpg">
      <h2 class="woocommerce-loop-product__title">Blue Dream Feminized</h2>
      <span class="price">€29.95</span>
    </a>
  </li>
  <li class="product"><div>no link, skipped</div></li>
  <li class="product">
    <a class="woocommerce-LoopProduct-link" href="https://seedcity.example/product/gorilla-auto/">
      <h2 class="woocommerce-loop-product__title">Gorilla Glue Auto</h2>
    </a>
  </li>
</ul>
<a class="next page-numbers" href="https://seedcity.example/shop/page/2/">Next</a>
</body></html>`

	page, err := seedCityExtractor{}.ExtractListing(docFrom(t, html))
	require.NoError(t, err)
	require.Len(t, page.Records, 2)

	first := page.Records[0]
	require.Equal(t, "Blue Dream Feminized", first.Name)
	require.Equal(t, "blue-dream", first.Slug)
	require.Equal(t, "feminized", first.SeedType)
	require.Len(t, first.Prices, 1)
	require.Equal(t, 29.95, first.Prices[0].Price)
	require.Equal(t, "EUR", first.Prices[0].Currency)

	// Missing price and image never abort extraction.
	require.Equal(t, "autoflower", page.Records[1].SeedType)
	require.Empty(t, page.Records[1].Prices)

	require.Equal(t, "https://seedcity.example/shop/page/2/", page.NextPageURL)
}

func TestGrowersHubListingExtraction(t *testing.T) {
	html := `<table class="strain-list"><tbody>
<tr>
  <td class="strain"><a href="https://growershub.example/strains/white-widow">White Widow</a></td>
  <td class="type">Indica / Sativa</td>
  <td class="variant">Feminised</td>
  <td class="thc">18-24%</td>
  <td class="cbd">0.8%</td>
  <td class="flowering">8-9 weeks</td>
  <td class="packs">
    <span class="pack" data-size="3">$34.50</span>
    <span class="pack" data-size="10">$89.00</span>
  </td>
</tr>
</tbody></table>
<nav class="pagination"><a rel="next" href="https://growershub.example/strains?page=2">→</a></nav>`

	page, err := growersHubExtractor{}.ExtractListing(docFrom(t, html))
	require.NoError(t, err)
	require.Len(t, page.Records, 1)

	rec := page.Records[0]
	require.Equal(t, "White Widow", rec.Name)
	require.Equal(t, "hybrid", rec.CannabisType)
	require.Equal(t, "feminized", rec.SeedType)
	require.NotNil(t, rec.THC)
	require.Equal(t, 18.0, rec.THC.Min)
	require.Equal(t, 24.0, rec.THC.Max)
	require.NotNil(t, rec.CBD)
	require.Equal(t, 0.8, rec.CBD.Min)
	require.Equal(t, []PriceTier{
		{PackSize: 3, Price: 34.50, Currency: "USD"},
		{PackSize: 10, Price: 89.00, Currency: "USD"},
	}, rec.Prices)
	require.Equal(t, "https://growershub.example/strains?page=2", page.NextPageURL)
}

func TestHerbalDepotDetailExtraction(t *testing.T) {
	html := `<html><body>
<h1 class="product-title">Amnesia Haze</h1>
<div class="product-gallery"><img src="https://cdn.example/amnesia.jpg"></div>
<table class="product-specs">
  <tr><th>THC Content</th><td>20 - 22%</td></tr>
  <tr><th>Strain Type</th><td>Sativa dominant</td></tr>
  <tr><th>Flowering Time</th><td>10-12 weeks</td></tr>
  <tr><th>Genetics</th><td>Haze x Skunk #1</td></tr>
  <tr><th>Seed Variety</th><td>Feminized</td></tr>
</table>
<select id="pack-size">
  <option data-count="5" data-price="£39.99">5 seeds</option>
  <option data-count="0">choose…</option>
</select>
<p class="stock">In stock</p>
</body></html>`

	rec, err := herbalDepotExtractor{}.ExtractDetail(docFrom(t, html), "https://herbaldepot.example/product/amnesia-haze/")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "Amnesia Haze", rec.Name)
	require.Equal(t, "amnesia-haze", rec.Slug)
	require.Equal(t, "sativa", rec.CannabisType)
	require.Equal(t, "feminized", rec.SeedType)
	require.Equal(t, "Haze x Skunk #1", rec.Genetics)
	require.NotNil(t, rec.THC)
	require.Equal(t, 20.0, rec.THC.Min)
	require.Equal(t, 22.0, rec.THC.Max)
	require.Equal(t, []PriceTier{{PackSize: 5, Price: 39.99, Currency: "GBP"}}, rec.Prices)
	require.NotNil(t, rec.InStock)
	require.True(t, *rec.InStock)
}

func TestDetailExtractionReturnsNilOnStructuralMismatch(t *testing.T) {
	rec, err := herbalDepotExtractor{}.ExtractDetail(docFrom(t, `<html><body><h1>404</h1></body></html>`), "https://herbaldepot.example/gone")
	require.NoError(t, err)
	require.Nil(t, rec)

	rec, err = cropKingsExtractor{}.ExtractDetail(docFrom(t, `<html><body><p>maintenance</p></body></html>`), "https://cropkings.example/seeds/x")
	require.NoError(t, err)
	require.Nil(t, rec)
}
