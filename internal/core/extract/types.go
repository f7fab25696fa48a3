package extract

// ProductRecord is the normalized shape every site extractor emits. All
// fields beyond URL are best-effort: a site that publishes no potency data
// simply leaves the range nil, it never aborts extraction.
type ProductRecord struct {
	Name     string `json:"name,omitempty"`
	URL      string `json:"url"`
	Slug     string `json:"slug,omitempty"`
	ImageURL string `json:"image_url,omitempty"`

	SeedType     string `json:"seed_type,omitempty"`     // feminized, autoflower, regular
	CannabisType string `json:"cannabis_type,omitempty"` // indica, sativa, hybrid

	THC *PotencyRange `json:"thc,omitempty"`
	CBD *PotencyRange `json:"cbd,omitempty"`

	FloweringTime string `json:"flowering_time,omitempty"`
	Genetics      string `json:"genetics,omitempty"`

	Prices  []PriceTier `json:"prices,omitempty"`
	InStock *bool       `json:"in_stock,omitempty"`
}

// PotencyRange is a percentage band, e.g. THC 18-24%.
type PotencyRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// PriceTier is one pack-size price point.
type PriceTier struct {
	PackSize int     `json:"pack_size"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency,omitempty"`
}

// ListingPage is the result of extracting one paginated listing document.
type ListingPage struct {
	Records     []ProductRecord
	NextPageURL string
}
