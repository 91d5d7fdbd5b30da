package proptx

// Image is one photo attached to a listing, ordered by the upstream
// display order. At most three are fetched per listing.
type Image struct {
	URL   string `json:"url"`
	Order int    `json:"order"`
}

// Listing is one RESO Property record as returned by the PropTx/AMPRE
// feed, plus the enrichment fields the gateway fills in before the
// response is assembled (images, officeLogo, address).
type Listing struct {
	ListingKey            stringNumber `json:"ListingKey"`
	UnparsedAddress       string       `json:"UnparsedAddress"`
	City                  string       `json:"City"`
	StateOrProvince       string       `json:"StateOrProvince"`
	PostalCode            string       `json:"PostalCode"`
	StandardStatus        string       `json:"StandardStatus"`
	TransactionType       string       `json:"TransactionType"`
	PropertyType          string       `json:"PropertyType"`
	PropertySubType       string       `json:"PropertySubType"`
	ListPrice             float64      `json:"ListPrice"`
	BedroomsTotal         int          `json:"BedroomsTotal"`
	BathroomsTotalInteger int          `json:"BathroomsTotalInteger"`
	Basement              []string     `json:"Basement,omitempty"`
	ListOfficeKey         stringNumber `json:"ListOfficeKey,omitempty"`
	ListOfficeName        string       `json:"ListOfficeName,omitempty"`
	Latitude              float64      `json:"Latitude,omitempty"`
	Longitude             float64      `json:"Longitude,omitempty"`
	ModificationTimestamp string       `json:"ModificationTimestamp,omitempty"`
	MediaChangeTimestamp  string       `json:"MediaChangeTimestamp,omitempty"`

	// Enrichment, filled by the aggregator. Address aliases
	// UnparsedAddress for the front-end.
	Images     []Image `json:"images"`
	OfficeLogo *string `json:"officeLogo"`
	Address    string  `json:"address"`
}

// MediaRecord is one row from the upstream Media resource.
type MediaRecord struct {
	ResourceRecordKey    stringNumber `json:"ResourceRecordKey"`
	ResourceName         string       `json:"ResourceName"`
	MediaURL             string       `json:"MediaURL"`
	Order                int          `json:"Order"`
	ImageSizeDescription string       `json:"ImageSizeDescription"`
}
