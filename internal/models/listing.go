package models

// ListingRecord is one row of the mandated listing projection.
// Every field is nullable in the listings table.
type ListingRecord struct {
	URL         *string  `json:"url,omitempty" db:"url"`
	Floor       *int64   `json:"floor,omitempty" db:"floor"`
	FloorsCount *int64   `json:"floors_count,omitempty" db:"floors_count"`
	RoomsCount  *int64   `json:"rooms_count,omitempty" db:"rooms_count"`
	TotalMeters *float64 `json:"total_meters,omitempty" db:"total_meters"`
	Price       *int64   `json:"price,omitempty" db:"price"`
	Underground *string  `json:"underground,omitempty" db:"underground"`
}

// ResultPage is the cached result set of the latest search for one chat.
type ResultPage struct {
	Listings []ListingRecord `json:"listings"`
	Offset   int             `json:"offset"`
}

// GeneratedQuery is a sanitized and validated statement ready for execution.
type GeneratedQuery struct {
	SQL  string `json:"sql"`
	City string `json:"city,omitempty"`
}
