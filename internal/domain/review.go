package domain

type Review struct {
	ID         int64              `json:"id"`
	Listing    string             `json:"listing"`
	Type       string             `json:"type,omitempty"`
	Channel    string             `json:"channel,omitempty"`
	Date       string             `json:"date,omitempty"` // ISO-8601, compared lexically
	ReviewText string             `json:"reviewText,omitempty"`
	Categories map[string]float64 `json:"categories,omitempty"`
	Rating     *float64           `json:"rating,omitempty"`
	Status     string             `json:"status,omitempty"`
	GuestName  string             `json:"guestName,omitempty"`

	// Derived from ApprovalState; never sent by the server.
	DisplayOnWebsite bool   `json:"displayOnWebsite"`
	ApprovedAt       *int64 `json:"approvedAt,omitempty"`
}

// RatingValue treats a missing rating as 0.
func (r Review) RatingValue() float64 {
	if r.Rating == nil {
		return 0
	}
	return *r.Rating
}

type PropertyStats struct {
	Listing       string  `json:"listing"`
	AverageRating float64 `json:"averageRating"`
	ReviewCount   int     `json:"reviewCount"`
}

// FilterAll on any axis means "no constraint". An empty axis value is treated the same way.
const FilterAll = "All"

type SortKey string

const (
	SortByDate   SortKey = "date"
	SortByRating SortKey = "rating"
)

type FilterState struct {
	Listing  string
	Channel  string
	Rating   string
	Category string
	SortBy   SortKey
}

type FilterOptions struct {
	Listings   []string `json:"listings"`
	Channels   []string `json:"channels"`
	Ratings    []string `json:"ratings"`
	Categories []string `json:"categories"`
}
