package domain

type PlaceMapping struct {
	Listing string `json:"listing" validate:"required"`
	PlaceID string `json:"place_id" validate:"required"`
}

type PropertyView struct {
	Listing   string   `json:"listing"`
	PlaceID   string   `json:"placeId,omitempty"`
	Preview   bool     `json:"preview"`
	Approved  []Review `json:"approved"`
	Secondary []Review `json:"secondary"`
	// Reviews is what the guest-facing page shows: approved primary reviews, or in
	// preview mode the secondary reviews followed by every primary review of the listing.
	Reviews []Review `json:"reviews"`
}
