package app

import (
	"sort"
	"strconv"

	"review_dashboard/internal/domain"
)

// FilterAndSort returns a new slice; the input is never reordered.
func FilterAndSort(reviews []domain.Review, f domain.FilterState) []domain.Review {
	out := make([]domain.Review, 0, len(reviews))
	for _, r := range reviews {
		if matches(r, f) {
			out = append(out, r)
		}
	}

	if f.SortBy == domain.SortByRating {
		sort.SliceStable(out, func(i, j int) bool { return out[i].RatingValue() > out[j].RatingValue() })
	} else {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	}
	return out
}

func matches(r domain.Review, f domain.FilterState) bool {
	if !isAll(f.Listing) && r.Listing != f.Listing {
		return false
	}
	if !isAll(f.Channel) && r.Channel != f.Channel {
		return false
	}
	if !isAll(f.Rating) && RatingLabel(r) != f.Rating {
		return false
	}
	if !isAll(f.Category) {
		// presence, not truthiness: a 0 score still matches
		if _, ok := r.Categories[f.Category]; !ok {
			return false
		}
	}
	return true
}

func isAll(v string) bool { return v == "" || v == domain.FilterAll }

// RatingLabel is the exact string a rating filter compares against ("8", "9.5").
// Unrated reviews have an empty label.
func RatingLabel(r domain.Review) string {
	if r.Rating == nil {
		return ""
	}
	return strconv.FormatFloat(*r.Rating, 'f', -1, 64)
}

// Options lists the values each filter axis can take: listings and channels in
// first-seen order, ratings and categories sorted.
func Options(reviews []domain.Review) domain.FilterOptions {
	var opts domain.FilterOptions
	seenL, seenC := map[string]bool{}, map[string]bool{}
	seenR, seenCat := map[string]bool{}, map[string]bool{}

	for _, r := range reviews {
		if !seenL[r.Listing] {
			seenL[r.Listing] = true
			opts.Listings = append(opts.Listings, r.Listing)
		}
		if r.Channel != "" && !seenC[r.Channel] {
			seenC[r.Channel] = true
			opts.Channels = append(opts.Channels, r.Channel)
		}
		if l := RatingLabel(r); l != "" && !seenR[l] {
			seenR[l] = true
			opts.Ratings = append(opts.Ratings, l)
		}
		for c := range r.Categories {
			if !seenCat[c] {
				seenCat[c] = true
				opts.Categories = append(opts.Categories, c)
			}
		}
	}
	sort.Strings(opts.Ratings)
	sort.Strings(opts.Categories)
	return opts
}
