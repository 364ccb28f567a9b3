package http

import (
	"context"
	"net/http"
	"strings"
)

// ListingRejecter is the minimal interface needed to cascade a moderation
// rejection onto the listing's reservations.
type ListingRejecter interface {
	CascadeCancelForRejectedListing(ctx context.Context, listingID string) (int, error)
}

// HandleListingRejected returns an HTTP handler for the moderation
// collaborator's rejection hook. It cancels every active reservation held by
// the listing and reports how many were cancelled.
func HandleListingRejected(svc ListingRejecter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		id, ok := parseListingRejectedPath(r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}

		n, err := svc.CascadeCancelForRejectedListing(r.Context(), id)
		if err != nil {
			respondError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, listingRejectedResponse{
			ListingID: id,
			Cancelled: n,
		})
	}
}

func parseListingRejectedPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 {
		return "", false
	}
	if parts[0] != "internal" || parts[1] != "listings" || parts[3] != "rejected" {
		return "", false
	}
	if parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

type listingRejectedResponse struct {
	ListingID string `json:"listing_id"`
	Cancelled int    `json:"cancelled"`
}
