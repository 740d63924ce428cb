package clients

import (
	"context"
	"net/http"
	"net/url"

	"github.com/noah-isme/toko-checkout/internal/resilience"
	"github.com/noah-isme/toko-checkout/internal/user"
)

// Profile talks to the address/profile service.
type Profile struct{ base }

// NewProfile constructs a profile client.
func NewProfile(baseURL string, client *resilience.HTTPClient) *Profile {
	return &Profile{newBase("profile", baseURL, client)}
}

// Addresses implements user.AddressBook.
func (c *Profile) Addresses(ctx context.Context, userID string) ([]user.Address, error) {
	var out struct {
		Addresses []user.Address `json:"addresses"`
	}
	if err := c.do(ctx, http.MethodGet, "/addresses", url.Values{"user_id": {userID}}, nil, &out); err != nil {
		return nil, err
	}
	return out.Addresses, nil
}
