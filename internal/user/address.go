package user

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/noah-isme/toko-checkout/internal/shipping"
)

// ErrAddressNotFound is returned when an address id is not in the user's address book.
var ErrAddressNotFound = errors.New("address not found")

// Address represents a user address in API-friendly format.
type Address struct {
	ID           string `json:"id"`
	Label        string `json:"label,omitempty"`
	ReceiverName string `json:"receiver_name,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Province     string `json:"province,omitempty"`
	City         string `json:"city,omitempty"`
	DistrictID   string `json:"district_id"`
	WardCode     string `json:"ward_code"`
	PostalCode   string `json:"postal_code,omitempty"`
	AddressLine1 string `json:"address_line1,omitempty"`
	AddressLine2 string `json:"address_line2,omitempty"`
	IsDefault    bool   `json:"is_default"`
}

// Destination returns the part of the address shipping fees depend on.
func (a Address) Destination() shipping.Destination {
	return shipping.Destination{DistrictID: strings.TrimSpace(a.DistrictID), WardCode: strings.TrimSpace(a.WardCode)}
}

// AddressBook lists a user's saved addresses. Implementations call the profile service.
type AddressBook interface {
	Addresses(ctx context.Context, userID string) ([]Address, error)
}

// Default returns the address flagged as default, if any.
func Default(list []Address) (Address, bool) {
	for _, a := range list {
		if a.IsDefault {
			return a, true
		}
	}
	return Address{}, false
}

// Find returns the address with the given id.
func Find(list []Address, id string) (Address, error) {
	id = strings.TrimSpace(id)
	for _, a := range list {
		if a.ID == id {
			return a, nil
		}
	}
	return Address{}, ErrAddressNotFound
}

// MemoryBook is an in-process address book for development and tests.
type MemoryBook struct {
	mu    sync.RWMutex
	items map[string][]Address
}

// NewMemoryBook constructs an empty MemoryBook.
func NewMemoryBook() *MemoryBook {
	return &MemoryBook{items: make(map[string][]Address)}
}

// Put replaces the address list stored for the user.
func (b *MemoryBook) Put(userID string, addrs ...Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[userID] = append([]Address(nil), addrs...)
}

// Addresses implements AddressBook.
func (b *MemoryBook) Addresses(_ context.Context, userID string) ([]Address, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Address{}, b.items[userID]...), nil
}
