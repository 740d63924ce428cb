package user_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/user"
)

func TestDefaultAndFind(t *testing.T) {
	book := user.NewMemoryBook()
	book.Put("u1",
		user.Address{ID: "home", DistrictID: "3171"},
		user.Address{ID: "office", DistrictID: " 3173 ", WardCode: "317301", IsDefault: true},
	)
	list, err := book.Addresses(context.Background(), "u1")
	require.NoError(t, err)

	def, ok := user.Default(list)
	require.True(t, ok)
	require.Equal(t, "office", def.ID)
	require.Equal(t, "3173", def.Destination().DistrictID)

	_, err = user.Find(list, "cabin")
	require.ErrorIs(t, err, user.ErrAddressNotFound)

	empty, err := book.Addresses(context.Background(), "nobody")
	require.NoError(t, err)
	_, ok = user.Default(empty)
	require.False(t, ok)
}
