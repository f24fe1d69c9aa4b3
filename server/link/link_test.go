package link

import (
	"testing"

	"github.com/cyp0633/libguestshare/server/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		token   string
		item    string
		hasItem bool
		wantErr bool
	}{
		{name: "upper case token", path: "/19496DEDE78141A6AB77B316ADDB366E", token: "19496DEDE78141A6AB77B316ADDB366E"},
		{name: "item id", path: "/19496ded2c6542b5a1d6ef4aeeea4d20/items/42", token: "19496ded2c6542b5a1d6ef4aeeea4d20", item: "42", hasItem: true},
		{name: "trailing slashes", path: "//19496ded2c6542b5a1d6ef4aeeea4d20//", token: "19496ded2c6542b5a1d6ef4aeeea4d20"},
		{name: "items without id", path: "/19496ded2c6542b5a1d6ef4aeeea4d20/items/", token: "19496ded2c6542b5a1d6ef4aeeea4d20"},
		{name: "not a token", path: "/not-a-token", wantErr: true},
		{name: "empty", path: "", wantErr: true},
		{name: "short token", path: "/19496ded2c6542b5a1d6ef4aeeea4d2", wantErr: true},
		{name: "long token", path: "/19496ded2c6542b5a1d6ef4aeeea4d2011", wantErr: true},
		{name: "no leading slash", path: "19496ded2c6542b5a1d6ef4aeeea4d20", wantErr: true},
		{name: "trailing garbage", path: "/19496ded2c6542b5a1d6ef4aeeea4d20/other", wantErr: true},
		{name: "item beyond int64", path: "/19496ded2c6542b5a1d6ef4aeeea4d20/items/99999999999999999999", token: "19496ded2c6542b5a1d6ef4aeeea4d20", item: "99999999999999999999", hasItem: true},
		{name: "item with leading zeros", path: "/19496ded2c6542b5a1d6ef4aeeea4d20/items/007/", token: "19496ded2c6542b5a1d6ef4aeeea4d20", item: "007", hasItem: true},
		{name: "non numeric item", path: "/19496ded2c6542b5a1d6ef4aeeea4d20/items/abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperror.ErrInvalidLink)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.token, got.Token)
			assert.Equal(t, tt.hasItem, got.Item.IsPresent())
			if tt.hasItem {
				assert.Equal(t, tt.item, got.Item.MustGet())
			}
		})
	}
}
