package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTrip(t *testing.T) {
	ts := time.Date(2026, 5, 4, 3, 2, 1, 123456789, time.UTC)
	enc := EncodeCursor("id|with|pipes", ts)
	assert.NotContains(t, enc, "+")
	assert.NotContains(t, enc, "/")
	assert.NotContains(t, enc, "=")

	c, err := DecodeCursor(enc)
	require.NoError(t, err)
	assert.Equal(t, "id|with|pipes", c.LastID)
	assert.True(t, ts.Equal(c.Timestamp))
}

func TestCursor_Empty(t *testing.T) {
	assert.Equal(t, "", EncodeCursor("", time.Now()))
	c, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64", "!!!"},
		{"wrong version", "djJ8MjAyNi0wMS0wMVQwMDowMDowMFp8YQ"},
		{"missing id", "djF8MjAyNi0wMS0wMVQwMDowMDowMFp8"},
		{"bad timestamp", "djF8bm90LWEtdGltZXxh"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCursor(tt.cursor)
			assert.ErrorIs(t, err, ErrInvalidCursor)
		})
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, DefaultLimit, ClampLimit(-3))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxLimit, ClampLimit(MaxLimit+1))
}

type item struct {
	id string
	ts time.Time
}

func TestPage(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []item{{"a", base}, {"b", base.Add(time.Second)}, {"c", base.Add(2 * time.Second)}}
	getID := func(i item) string { return i.id }
	getTS := func(i item) time.Time { return i.ts }

	page := Page(items, 2, getID, getTS)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	c, err := DecodeCursor(page.Cursor)
	require.NoError(t, err)
	assert.Equal(t, "b", c.LastID)

	last := Page(items, 3, getID, getTS)
	assert.False(t, last.HasMore)
	assert.Empty(t, last.Cursor)

	empty := Page[item](nil, 5, getID, getTS)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)
}
