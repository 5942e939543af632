package internal

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseListParams(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want listParams
	}{
		{"defaults", "/devices", listParams{limit: 50, offset: 0}},
		{"explicit", "/devices?limit=10&offset=20&q=dell&sort=-brand&status=available",
			listParams{limit: 10, offset: 20, q: "dell", sort: "-brand", status: "available"}},
		{"limit capped", "/devices?limit=1000", listParams{limit: 200}},
		{"garbage ignored", "/devices?limit=abc&offset=-5", listParams{limit: 50, offset: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			assert.Equal(t, tt.want, parseListParams(r))
		})
	}
}

func TestBuildOrderBy(t *testing.T) {
	allowed := map[string]string{"id": "id", "brand": "brand", "created_at": "created_at"}

	tests := []struct {
		sort string
		want string
	}{
		{"", " ORDER BY id ASC"},
		{"brand", " ORDER BY brand ASC"},
		{"-brand", " ORDER BY brand DESC"},
		{"-created_at,id", " ORDER BY created_at DESC, id ASC"},
		{"drop_tables", " ORDER BY id ASC"},
		{"brand,evil", " ORDER BY brand ASC"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, buildOrderBy(tt.sort, allowed), "sort=%q", tt.sort)
	}
}

func TestPrefixColumns(t *testing.T) {
	assert.Equal(t, "d.id, d.brand, d.model", prefixColumns("d", "id, brand, model"))
	assert.Equal(t, "a.id, a.name", prefixColumns("a", `id,
	       name`))
}
