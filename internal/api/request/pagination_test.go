package request

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePagination_Defaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/jobs", nil)
	p := ParsePagination(r)

	assert.Equal(t, DefaultLimit, p.Limit)
	assert.Empty(t, p.Cursor)
}

func TestParsePagination_Explicit(t *testing.T) {
	r := httptest.NewRequest("GET", "/jobs?limit=25&cursor=job-7", nil)
	p := ParsePagination(r)

	assert.Equal(t, 25, p.Limit)
	assert.Equal(t, "job-7", p.Cursor)
}

func TestParsePagination_ClampsToMax(t *testing.T) {
	r := httptest.NewRequest("GET", "/jobs?limit=9999", nil)
	p := ParsePagination(r)

	assert.Equal(t, MaxLimit, p.Limit)
}

func TestParsePagination_IgnoresGarbage(t *testing.T) {
	r := httptest.NewRequest("GET", "/jobs?limit=-3", nil)
	p := ParsePagination(r)

	assert.Equal(t, DefaultLimit, p.Limit)

	r = httptest.NewRequest("GET", "/jobs?limit=abc", nil)
	p = ParsePagination(r)

	assert.Equal(t, DefaultLimit, p.Limit)
}
