package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Excluded(t *testing.T) {
	f, err := NewFilter([]string{" Bank.Example. ", ""}, []string{`\.internal$`})
	require.NoError(t, err)
	assert.False(t, f.Empty())

	tests := map[string]bool{
		"https://bank.example/":               true,
		"https://login.bank.example/x":        true,
		"https://notbank.example/":            false,
		"http://wiki.corp.internal/page":      true,
		"https://example.com/?q=bank.example": false,
		"javascript:void(0)":                  false,
		"no-protocol":                         false,
	}
	for url, want := range tests {
		assert.Equal(t, want, f.Excluded(url), url)
	}
}

func TestFilter_Empty(t *testing.T) {
	var nilFilter *Filter
	assert.True(t, nilFilter.Empty())
	assert.False(t, nilFilter.Excluded("https://bank.example/"))

	f, err := NewFilter(nil, nil)
	require.NoError(t, err)
	assert.True(t, f.Empty())
}

func TestFilter_InvalidRegex(t *testing.T) {
	_, err := NewFilter(nil, []string{"("})
	assert.Error(t, err)
}
