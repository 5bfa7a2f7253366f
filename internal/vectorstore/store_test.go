package vectorstore

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL_SchemeAndPort(t *testing.T) {
	host, port, tls, err := parseURL("https://qdrant.example.com:6443")
	require.NoError(t, err)
	assert.Equal(t, "qdrant.example.com", host)
	assert.Equal(t, 6443, port)
	assert.True(t, tls)
}

func TestParseURL_BareHostPortDefaultsToPlaintext(t *testing.T) {
	host, port, tls, err := parseURL("localhost:6334")
	require.NoError(t, err)
	assert.Equal(t, "localhost", host)
	assert.Equal(t, 6334, port)
	assert.False(t, tls)
}

func TestParseURL_MissingPortDefaultsTo6334(t *testing.T) {
	host, port, _, err := parseURL("http://localhost")
	require.NoError(t, err)
	assert.Equal(t, "localhost", host)
	assert.Equal(t, 6334, port)
}

func TestPointIDString_PrefersUUID(t *testing.T) {
	id := qdrant.NewID("11111111-2222-3333-4444-555555555555")
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", pointIDString(id))
}

func TestPointIDString_NilIsEmpty(t *testing.T) {
	assert.Equal(t, "", pointIDString(nil))
}
