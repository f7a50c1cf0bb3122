package types

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     EmbeddingRequest
		wantErr bool
	}{
		{"valid", EmbeddingRequest{Texts: []string{"a"}}, false},
		{"empty string text is valid", EmbeddingRequest{Texts: []string{""}}, false},
		{"nil texts", EmbeddingRequest{}, true},
		{"empty texts", EmbeddingRequest{Texts: []string{}}, true},
		{"negative batch size", EmbeddingRequest{Texts: []string{"a"}, BatchSize: -2}, true},
		{"positive batch size", EmbeddingRequest{Texts: []string{"a"}, BatchSize: 8}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEmbeddingRequest_WantNormalize(t *testing.T) {
	f := false
	tr := true

	assert.True(t, (&EmbeddingRequest{}).WantNormalize(), "absent normalize defaults to true")
	assert.False(t, (&EmbeddingRequest{Normalize: &f}).WantNormalize())
	assert.True(t, (&EmbeddingRequest{Normalize: &tr}).WantNormalize())
}

func TestEmbeddingRequest_NormalizeRoundTrip(t *testing.T) {
	t.Run("absent field stays nil", func(t *testing.T) {
		var req EmbeddingRequest
		require.NoError(t, json.Unmarshal([]byte(`{"texts":["a"]}`), &req))
		assert.Nil(t, req.Normalize)
		assert.True(t, req.WantNormalize())
	})

	t.Run("explicit false survives", func(t *testing.T) {
		var req EmbeddingRequest
		require.NoError(t, json.Unmarshal([]byte(`{"texts":["a"],"normalize":false}`), &req))
		require.NotNil(t, req.Normalize)
		assert.False(t, req.WantNormalize())
	})
}
