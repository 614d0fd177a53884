package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a****@example.com", MaskEmail("alice@example.com"))
	assert.Equal(t, "****", MaskEmail("not-an-email"))
	assert.Equal(t, "", MaskEmail("  "))
}

func TestMaskMetadata(t *testing.T) {
	out := MaskMetadata(map[string]any{
		"recipient_email": "bob@acme.io",
		"job_id":          "123",
		"nested":          map[string]any{"email": "carol@acme.io"},
		"":                "dropped",
	})

	assert.Equal(t, "b****@acme.io", out["recipient_email"])
	assert.Equal(t, "123", out["job_id"])
	assert.Equal(t, map[string]any{"email": "c****@acme.io"}, out["nested"])
	assert.NotContains(t, out, "")
	assert.Nil(t, MaskMetadata(nil))
}
