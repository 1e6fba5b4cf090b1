package appconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultRecord tests the pinned values of the built-in record.
func TestDefaultRecord(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "AU Small Finance Bank", cfg.CompanyName)
	assert.True(t, cfg.SupportsChatInput)
	assert.Equal(t, "/au1.png", cfg.Logo)
	require.NotNil(t, cfg.AccentDark)
	assert.Equal(t, "#fd5f04", *cfg.AccentDark)
	assert.Nil(t, cfg.SandboxID)

	// Every required field is well-defined.
	assert.NotEmpty(t, cfg.PageTitle)
	assert.NotEmpty(t, cfg.PageDescription)
	assert.NotEmpty(t, cfg.StartButtonText)
	assert.NoError(t, cfg.Validate())
}

// TestDefaultIsStable tests idempotent retrieval: repeated calls yield equal,
// independent values.
func TestDefaultIsStable(t *testing.T) {
	first := Default()
	second := Default()
	require.Equal(t, first, second)

	// Values are independent, never shared storage.
	*first.Accent = "#changed"
	assert.Equal(t, "#6d2077", *second.Accent)
	assert.Equal(t, "#6d2077", *Default().Accent)
}

// TestFlipMinRecord tests the second brand literal against the same schema.
func TestFlipMinRecord(t *testing.T) {
	cfg := FlipMin()

	assert.Equal(t, "FlipMin", cfg.CompanyName)
	assert.NoError(t, cfg.Validate())
	require.NotNil(t, cfg.LogoDark)
	assert.NotEmpty(t, *cfg.LogoDark)
	assert.Nil(t, cfg.SandboxID)
	assert.Nil(t, cfg.AgentName)

	assert.NotEqual(t, Default(), cfg)
}
