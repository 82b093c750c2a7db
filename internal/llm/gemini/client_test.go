package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/illustration-analyzer/internal/common"
)

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), Config{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotConfigured))
	assert.Equal(t, common.CodeConfig, common.CodeOf(err))
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient(context.Background(), Config{APIKey: "test-key"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini:gemini-2.5-flash", c.Name())
	assert.Positive(t, c.cfg.Timeout)
	assert.Positive(t, c.cfg.RetryBackoff)
}
