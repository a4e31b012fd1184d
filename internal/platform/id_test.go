package platform

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsUUID(t *testing.T) {
	_, err := uuid.Parse(NewID())
	require.NoError(t, err)
}

func TestGenerateResourceName(t *testing.T) {
	name := GenerateResourceName("webserver", "inline")
	assert.True(t, strings.HasPrefix(name, "webserver-inline-"))
	assert.Len(t, name, len("webserver-inline-")+suffixLength)

	other := GenerateResourceName("webserver", "inline")
	assert.NotEqual(t, name, other)
}
