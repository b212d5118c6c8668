//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDefaultNodeID ensures hostname and username are detected and non-empty.
func TestDefaultNodeID(t *testing.T) {
	t.Parallel()

	id, err := DefaultNodeID()
	require.NoError(t, err)

	username, hostname, ok := strings.Cut(id, "@")
	require.True(t, ok)
	require.NotEmpty(t, username)
	require.NotEmpty(t, hostname)
}
