package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/launchpad/pkg/billing"
)

func TestParseSeedUsers(t *testing.T) {
	t.Parallel()

	users, err := parseSeedUsers([]string{"u1", "u2:u2@example.com", "root:root@example.com:admin"})
	require.NoError(t, err)
	require.Len(t, users, 3)

	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, billing.RoleUser, users[0].Role)
	assert.Equal(t, "u2@example.com", users[1].Email)
	assert.Equal(t, billing.RoleAdmin, users[2].Role)

	_, err = parseSeedUsers([]string{":x@example.com"})
	assert.Error(t, err)

	_, err = parseSeedUsers([]string{"u3:u3@example.com:owner"})
	assert.ErrorIs(t, err, billing.ErrInvalidRole)
}
