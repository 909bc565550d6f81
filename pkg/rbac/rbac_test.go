package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	assert.True(t, HasPermission(RoleService, PermissionSendNotification))
	assert.True(t, HasPermission(RoleService, PermissionCancelNotification))
	assert.False(t, HasPermission(RoleService, PermissionReadDeadLetters))
	assert.False(t, HasPermission(RoleService, PermissionReplayDeadLetters))

	for _, p := range []string{
		PermissionSendNotification,
		PermissionCancelNotification,
		PermissionReadDeadLetters,
		PermissionReplayDeadLetters,
	} {
		assert.True(t, HasPermission(RoleOperator, p))
	}

	assert.False(t, HasPermission("unknown", PermissionSendNotification))
}

func TestCheckPermission(t *testing.T) {
	assert.NoError(t, CheckPermission(RoleOperator, PermissionReplayDeadLetters))

	err := CheckPermission(RoleService, PermissionReadDeadLetters)
	var denied *PermissionDeniedError
	assert.ErrorAs(t, err, &denied)
	assert.Equal(t, RoleService, denied.Role)
	assert.Equal(t, PermissionReadDeadLetters, denied.Permission)
}
