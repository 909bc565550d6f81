package rbac

// 权限常量
const (
	// 普通调用方：提交与取消自己的通知
	PermissionSendNotification   = "notification:send"
	PermissionCancelNotification = "notification:cancel"

	// 运维操作：死信区只读与重放
	PermissionReadDeadLetters   = "deadletter:read"
	PermissionReplayDeadLetters = "deadletter:replay"
)

// 角色常量
const (
	RoleService  = "service"
	RoleOperator = "operator"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleService: {
		PermissionSendNotification,
		PermissionCancelNotification,
	},
	RoleOperator: {
		PermissionSendNotification,
		PermissionCancelNotification,
		PermissionReadDeadLetters,
		PermissionReplayDeadLetters,
	},
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查角色是否有指定权限（返回错误便于处理）
func CheckPermission(role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
