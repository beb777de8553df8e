package models

import "github.com/golang-jwt/jwt/v5"

// Application permissions
const (
	PermissionWalletRead      = "wallet:read"
	PermissionWalletWrite     = "wallet:write"
	PermissionWalletOperate   = "wallet:operate" // cashback, fees, operations on other users
	PermissionRailCallback    = "rail:callback"
	PermissionLedgerReconcile = "ledger:reconcile"
)

// UserClaims identifies the caller of the HTTP adapter. Subject of the audit
// events emitted on its behalf.
type UserClaims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"user_id"`
	Role        UserRole `json:"role"`
	Permissions []string `json:"permissions"`
}

// HasPermission checks if the claims include a specific permission
func (c *UserClaims) HasPermission(permission string) bool {
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// GetDefaultPermissions returns default permissions based on role
func GetDefaultPermissions(role UserRole) []string {
	switch role {
	case RoleAdmin, RoleFinance:
		return []string{
			PermissionWalletRead,
			PermissionWalletWrite,
			PermissionWalletOperate,
			PermissionRailCallback,
			PermissionLedgerReconcile,
		}
	case RoleCompliance, RoleSupport, RoleOperational:
		return []string{
			PermissionWalletRead,
			PermissionWalletOperate,
			PermissionLedgerReconcile,
		}
	case RolePartner:
		return []string{
			PermissionWalletRead,
			PermissionRailCallback,
		}
	case RoleCustomer:
		return []string{
			PermissionWalletRead,
			PermissionWalletWrite,
		}
	default:
		return []string{}
	}
}
