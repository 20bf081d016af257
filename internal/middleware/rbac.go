package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

// RoleSelf admits a principal whose user or student id equals the :id route parameter.
const RoleSelf = "SELF"

// RBAC admits the listed roles, plus RoleSelf matches. JWT must run first.
func RBAC(allowed ...string) gin.HandlerFunc {
	roles := make(map[models.UserRole]struct{}, len(allowed))
	allowSelf := false
	for _, a := range allowed {
		if a == RoleSelf {
			allowSelf = true
			continue
		}
		roles[models.UserRole(a)] = struct{}{}
	}

	return func(c *gin.Context) {
		value, exists := c.Get(ContextUserKey)
		claims, ok := value.(*models.JWTClaims)
		if !exists || !ok {
			abort(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := roles[claims.Role]; ok {
			c.Next()
			return
		}
		if allowSelf && isSelf(c.Param("id"), claims) {
			c.Next()
			return
		}
		abort(c, appErrors.ErrForbidden)
	}
}

func isSelf(target string, claims *models.JWTClaims) bool {
	return target != "" && (target == claims.UserID || target == claims.StudentID)
}

// Staff admits superadmins, admins and teachers.
func Staff() gin.HandlerFunc {
	return RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), string(models.RoleTeacher))
}

// Admins admits superadmins and admins.
func Admins() gin.HandlerFunc {
	return RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin))
}

// StaffOrSelf admits staff and the student named by :id.
func StaffOrSelf() gin.HandlerFunc {
	return RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), string(models.RoleTeacher), RoleSelf)
}
