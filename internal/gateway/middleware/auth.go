package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pizzeria-system/internal/utils"
)

const EmployeeIDKey = "employee_id"

// JWTAuth requires a bearer token and attaches the employee it names to the
// request context.
func JWTAuth(issuer *utils.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Authorization header required",
			})
			return
		}

		claims, err := issuer.ParseToken(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Invalid or expired token",
			})
			return
		}

		c.Set(EmployeeIDKey, claims.EmployeeID)
		c.Request = c.Request.WithContext(utils.WithEmployeeID(c.Request.Context(), claims.EmployeeID))
		c.Next()
	}
}
