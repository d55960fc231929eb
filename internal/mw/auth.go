package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"employee-chat-backend/internal/auth"
)

// EmployeeIDKey is the gin context key the auth middleware stores the
// verified employee id under.
const EmployeeIDKey = "employeeID"

// Auth verifies the Bearer session token and stores the employee id in the
// request context. Requests without a valid token are rejected.
func Auth(tokens auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		employeeID, err := tokens.Verify(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			return
		}

		c.Set(EmployeeIDKey, employeeID)
		c.Next()
	}
}

// EmployeeID extracts the verified employee id set by Auth.
func EmployeeID(c *gin.Context) int64 {
	id, _ := c.Get(EmployeeIDKey)
	employeeID, _ := id.(int64)
	return employeeID
}
