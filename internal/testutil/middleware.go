package testutil

import (
	"net/http"
	"strings"

	"microcourses/internal/core/domain"

	"github.com/gin-gonic/gin"
)

const ctxUserID = "user_id"

func (b *Backend) recordMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := callKey(c.Request.Method, strings.TrimPrefix(c.Request.URL.Path, APIPrefix))

		b.mu.Lock()
		b.calls[key]++
		b.headers[key] = c.Request.Header.Clone()
		hold := b.holds[key]
		b.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-c.Request.Context().Done():
				c.Abort()
				return
			}
		}
		c.Next()
	}
}

func (b *Backend) failureMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := callKey(c.Request.Method, strings.TrimPrefix(c.Request.URL.Path, APIPrefix))

		b.mu.Lock()
		f := b.failures[key]
		var status int
		var message string
		if f != nil {
			status, message = f.status, f.message
			if f.times > 0 {
				f.times--
				if f.times == 0 {
					delete(b.failures, key)
				}
			}
		}
		b.mu.Unlock()

		if f != nil {
			if message == "" {
				c.AbortWithStatus(status)
				return
			}
			fail(c, status, message)
			return
		}
		c.Next()
	}
}

func (b *Backend) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			fail(c, http.StatusUnauthorized, "Not authorized, no token")
			return
		}

		token := parts[1]
		cl, ok := b.validateToken(token)
		if !ok {
			fail(c, http.StatusUnauthorized, "Not authorized, token failed")
			return
		}

		b.mu.Lock()
		revoked := b.revoked[token]
		a := b.accounts[cl.UserID]
		b.mu.Unlock()

		if revoked || a == nil {
			fail(c, http.StatusUnauthorized, "Not authorized, token failed")
			return
		}
		if a.user.IsBlocked {
			fail(c, http.StatusForbidden, "Account is blocked")
			return
		}

		c.Set(ctxUserID, cl.UserID)
		c.Next()
	}
}

func (b *Backend) requireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		b.mu.Lock()
		a := b.accounts[currentUserID(c)]
		b.mu.Unlock()

		if a == nil {
			fail(c, http.StatusUnauthorized, "Not authorized")
			return
		}
		for _, r := range roles {
			if a.user.Role == r {
				c.Next()
				return
			}
		}
		fail(c, http.StatusForbidden, "Access denied for role "+string(a.user.Role))
	}
}

func currentUserID(c *gin.Context) domain.UserID {
	id, _ := c.Get(ctxUserID)
	uid, _ := id.(domain.UserID)
	return uid
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}
