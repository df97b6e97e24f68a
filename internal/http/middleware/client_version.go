package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/sciencelab-batchserver/internal/http/response"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

// ClientVersionAllowed reports whether userAgent satisfies minimum, a string
// of the form "Name/Version". The agent must start with Name and compare
// lexically >= minimum, ignoring case. An empty minimum allows everything.
func ClientVersionAllowed(userAgent, minimum string) bool {
	minimum = strings.TrimSpace(minimum)
	if minimum == "" {
		return true
	}
	userAgent = strings.TrimSpace(userAgent)
	name, _, _ := strings.Cut(minimum, "/")
	if userAgent == "" || !strings.HasPrefix(userAgent, name) {
		return false
	}
	return strings.Compare(strings.ToLower(userAgent), strings.ToLower(minimum)) >= 0
}

// RequireClientVersion rejects requests whose User-Agent is older than minimum.
func RequireClientVersion(log *logger.Logger, minimum string) gin.HandlerFunc {
	msg := fmt.Errorf("Minimum client version must be %s. Please, upgrade your container instance to the latest version.", minimum)
	return func(c *gin.Context) {
		ua := c.Request.UserAgent()
		if ClientVersionAllowed(ua, minimum) {
			c.Next()
			return
		}
		if log != nil {
			log.Warn("Client version rejected", "user_agent", ua, "minimum", minimum)
		}
		response.RespondError(c, http.StatusBadRequest, "client_version_too_old", msg)
	}
}
