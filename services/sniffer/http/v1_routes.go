package http

import "github.com/gin-gonic/gin"

// registerV1Routes sets up the read-only history API.
// Groups: /api/v1/devices
func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware())

	devices := v1.Group("/devices")
	{
		devices.GET("", s.handleV1ListDevices)
		devices.GET("/:id/last", s.handleV1LastSeen)
		if s.deps.History != nil {
			devices.GET("/:id/locations", s.handleV1Locations)
			devices.GET("/:id/nearby", s.handleV1Nearby)
		}
	}
}

func apiVersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-API-Version", "v1")
		c.Next()
	}
}
