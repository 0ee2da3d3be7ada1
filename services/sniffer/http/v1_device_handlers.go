package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/db"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/lastseen"
)

const (
	defaultRadius = 500
	maxRadius     = 10000
)

// Accepted forms of fecha_inicio and fecha_fin.
var rangeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// handleV1ListDevices returns the routed devices and their tables
// GET /api/v1/devices
func (s *Server) handleV1ListDevices(c *gin.Context) {
	type device struct {
		ID    int    `json:"id"`
		Table string `json:"table"`
	}
	ids := s.deps.Routes.Devices()
	out := make([]device, 0, len(ids))
	for _, id := range ids {
		table, _ := s.deps.Routes.Lookup(id)
		out = append(out, device{ID: id, Table: table})
	}

	c.JSON(http.StatusOK, gin.H{
		"data": out,
		"meta": gin.H{
			"count":     len(out),
			"page_name": s.cfg.PageName,
		},
	})
}

// resolveDevice parses :id and returns its table, writing the error response
// itself when it fails.
func (s *Server) resolveDevice(c *gin.Context) (int, string, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device id must be an integer"})
		return 0, "", false
	}
	table, err := s.deps.Routes.Lookup(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return 0, "", false
	}
	return id, table, true
}

// handleV1Locations returns stored points of a device, optionally in a range
// GET /api/v1/devices/:id/locations?fecha_inicio=...&fecha_fin=...&limit=...
func (s *Server) handleV1Locations(c *gin.Context) {
	id, table, ok := s.resolveDevice(c)
	if !ok {
		return
	}

	startStr, endStr := c.Query("fecha_inicio"), c.Query("fecha_fin")
	if (startStr == "") != (endStr == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fecha_inicio and fecha_fin must be given together"})
		return
	}

	query := db.LocationQuery{Table: table, Limit: s.cfg.DefaultLimit}
	meta := gin.H{"device_id": id, "page_name": s.cfg.PageName}

	if startStr != "" {
		since, err := parseRangeTime(startStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fecha_inicio, use YYYY-MM-DDTHH:MM"})
			return
		}
		until, err := parseRangeTime(endStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fecha_fin, use YYYY-MM-DDTHH:MM"})
			return
		}
		if until.Before(since) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fecha_fin is before fecha_inicio"})
			return
		}
		query.Since, query.Until = &since, &until
		query.Limit = 0
		meta["fecha_inicio"] = startStr
		meta["fecha_fin"] = endStr
		meta["consulta_desde"] = since.Format(time.DateTime)
		meta["consulta_hasta"] = until.Format(time.DateTime)
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		query.Limit = limit
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	locations, err := s.deps.History.FetchLocations(ctx, query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if locations == nil {
		locations = []db.Location{}
	}
	meta["count"] = len(locations)
	c.JSON(http.StatusOK, gin.H{"data": locations, "meta": meta})
}

// handleV1Nearby returns points of a device within a radius of a position
// GET /api/v1/devices/:id/nearby?lat=...&lng=...&radio=...
func (s *Server) handleV1Nearby(c *gin.Context) {
	id, table, ok := s.resolveDevice(c)
	if !ok {
		return
	}

	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if latStr == "" || lngStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng are required"})
		return
	}
	lat, errLat := strconv.ParseFloat(latStr, 64)
	lng, errLng := strconv.ParseFloat(lngStr, 64)
	if errLat != nil || errLng != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng must be valid coordinates"})
		return
	}

	radius := defaultRadius
	if radioStr := c.Query("radio"); radioStr != "" {
		r, err := strconv.Atoi(radioStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "radio must be an integer number of meters"})
			return
		}
		radius = r
	}
	if radius < 1 || radius > maxRadius {
		c.JSON(http.StatusBadRequest, gin.H{"error": "radio must be between 1 and 10000 meters", "radio": radius})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	locations, err := s.deps.History.FetchNearby(ctx, db.NearbyQuery{
		Table:   table,
		Lat:     lat,
		Lng:     lng,
		RadiusM: radius,
		Limit:   s.cfg.DefaultLimit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if locations == nil {
		locations = []db.NearbyLocation{}
	}
	c.JSON(http.StatusOK, gin.H{
		"data": locations,
		"meta": gin.H{
			"device_id": id,
			"lat":       lat,
			"lng":       lng,
			"radio":     radius,
			"count":     len(locations),
			"page_name": s.cfg.PageName,
		},
	})
}

// handleV1LastSeen returns the latest cached fix of a device
// GET /api/v1/devices/:id/last
func (s *Server) handleV1LastSeen(c *gin.Context) {
	id, _, ok := s.resolveDevice(c)
	if !ok {
		return
	}
	if s.deps.LastSeen == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "last-seen cache is disabled"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	entry, err := s.deps.LastSeen.Get(ctx, id)
	if errors.Is(err, lastseen.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no recent fix for device"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func parseRangeTime(s string) (time.Time, error) {
	var err error
	for _, layout := range rangeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
