package db

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// History serves read queries over the device tables from its own pool so the
// ingestion connection is never shared.
type History struct {
	pool *pgxpool.Pool
}

// NewHistory creates a History backed by a pgx pool.
func NewHistory(ctx context.Context, databaseURL string) (*History, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &History{pool: pool}, nil
}

// Close releases the pool resources.
func (h *History) Close() {
	if h.pool != nil {
		h.pool.Close()
	}
}

// Location is one stored point as served to map clients.
type Location struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	RPM       int     `json:"rpm"`
	Timestamp string  `json:"timestamp"`
}

// NearbyLocation is a Location with its distance to the search point in meters.
type NearbyLocation struct {
	Location
	Distance float64 `json:"distancia"`
}

// LocationQuery holds filters for a device's stored points.
type LocationQuery struct {
	Table string
	Since *time.Time
	Until *time.Time
	Limit int
}

// NearbyQuery describes a radius search around a point.
type NearbyQuery struct {
	Table   string
	Lat     float64
	Lng     float64
	RadiusM int
	Limit   int
}

const locationsBase = `
    SELECT lat, lon, COALESCE(rpm, 0), to_char(fecha + hora, 'YYYY-MM-DD HH24:MI:SS')
    FROM %s
    WHERE lat IS NOT NULL AND lon IS NOT NULL
`

// FetchLocations returns a device's points ordered by insertion.
func (h *History) FetchLocations(ctx context.Context, q LocationQuery) ([]Location, error) {
	args := []any{}
	clause := ""
	argPos := 1
	if q.Since != nil {
		clause += " AND fecha + hora >= $" + strconv.Itoa(argPos)
		args = append(args, *q.Since)
		argPos++
	}
	if q.Until != nil {
		clause += " AND fecha + hora <= $" + strconv.Itoa(argPos)
		args = append(args, *q.Until)
		argPos++
	}
	order := " ORDER BY id"
	limit := ""
	if q.Limit > 0 {
		limit = " LIMIT $" + strconv.Itoa(argPos)
		args = append(args, q.Limit)
	}

	sql := sprintfTable(locationsBase, q.Table) + clause + order + limit

	rows, err := h.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := make([]Location, 0)
	for rows.Next() {
		var loc Location
		if err := rows.Scan(&loc.Lat, &loc.Lng, &loc.RPM, &loc.Timestamp); err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

// Haversine distance in meters, earth radius 6371000 m. The acos argument is
// clamped so identical points do not produce NaN.
const nearbySQL = `
    SELECT lat, lon, rpm, ts, distancia FROM (
        SELECT id, lat, lon, COALESCE(rpm, 0) AS rpm,
               to_char(fecha + hora, 'YYYY-MM-DD HH24:MI:SS') AS ts,
               6371000 * acos(LEAST(1, GREATEST(-1,
                   cos(radians($1)) * cos(radians(lat)) * cos(radians(lon) - radians($2)) +
                   sin(radians($1)) * sin(radians(lat))
               ))) AS distancia
        FROM %s
        WHERE lat IS NOT NULL AND lon IS NOT NULL
    ) s
    WHERE distancia <= $3
    ORDER BY id
    LIMIT $4
`

// FetchNearby returns the points of a device within RadiusM meters.
func (h *History) FetchNearby(ctx context.Context, q NearbyQuery) ([]NearbyLocation, error) {
	rows, err := h.pool.Query(ctx, sprintfTable(nearbySQL, q.Table), q.Lat, q.Lng, float64(q.RadiusM), q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]NearbyLocation, 0)
	for rows.Next() {
		var loc NearbyLocation
		if err := rows.Scan(&loc.Lat, &loc.Lng, &loc.RPM, &loc.Timestamp, &loc.Distance); err != nil {
			return nil, err
		}
		loc.Distance = RoundMeters(loc.Distance)
		out = append(out, loc)
	}
	return out, rows.Err()
}

// RoundMeters rounds a distance to centimeters.
func RoundMeters(d float64) float64 {
	return math.Round(d*100) / 100
}
