package decoder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/telemetry"
)

// Positional field names of the CSV framing.
const (
	FieldTimestamp = "timestamp"
	FieldLat       = "lat"
	FieldLng       = "lng"
)

var csvFields = []string{FieldTimestamp, FieldLat, FieldLng}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// CSV decodes "timestamp,lat,lng" lines. Lines carry no device identity, so
// every fix is attributed to DeviceID.
type CSV struct {
	DeviceID int
}

func (d CSV) Decode(payload []byte) (telemetry.Fix, error) {
	s, err := text(payload)
	if err != nil {
		return telemetry.Fix{}, err
	}

	parts := strings.Split(s, ",")
	if len(parts) > len(csvFields) {
		return telemetry.Fix{}, telemetry.Malformed(
			fmt.Errorf("expected %d fields, got %d", len(csvFields), len(parts)))
	}
	for i, name := range csvFields {
		if i >= len(parts) || strings.TrimSpace(parts[i]) == "" {
			return telemetry.Fix{}, telemetry.Missing(name)
		}
	}

	ts, err := parseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return telemetry.Fix{}, telemetry.Invalid(FieldTimestamp, err)
	}
	if ts.Year() < 0 || ts.Year() > 9999 {
		return telemetry.Fix{}, telemetry.Invalid(FieldTimestamp,
			fmt.Errorf("year %d does not fit YYYY-MM-DD", ts.Year()))
	}
	lat, err := parseFloat(FieldLat, parts[1])
	if err != nil {
		return telemetry.Fix{}, err
	}
	lng, err := parseFloat(FieldLng, parts[2])
	if err != nil {
		return telemetry.Fix{}, err
	}
	if err := checkCoordinates(FieldLat, lat, FieldLng, lng); err != nil {
		return telemetry.Fix{}, err
	}

	return telemetry.Fix{
		DeviceID:  d.DeviceID,
		Latitude:  lat,
		Longitude: lng,
		Date:      ts.Format(telemetry.DateLayout),
		Time:      ts.Format(telemetry.TimeLayout),
	}, nil
}

// parseTimestamp accepts wall-clock datetimes, RFC 3339 and unix seconds.
// RFC 3339 and unix values are converted to UTC.
func parseTimestamp(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			if layout == time.RFC3339 {
				t = t.UTC()
			}
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
