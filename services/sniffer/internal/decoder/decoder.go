// Package decoder turns raw datagram payloads into validated records.
//
// Three profiles exist: Device (JSON position reports routed by device id),
// CSV (positional "timestamp,lat,lng" lines) and Generic (any JSON object).
// Every failure is a *telemetry.DecodeError and no partial record is returned.
//
// Coordinates are range checked: a latitude outside [-90, 90] or a longitude
// outside [-180, 180] is rejected as an invalid value even though it parses
// as a number.
package decoder

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/telemetry"
)

// Profile names a payload framing.
type Profile string

const (
	ProfileDevice  Profile = "device"
	ProfileCSV     Profile = "csv"
	ProfileGeneric Profile = "generic"
)

// ParseProfile validates a profile name.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(s))); p {
	case ProfileDevice, ProfileCSV, ProfileGeneric:
		return p, nil
	default:
		return "", fmt.Errorf("unknown decoder profile %q", s)
	}
}

// FixDecoder decodes payloads that carry a routable position fix.
type FixDecoder interface {
	Decode(payload []byte) (telemetry.Fix, error)
}

// ValueDecoder decodes payloads into generic values for the window.
type ValueDecoder interface {
	DecodeValue(payload []byte) (telemetry.Value, error)
}

// NewFixDecoder returns the fix decoder for a profile. The generic profile has
// no fix form and is rejected.
func NewFixDecoder(p Profile, csvDeviceID int) (FixDecoder, error) {
	switch p {
	case ProfileDevice:
		return Device{}, nil
	case ProfileCSV:
		return CSV{DeviceID: csvDeviceID}, nil
	default:
		return nil, fmt.Errorf("profile %q cannot produce routed fixes", p)
	}
}

// NewValueDecoder returns a value decoder for any profile.
func NewValueDecoder(p Profile, csvDeviceID int) (ValueDecoder, error) {
	if p == ProfileGeneric {
		return Generic{}, nil
	}
	fd, err := NewFixDecoder(p, csvDeviceID)
	if err != nil {
		return nil, err
	}
	return fixValues{fd}, nil
}

type fixValues struct {
	FixDecoder
}

func (d fixValues) DecodeValue(payload []byte) (telemetry.Value, error) {
	fix, err := d.Decode(payload)
	if err != nil {
		return telemetry.Value{}, err
	}
	return fix.Value(), nil
}

// text validates the payload encoding and strips surrounding whitespace.
func text(payload []byte) (string, error) {
	if !utf8.Valid(payload) {
		return "", &telemetry.DecodeError{Kind: telemetry.KindEncoding}
	}
	return strings.TrimSpace(string(payload)), nil
}

var (
	errNotFinite   = errors.New("not a finite number")
	errNotIntegral = errors.New("not an integer")
	errOutOfRange  = errors.New("outside the 32-bit integer range")
)

func parseFloat(field, s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, telemetry.Invalid(field, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, telemetry.Invalid(field, errNotFinite)
	}
	return f, nil
}

// parseInt accepts integer literals and integral floats such as "1.0" that
// fit a Postgres integer column.
func parseInt(field, s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, telemetry.Invalid(field, errOutOfRange)
		}
		return int(n), nil
	}
	f, err := parseFloat(field, s)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, telemetry.Invalid(field, errNotIntegral)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, telemetry.Invalid(field, errOutOfRange)
	}
	return int(f), nil
}

func checkCoordinates(latField string, lat float64, lonField string, lon float64) error {
	if lat < -90 || lat > 90 {
		return telemetry.Invalid(latField, fmt.Errorf("latitude %v out of range", lat))
	}
	if lon < -180 || lon > 180 {
		return telemetry.Invalid(lonField, fmt.Errorf("longitude %v out of range", lon))
	}
	return nil
}
