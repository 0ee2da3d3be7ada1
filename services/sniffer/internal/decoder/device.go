package decoder

import (
	"errors"
	"time"

	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/telemetry"
)

// Keys of the tracker JSON report. Aliases are accepted for each field and
// errors always name the canonical key.
const (
	FieldID        = "ID"
	FieldLatitude  = "Latitud"
	FieldLongitude = "Longitud"
	FieldDate      = "Fecha"
	FieldTime      = "Hora"
	FieldRPM       = "RPM"
)

var aliases = map[string][]string{
	FieldID:        {"deviceId"},
	FieldLatitude:  {"lat"},
	FieldLongitude: {"lon", "lng"},
	FieldRPM:       {"rpm"},
}

var required = []string{FieldID, FieldLatitude, FieldLongitude, FieldDate, FieldTime}

// Device decodes JSON reports such as
// {"ID":"1","Latitud":"10.5","Longitud":"-74.2","Fecha":"2024-01-01","Hora":"12:00:00","RPM":800}.
type Device struct{}

func (Device) Decode(payload []byte) (telemetry.Fix, error) {
	s, err := text(payload)
	if err != nil {
		return telemetry.Fix{}, err
	}

	doc, err := telemetry.ParseValue([]byte(s))
	if err != nil {
		return telemetry.Fix{}, telemetry.Malformed(err)
	}
	if doc.Kind() != telemetry.ObjectKind {
		return telemetry.Fix{}, telemetry.Malformed(errors.New("report must be a JSON object"))
	}

	fields := make(map[string]telemetry.Value, len(required)+1)
	for _, key := range required {
		v, ok := lookup(doc, key)
		if !ok {
			return telemetry.Fix{}, telemetry.Missing(key)
		}
		fields[key] = v
	}

	var fix telemetry.Fix
	if fix.DeviceID, err = intField(FieldID, fields[FieldID]); err != nil {
		return telemetry.Fix{}, err
	}
	if fix.Latitude, err = floatField(FieldLatitude, fields[FieldLatitude]); err != nil {
		return telemetry.Fix{}, err
	}
	if fix.Longitude, err = floatField(FieldLongitude, fields[FieldLongitude]); err != nil {
		return telemetry.Fix{}, err
	}
	if err := checkCoordinates(FieldLatitude, fix.Latitude, FieldLongitude, fix.Longitude); err != nil {
		return telemetry.Fix{}, err
	}
	if fix.Date, err = layoutField(FieldDate, fields[FieldDate], telemetry.DateLayout); err != nil {
		return telemetry.Fix{}, err
	}
	if fix.Time, err = layoutField(FieldTime, fields[FieldTime], telemetry.TimeLayout); err != nil {
		return telemetry.Fix{}, err
	}
	if v, ok := lookup(doc, FieldRPM); ok {
		if fix.RPM, err = intField(FieldRPM, v); err != nil {
			return telemetry.Fix{}, err
		}
	}
	return fix, nil
}

func lookup(doc telemetry.Value, key string) (telemetry.Value, bool) {
	if v, ok := doc.Get(key); ok {
		return v, true
	}
	for _, alias := range aliases[key] {
		if v, ok := doc.Get(alias); ok {
			return v, true
		}
	}
	return telemetry.Value{}, false
}

var errNotScalar = errors.New("expected a number or numeric string")

func scalar(field string, v telemetry.Value) (string, error) {
	switch v.Kind() {
	case telemetry.NumberKind, telemetry.StringKind:
		return v.Text(), nil
	default:
		return "", telemetry.Invalid(field, errNotScalar)
	}
}

func intField(field string, v telemetry.Value) (int, error) {
	s, err := scalar(field, v)
	if err != nil {
		return 0, err
	}
	return parseInt(field, s)
}

func floatField(field string, v telemetry.Value) (float64, error) {
	s, err := scalar(field, v)
	if err != nil {
		return 0, err
	}
	return parseFloat(field, s)
}

func layoutField(field string, v telemetry.Value, layout string) (string, error) {
	if v.Kind() != telemetry.StringKind {
		return "", telemetry.Invalid(field, errors.New("expected a string"))
	}
	if _, err := time.Parse(layout, v.Text()); err != nil {
		return "", telemetry.Invalid(field, err)
	}
	return v.Text(), nil
}
