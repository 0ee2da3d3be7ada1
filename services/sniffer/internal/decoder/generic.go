package decoder

import (
	"errors"

	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/telemetry"
)

// Generic accepts any JSON object and keeps it as-is.
type Generic struct{}

func (Generic) DecodeValue(payload []byte) (telemetry.Value, error) {
	s, err := text(payload)
	if err != nil {
		return telemetry.Value{}, err
	}
	v, err := telemetry.ParseValue([]byte(s))
	if err != nil {
		return telemetry.Value{}, telemetry.Malformed(err)
	}
	if v.Kind() != telemetry.ObjectKind {
		return telemetry.Value{}, telemetry.Malformed(errors.New("payload must be a JSON object"))
	}
	return v, nil
}
