package telemetry

import (
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Layouts of the date and time fields reported by the trackers.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// Packet is one received datagram. It lives for a single receive cycle.
type Packet struct {
	ID         uuid.UUID
	Payload    []byte
	Sender     *net.UDPAddr
	ReceivedAt time.Time
}

// Fix is a validated position report from a routed device.
type Fix struct {
	DeviceID  int     `json:"device_id"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Date      string  `json:"fecha"`
	Time      string  `json:"hora"`
	RPM       int     `json:"rpm"`
}

// Day returns the fix date at midnight UTC.
func (f Fix) Day() (time.Time, error) {
	return time.Parse(DateLayout, f.Date)
}

// ClockOffset returns the fix time of day as a duration since midnight.
func (f Fix) ClockOffset() (time.Duration, error) {
	t, err := time.Parse(TimeLayout, f.Time)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

// Value renders the fix as a generic object so it can live in the window.
func (f Fix) Value() Value {
	return Object(
		Member{Key: "device_id", Value: Number(strconv.Itoa(f.DeviceID))},
		Member{Key: "lat", Value: Number(strconv.FormatFloat(f.Latitude, 'f', -1, 64))},
		Member{Key: "lon", Value: Number(strconv.FormatFloat(f.Longitude, 'f', -1, 64))},
		Member{Key: "fecha", Value: String(f.Date)},
		Member{Key: "hora", Value: String(f.Time)},
		Member{Key: "rpm", Value: Number(strconv.Itoa(f.RPM))},
	)
}
