package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/telemetry"
)

func TestRoute_DefaultTable(t *testing.T) {
	table, err := Parse(DefaultRoutes)
	require.NoError(t, err)

	tests := []struct {
		deviceID int
		want     string
		unknown  bool
	}{
		{deviceID: 1, want: "locations2"},
		{deviceID: 2, want: "vehiculo2"},
		{deviceID: 9, unknown: true},
		{deviceID: 0, unknown: true},
		{deviceID: -1, unknown: true},
	}

	for _, tt := range tests {
		got, err := table.Route(telemetry.Fix{DeviceID: tt.deviceID})
		if tt.unknown {
			require.ErrorIs(t, err, telemetry.ErrUnknownDevice)
			var unknown *telemetry.UnknownDeviceError
			require.ErrorAs(t, err, &unknown)
			assert.Equal(t, tt.deviceID, unknown.DeviceID)
			assert.Empty(t, got)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestParse(t *testing.T) {
	table, err := Parse(" 3:tracking.buses , 1:locations2,")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, table.Devices())
	assert.Equal(t, "1:locations2,3:tracking.buses", table.String())

	for _, bad := range []string{"", "1", "x:locations2", "1:drop table", "1:a,1:b", "1:2abc"} {
		_, err := Parse(bad)
		assert.Error(t, err, "spec %q", bad)
	}
}

func TestNew_CopiesRoutes(t *testing.T) {
	routes := map[int]string{1: "locations2"}
	table, err := New(routes)
	require.NoError(t, err)

	routes[1] = "other"
	routes[2] = "vehiculo2"

	got, err := table.Lookup(1)
	require.NoError(t, err)
	assert.Equal(t, "locations2", got)
	_, err = table.Lookup(2)
	assert.ErrorIs(t, err, telemetry.ErrUnknownDevice)
}
