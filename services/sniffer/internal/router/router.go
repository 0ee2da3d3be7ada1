// Package router maps device identities to destination tables.
package router

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/telemetry"
)

// DefaultRoutes is the deployment's historical device layout.
const DefaultRoutes = "1:locations2,2:vehiculo2"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Table is an immutable device id -> table mapping.
type Table struct {
	routes map[int]string
}

// New copies routes into a Table. Table names must be plain SQL identifiers,
// optionally schema-qualified.
func New(routes map[int]string) (*Table, error) {
	if len(routes) == 0 {
		return nil, fmt.Errorf("routing table is empty")
	}
	copied := make(map[int]string, len(routes))
	for id, table := range routes {
		if !tableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q for device %d", table, id)
		}
		copied[id] = table
	}
	return &Table{routes: copied}, nil
}

// Parse builds a Table from "id:table,id:table".
func Parse(list string) (*Table, error) {
	routes := make(map[int]string)
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idStr, table, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("invalid route %q: expected id:table", entry)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idStr))
		if err != nil {
			return nil, fmt.Errorf("invalid route %q: %w", entry, err)
		}
		if _, dup := routes[id]; dup {
			return nil, fmt.Errorf("duplicate route for device %d", id)
		}
		routes[id] = strings.TrimSpace(table)
	}
	return New(routes)
}

// Route returns the destination table of a fix.
func (t *Table) Route(fix telemetry.Fix) (string, error) {
	return t.Lookup(fix.DeviceID)
}

// Lookup returns the table of a device id.
func (t *Table) Lookup(deviceID int) (string, error) {
	table, ok := t.routes[deviceID]
	if !ok {
		return "", &telemetry.UnknownDeviceError{DeviceID: deviceID}
	}
	return table, nil
}

// Devices lists the routed device ids in ascending order.
func (t *Table) Devices() []int {
	ids := make([]int, 0, len(t.routes))
	for id := range t.routes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// String renders the table in the same form Parse accepts.
func (t *Table) String() string {
	parts := make([]string, 0, len(t.routes))
	for _, id := range t.Devices() {
		parts = append(parts, fmt.Sprintf("%d:%s", id, t.routes[id]))
	}
	return strings.Join(parts, ",")
}
