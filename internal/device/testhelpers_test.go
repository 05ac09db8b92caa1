package device

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// testSchema mirrors migrations/20260301_090000_light_devices.up.sql.
const testSchema = `
	CREATE TABLE devices (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		domain TEXT NOT NULL,
		protocol TEXT NOT NULL,
		address TEXT NOT NULL,
		capabilities TEXT NOT NULL DEFAULT '[]',
		state TEXT NOT NULL DEFAULT '{}',
		state_updated_at TEXT,
		health_status TEXT NOT NULL DEFAULT 'unknown',
		health_last_seen TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	) STRICT;
	CREATE TABLE state_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL,
		state TEXT NOT NULL,
		source TEXT NOT NULL,
		created_at TEXT NOT NULL
	) STRICT;
`

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Each pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return db
}

func testLight(id, name, address string) *Device {
	return &Device{
		ID:           id,
		Name:         name,
		Slug:         GenerateSlug(name),
		Type:         DeviceTypeLightDimmer,
		Domain:       DomainLighting,
		Protocol:     ProtocolTCPConnected,
		Address:      Address{AddressKeyGatewayDevice: address},
		Capabilities: []Capability{CapOnOff, CapDim},
		State:        State{},
		HealthStatus: HealthStatusUnknown,
	}
}

func newTestRegistry(t *testing.T) (*Registry, *SQLiteStateHistoryRepository) {
	t.Helper()
	db := setupTestDB(t)
	reg := NewRegistry(NewSQLiteRepository(db))
	hist := NewSQLiteStateHistoryRepository(db)
	reg.SetStateHistory(hist)
	require.NoError(t, reg.RefreshCache(context.Background()))
	return reg, hist
}
