package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository persists light records.
type Repository interface {
	// GetByID returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	List(ctx context.Context) ([]Device, error)

	// Create returns ErrDeviceExists on a duplicate ID or slug.
	Create(ctx context.Context, device *Device) error

	// UpdateState merges state into the stored state.
	UpdateState(ctx context.Context, id string, state State) error

	UpdateHealth(ctx context.Context, id string, status HealthStatus, lastSeen time.Time) error
}

// SQLiteRepository implements Repository on the devices table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns a repository over an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectDeviceColumns = `
	SELECT id, name, slug, type, domain, protocol, address, capabilities,
		state, state_updated_at, health_status, health_last_seen,
		created_at, updated_at
	FROM devices`

// GetByID retrieves a device by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectDeviceColumns+" WHERE id = ?", id)
	device, err := scanDeviceRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// List returns all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectDeviceColumns+" ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDeviceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Create inserts a device, stamping CreatedAt and UpdatedAt.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	addressJSON, err := json.Marshal(device.Address)
	if err != nil {
		return fmt.Errorf("marshalling address: %w", err)
	}
	caps := device.Capabilities
	if caps == nil {
		caps = []Capability{}
	}
	capsJSON, err := json.Marshal(caps)
	if err != nil {
		return fmt.Errorf("marshalling capabilities: %w", err)
	}
	state := device.State
	if state == nil {
		state = State{}
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}
	health := device.HealthStatus
	if health == "" {
		health = HealthStatusUnknown
	}

	now := time.Now().UTC().Truncate(time.Second)
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (
			id, name, slug, type, domain, protocol, address, capabilities,
			state, state_updated_at, health_status, health_last_seen,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		device.ID,
		device.Name,
		device.Slug,
		string(device.Type),
		string(device.Domain),
		string(device.Protocol),
		string(addressJSON),
		string(capsJSON),
		string(stateJSON),
		nullableTime(device.StateUpdatedAt),
		string(health),
		nullableTime(device.HealthLastSeen),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrDeviceExists, device.ID)
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	device.HealthStatus = health
	device.CreatedAt = now
	device.UpdatedAt = now
	return nil
}

// UpdateState merges state into the stored JSON with json_patch, so a
// partial update keeps keys it does not mention.
func (r *SQLiteRepository) UpdateState(ctx context.Context, id string, state State) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET state = json_patch(COALESCE(state, '{}'), ?),
		    state_updated_at = ?,
		    updated_at = ?
		WHERE id = ?`,
		string(stateJSON), now, now, id,
	)
	if err != nil {
		return fmt.Errorf("updating device state: %w", err)
	}
	return requireRow(result)
}

// UpdateHealth sets the health status and last seen time.
func (r *SQLiteRepository) UpdateHealth(ctx context.Context, id string, status HealthStatus, lastSeen time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET health_status = ?, health_last_seen = ?, updated_at = ?
		WHERE id = ?`,
		string(status),
		lastSeen.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device health: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeviceRow(scanner rowScanner) (*Device, error) {
	var d Device
	var deviceType, domain, protocol, healthStatus string
	var addressJSON, capsJSON, stateJSON string
	var stateUpdatedAt, healthLastSeen sql.NullString
	var createdAt, updatedAt string

	if err := scanner.Scan(
		&d.ID,
		&d.Name,
		&d.Slug,
		&deviceType,
		&domain,
		&protocol,
		&addressJSON,
		&capsJSON,
		&stateJSON,
		&stateUpdatedAt,
		&healthStatus,
		&healthLastSeen,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	d.Type = DeviceType(deviceType)
	d.Domain = Domain(domain)
	d.Protocol = Protocol(protocol)
	d.HealthStatus = HealthStatus(healthStatus)

	d.StateUpdatedAt = parseNullableTime(stateUpdatedAt)
	d.HealthLastSeen = parseNullableTime(healthLastSeen)

	var err error
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	if err := json.Unmarshal([]byte(addressJSON), &d.Address); err != nil {
		return nil, fmt.Errorf("unmarshalling address: %w", err)
	}
	if err := json.Unmarshal([]byte(capsJSON), &d.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshalling capabilities: %w", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &d.State); err != nil {
		return nil, fmt.Errorf("unmarshalling state: %w", err)
	}
	return &d, nil
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
