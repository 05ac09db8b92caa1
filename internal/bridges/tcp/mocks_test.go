package tcp

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// fakeDevice is a static device handle.
type fakeDevice struct {
	id    string
	name  string
	on    bool
	level int
}

func (d *fakeDevice) ID() string      { return d.id }
func (d *fakeDevice) Name() string    { return d.name }
func (d *fakeDevice) IsOn() bool      { return d.on }
func (d *fakeDevice) Brightness() int { return d.level }

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) TurnOnDevice(ctx context.Context, device Device) error {
	return m.Called(ctx, device).Error(0)
}

func (m *mockGateway) TurnOffDevice(ctx context.Context, device Device) error {
	return m.Called(ctx, device).Error(0)
}

func (m *mockGateway) SetDeviceLevel(ctx context.Context, device Device, level int) error {
	return m.Called(ctx, device, level).Error(0)
}

type mockSession struct {
	mock.Mock
	gateway *mockGateway
}

func newMockSession() *mockSession {
	return &mockSession{gateway: &mockGateway{}}
}

func (m *mockSession) Rooms(ctx context.Context) ([]Room, error) {
	args := m.Called(ctx)
	rooms, _ := args.Get(0).([]Room)
	return rooms, args.Error(1)
}

func (m *mockSession) Gateway() Gateway {
	return m.gateway
}

func (m *mockSession) UpdateState(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockRoom struct {
	mock.Mock
	name string
}

func (m *mockRoom) Name() string { return m.name }

func (m *mockRoom) Devices(ctx context.Context) ([]Device, error) {
	args := m.Called(ctx)
	devices, _ := args.Get(0).([]Device)
	return devices, args.Error(1)
}

type mockOpener struct {
	mock.Mock
}

func (m *mockOpener) Open(ctx context.Context, host, accessToken string) (Session, error) {
	args := m.Called(ctx, host, accessToken)
	session, _ := args.Get(0).(Session)
	return session, args.Error(1)
}

type mockRegistrar struct {
	mock.Mock
}

func (m *mockRegistrar) AddLights(ctx context.Context, lights []*Light) error {
	return m.Called(ctx, lights).Error(0)
}
