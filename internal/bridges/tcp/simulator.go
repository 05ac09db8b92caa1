package tcp

import (
	"context"
	"fmt"
	"sync"
)

// SimulatedDevice seeds one bulb on a Simulator.
type SimulatedDevice struct {
	ID    string
	Name  string
	On    bool
	Level int // 0-100
}

// SimulatedRoom seeds one room on a Simulator.
type SimulatedRoom struct {
	Name    string
	Devices []SimulatedDevice
}

// Simulator is an in-memory TCP Connected gateway.
//
// It is used for commissioning without hardware and in tests. Like the real
// gateway, commands change gateway-side state only; device handles see the
// change after the next Session.UpdateState.
type Simulator struct {
	accessToken string

	mu     sync.Mutex
	rooms  []SimulatedRoom
	state  map[string]*SimulatedDevice // gateway-side state by device ID
	opened int
	// failUpdate, when set, is returned by every UpdateState.
	failUpdate error
}

// NewSimulator creates a gateway that accepts accessToken and exposes rooms.
func NewSimulator(accessToken string, rooms []SimulatedRoom) *Simulator {
	s := &Simulator{
		accessToken: accessToken,
		state:       make(map[string]*SimulatedDevice),
	}
	for _, room := range rooms {
		r := SimulatedRoom{Name: room.Name}
		for _, d := range room.Devices {
			dev := d
			dev.Level = clampLevel(dev.Level)
			s.state[dev.ID] = &dev
			r.Devices = append(r.Devices, dev)
		}
		s.rooms = append(s.rooms, r)
	}
	return s
}

// Open implements Opener.
func (s *Simulator) Open(ctx context.Context, host, accessToken string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if host == "" {
		return nil, ErrMissingHost
	}
	if accessToken != s.accessToken {
		return nil, ErrUnauthorized
	}

	s.mu.Lock()
	s.opened++
	s.mu.Unlock()

	sess := &simSession{sim: s, devices: make(map[string]*simDevice)}
	sess.gateway = &simGateway{session: sess}
	return sess, nil
}

// SetUpdateError makes every subsequent UpdateState fail with err.
// Pass nil to restore normal operation.
func (s *Simulator) SetUpdateError(err error) {
	s.mu.Lock()
	s.failUpdate = err
	s.mu.Unlock()
}

// DeviceState returns the gateway-side state of a device.
func (s *Simulator) DeviceState(id string) (SimulatedDevice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.state[id]
	if !ok {
		return SimulatedDevice{}, false
	}
	return *d, true
}

// Sessions returns how many sessions have been opened.
func (s *Simulator) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

func clampLevel(level int) int {
	switch {
	case level < 0:
		return 0
	case level > MaxDeviceLevel:
		return MaxDeviceLevel
	default:
		return level
	}
}

type simSession struct {
	sim     *Simulator
	gateway *simGateway

	mu      sync.RWMutex
	devices map[string]*simDevice
}

func (s *simSession) Rooms(ctx context.Context) ([]Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.sim.mu.Lock()
	seeds := make([]SimulatedRoom, len(s.sim.rooms))
	copy(seeds, s.sim.rooms)
	s.sim.mu.Unlock()

	rooms := make([]Room, 0, len(seeds))
	for _, r := range seeds {
		rooms = append(rooms, &simRoom{session: s, name: r.Name, seeds: r.Devices})
	}
	return rooms, nil
}

func (s *simSession) Gateway() Gateway {
	return s.gateway
}

func (s *simSession) UpdateState(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.sim.mu.Lock()
	defer s.sim.mu.Unlock()
	if s.sim.failUpdate != nil {
		return s.sim.failUpdate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range s.devices {
		if current, ok := s.sim.state[id]; ok {
			d.on = current.On
			d.level = current.Level
			d.name = current.Name
		}
	}
	return nil
}

// handle returns the session's handle for a device, creating it from seed.
func (s *simSession) handle(seed SimulatedDevice) *simDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.devices[seed.ID]; ok {
		return d
	}
	d := &simDevice{session: s, id: seed.ID, name: seed.Name, on: seed.On, level: seed.Level}
	s.devices[seed.ID] = d
	return d
}

type simRoom struct {
	session *simSession
	name    string
	seeds   []SimulatedDevice
}

func (r *simRoom) Name() string { return r.name }

func (r *simRoom) Devices(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	devices := make([]Device, 0, len(r.seeds))
	for _, seed := range r.seeds {
		devices = append(devices, r.session.handle(seed))
	}
	return devices, nil
}

type simDevice struct {
	session *simSession
	id      string
	name    string
	on      bool
	level   int
}

func (d *simDevice) ID() string { return d.id }

func (d *simDevice) Name() string {
	d.session.mu.RLock()
	defer d.session.mu.RUnlock()
	return d.name
}

func (d *simDevice) IsOn() bool {
	d.session.mu.RLock()
	defer d.session.mu.RUnlock()
	return d.on
}

func (d *simDevice) Brightness() int {
	d.session.mu.RLock()
	defer d.session.mu.RUnlock()
	return d.level
}

type simGateway struct {
	session *simSession
}

func (g *simGateway) TurnOnDevice(ctx context.Context, device Device) error {
	return g.update(ctx, device, func(d *SimulatedDevice) { d.On = true })
}

func (g *simGateway) TurnOffDevice(ctx context.Context, device Device) error {
	return g.update(ctx, device, func(d *SimulatedDevice) { d.On = false })
}

func (g *simGateway) SetDeviceLevel(ctx context.Context, device Device, level int) error {
	return g.update(ctx, device, func(d *SimulatedDevice) { d.Level = clampLevel(level) })
}

func (g *simGateway) update(ctx context.Context, device Device, apply func(*SimulatedDevice)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sim := g.session.sim
	sim.mu.Lock()
	defer sim.mu.Unlock()

	d, ok := sim.state[device.ID()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, device.ID())
	}
	apply(d)
	return nil
}
