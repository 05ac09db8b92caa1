package tcp

import "context"

// PlatformConfig holds the settings needed to reach a TCP Connected gateway.
type PlatformConfig struct {
	// Host is the gateway network address.
	Host string

	// AccessToken is the opaque credential issued by the gateway.
	AccessToken string
}

// Validate checks that both required options are present.
func (c PlatformConfig) Validate() error {
	if c.Host == "" {
		return ErrMissingHost
	}
	if c.AccessToken == "" {
		return ErrMissingAccessToken
	}
	return nil
}

// Registrar accepts the lights produced by Setup. Bridge implements it.
type Registrar interface {
	AddLights(ctx context.Context, lights []*Light) error
}

// Setup opens one session, discovers every device in every room, and hands
// one Light per device to the registrar in a single call.
//
// There is no retry and no partial result: the first error from the opener,
// a room listing or the registrar is returned unchanged and nothing is
// registered.
func Setup(ctx context.Context, cfg PlatformConfig, opener Opener, registrar Registrar) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	session, err := opener.Open(ctx, cfg.Host, cfg.AccessToken)
	if err != nil {
		return err
	}

	rooms, err := session.Rooms(ctx)
	if err != nil {
		return err
	}

	var lights []*Light
	for _, room := range rooms {
		devices, err := room.Devices(ctx)
		if err != nil {
			return err
		}
		for _, d := range devices {
			lights = append(lights, NewLight(session, d))
		}
	}

	return registrar.AddLights(ctx, lights)
}
