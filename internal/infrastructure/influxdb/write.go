package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	measurementLightLevel = "light_level"

	protocolTag = "tcp_connected"
)

// WriteLightLevel records one light sample: on/off, hub brightness 0-255
// and the matching 0-100 level.
func (c *Client) WriteLightLevel(deviceID string, on bool, brightness int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		measurementLightLevel,
		map[string]string{
			"device_id": deviceID,
			"protocol":  protocolTag,
		},
		map[string]any{
			"on":         on,
			"brightness": brightness,
			"level":      brightness * 100 / 255,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}
