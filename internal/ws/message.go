package ws

// Inbound frame types sent by clients.
const (
	FrameJoinDevice = "join_device"
)

// Frame is a client-to-server message. Older mobile builds send deviceId
// instead of device_id; both are accepted.
type Frame struct {
	Type         string `json:"type"`
	DeviceID     string `json:"device_id"`
	LegacyDevice string `json:"deviceId"`
}

// Device returns the device id the frame refers to.
func (f Frame) Device() string {
	if f.DeviceID != "" {
		return f.DeviceID
	}
	return f.LegacyDevice
}
