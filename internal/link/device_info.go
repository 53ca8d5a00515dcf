package link

// DeviceEvent es el tipo de evento de dispositivo enviado al proxy.
type DeviceEvent int

const (
	DeviceEventUnknown DeviceEvent = iota
	DeviceEventConnect             // device_connect: true
	DeviceEventUpdate              // device_update: true
)

func (e DeviceEvent) String() string {
	switch e {
	case DeviceEventConnect:
		return "device_connect"
	case DeviceEventUpdate:
		return "device_update"
	default:
		return "unknown"
	}
}

// DeviceInfo es la vista del dispositivo que se envía al proxy.
type DeviceInfo struct {
	DeviceID   uint16
	RemoteIP   string
	RemotePort int
	Event      DeviceEvent
}
