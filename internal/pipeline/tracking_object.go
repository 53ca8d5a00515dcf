package pipeline

// TrackingObject es la vista publicada de un registro DATA aceptado.
type TrackingObject struct {
	DeviceID uint16 `json:"device_id" cbor:"device_id" bson:"device_id"`
	Seq      uint16 `json:"seq" cbor:"seq" bson:"seq"`
	Datetime string `json:"dt" cbor:"dt" bson:"dt"`
	Unix     int64  `json:"ts" cbor:"ts" bson:"ts"`

	Lat     float64 `json:"lat" cbor:"lat" bson:"lat"`
	Lon     float64 `json:"lon" cbor:"lon" bson:"lon"`
	Alt     int     `json:"alt" cbor:"alt" bson:"alt"`
	Spd     float64 `json:"spd" cbor:"spd" bson:"spd"` // km/h
	Crs     float64 `json:"crs" cbor:"crs" bson:"crs"` // grados
	Battery int     `json:"bat" cbor:"bat" bson:"bat"`
	Flags   uint16  `json:"flags" cbor:"flags" bson:"flags"`

	MsgType int `json:"msg_type" cbor:"msg_type" bson:"msg_type"` // 1=live, 0=buffer
	Fix     int `json:"fix" cbor:"fix" bson:"fix"`                // 1 si las coordenadas son válidas
}
