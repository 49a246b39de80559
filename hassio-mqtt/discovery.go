package hassiomqtt

// Discovery payloads, see https://www.home-assistant.io/integrations/mqtt/#mqtt-discovery.
// Only the fields this bridge sets are modelled.

// DeviceModel groups entities under one device in Home Assistant. Entities
// must carry a unique_id for the grouping to apply.
type DeviceModel struct {
	Identifiers     []string `json:"identifiers,omitempty"`
	Manufacturer    string   `json:"manufacturer,omitempty"`
	Model           string   `json:"model,omitempty"`
	Name            string   `json:"name,omitempty"`
	SerialNumber    string   `json:"serial_number,omitempty"`
	SoftwareVersion string   `json:"sw_version,omitempty"`
}

type AvailabilityModel struct {
	Topic string `json:"topic"`

	// Defaults are "online" and "offline".
	PayloadAvailable    string `json:"payload_available,omitempty"`
	PayloadNotAvailable string `json:"payload_not_available,omitempty"`
}

// EntityModel holds the keys shared by every entity platform.
type EntityModel struct {
	Availability []AvailabilityModel `json:"availability,omitempty"`
	Device       *DeviceModel        `json:"device,omitempty"`

	DeviceClass string `json:"device_class,omitempty"`

	// EntityCategory is empty, "config" or "diagnostic".
	EntityCategory string `json:"entity_category,omitempty"`

	Icon     string `json:"icon,omitempty"`
	Name     string `json:"name,omitempty"`
	ObjectID string `json:"object_id,omitempty"`
	UniqueID string `json:"unique_id,omitempty"`

	StateTopic    string `json:"state_topic,omitempty"`
	ValueTemplate string `json:"value_template,omitempty"`
}

type SensorModel struct {
	EntityModel

	SuggestedDisplayPrecision int `json:"suggested_display_precision,omitempty"`

	// StateClass is one of measurement, total or total_increasing.
	StateClass        string `json:"state_class,omitempty"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
}

type BinarySensorModel struct {
	EntityModel

	// Defaults are "ON" and "OFF".
	PayloadOn  string `json:"payload_on,omitempty"`
	PayloadOff string `json:"payload_off,omitempty"`
}

type NumberModel struct {
	EntityModel

	CommandTopic string `json:"command_topic"`

	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step,omitempty"`

	// Mode is auto, box or slider.
	Mode string `json:"mode,omitempty"`

	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
}

// WaterHeaterModel reads all of its state from templates over one topic,
// so it does not use EntityModel.StateTopic.
type WaterHeaterModel struct {
	EntityModel

	CurrentTemperatureTopic    string `json:"current_temperature_topic,omitempty"`
	CurrentTemperatureTemplate string `json:"current_temperature_template,omitempty"`

	TemperatureStateTopic    string `json:"temperature_state_topic,omitempty"`
	TemperatureStateTemplate string `json:"temperature_state_template,omitempty"`

	ModeStateTopic    string `json:"mode_state_topic,omitempty"`
	ModeStateTemplate string `json:"mode_state_template,omitempty"`

	// Modes is a subset of off, eco, electric, gas, heat_pump, high_demand
	// and performance.
	Modes []string `json:"modes,omitempty"`

	MinTemp         float64 `json:"min_temp,omitempty"`
	MaxTemp         float64 `json:"max_temp,omitempty"`
	Precision       float64 `json:"precision,omitempty"`
	TemperatureUnit string  `json:"temperature_unit,omitempty"`
}
