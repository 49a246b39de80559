package hassiomqtt

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Entity is one discovered Home Assistant entity.
type Entity struct {
	device      *Device
	id          string
	component   string
	model       interface{}
	configTopic string
}

func NewSensor(device *Device, id string, model *SensorModel) (*Entity, error) {
	m := *model
	device.bindState(&m.EntityModel, id)
	return newEntity(device, "sensor", id, &m)
}

func NewBinarySensor(device *Device, id string, model *BinarySensorModel) (*Entity, error) {
	m := *model
	device.bindState(&m.EntityModel, id)
	return newEntity(device, "binary_sensor", id, &m)
}

// NewNumber creates a number entity. onCommand receives the raw payload
// Home Assistant publishes when the user sets a value.
func NewNumber(device *Device, id, key string, model *NumberModel, onCommand func(payload string)) (*Entity, error) {
	m := *model
	device.bindState(&m.EntityModel, id)
	m.CommandTopic = device.CommandTopic(key)

	device.client.addCommand(m.CommandTopic, func(_ mqtt.Client, msg mqtt.Message) {
		onCommand(string(msg.Payload()))
	})

	return newEntity(device, "number", id, &m)
}

// NewWaterHeater creates a water heater whose temperature and mode topics
// all read from the device status topic.
func NewWaterHeater(device *Device, id string, model *WaterHeaterModel) (*Entity, error) {
	m := *model
	device.bindCommon(&m.EntityModel, id)
	m.CurrentTemperatureTopic = device.statusTopic
	m.TemperatureStateTopic = device.statusTopic
	m.ModeStateTopic = device.statusTopic
	return newEntity(device, "water_heater", id, &m)
}

func newEntity(device *Device, component, id string, model interface{}) (*Entity, error) {
	e := &Entity{
		device:      device,
		id:          id,
		component:   component,
		model:       model,
		configTopic: fmt.Sprintf("%s/%s/%s/%s/config", device.client.DiscoveryPrefix, component, device.client.id, id),
	}

	device.client.log.Debug("storing", "entity", id)
	device.client.addEntity(e)

	// A failed publish leaves the entity registered; it is sent again on
	// the next connect or Home Assistant birth.
	if err := e.Refresh(); err != nil {
		return e, err
	}
	return e, nil
}

// ConfigTopic is the discovery topic the entity configuration is sent to.
func (e *Entity) ConfigTopic() string {
	return e.configTopic
}

// Refresh re-publishes the discovery configuration.
func (e *Entity) Refresh() error {
	data, err := json.Marshal(e.model)
	if err != nil {
		return err
	}

	e.device.client.log.Trace("send", "topic", e.configTopic, "payload", string(data))

	return e.device.client.publish(e.configTopic, 1, true, data)
}

func (d *Device) bindCommon(m *EntityModel, id string) {
	m.UniqueID = id
	m.Device = &d.model
	m.Availability = []AvailabilityModel{{Topic: d.availabilityTopic}}
}

func (d *Device) bindState(m *EntityModel, id string) {
	d.bindCommon(m, id)
	m.StateTopic = d.statusTopic
}
