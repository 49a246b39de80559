package hassiomqtt

import (
	"encoding/json"
	"fmt"
)

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

type Device struct {
	client            *Client
	id                string
	statusTopic       string
	availabilityTopic string
	model             DeviceModel
}

// NewDevice creates a new device with a unique id
func NewDevice(client *Client, id string, model *DeviceModel) *Device {
	return &Device{
		client:            client,
		id:                id,
		statusTopic:       fmt.Sprintf("%s/%s/state", client.DiscoveryPrefix, id),
		availabilityTopic: fmt.Sprintf("%s/%s/availability", client.DiscoveryPrefix, id),
		model:             *model,
	}
}

// StatusTopic is the topic all entities of the device read their state from.
func (d *Device) StatusTopic() string {
	return d.statusTopic
}

// CommandTopic returns the topic on which the entity with the given key
// receives new values.
func (d *Device) CommandTopic(key string) string {
	return fmt.Sprintf("%s/%s/%s/set", d.client.DiscoveryPrefix, d.id, key)
}

// SendStatus publishes the device state. Strings and byte slices are sent
// as-is; anything else is encoded as JSON.
func (d *Device) SendStatus(status interface{}) error {
	switch status.(type) {
	case string, []byte:
	default:
		data, err := json.Marshal(status)
		if err != nil {
			return err
		}
		status = data
	}

	return d.client.publish(d.statusTopic, 0, false, status)
}

// SendAvailability publishes a retained online/offline message for all
// entities of the device.
func (d *Device) SendAvailability(online bool) error {
	payload := PayloadOffline
	if online {
		payload = PayloadOnline
	}
	return d.client.publish(d.availabilityTopic, 1, true, payload)
}
