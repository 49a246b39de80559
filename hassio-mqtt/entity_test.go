package hassiomqtt

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/netleapio/stokercloud-controller/hassio-mqtt/mqtttest"
)

func newTestDevice(t *testing.T) (*mqtttest.Client, *Client, *Device) {
	t.Helper()

	fake := mqtttest.NewClient()
	fake.Connect()
	c := NewClientFrom(fake, "ctrl", "", nil)
	d := NewDevice(c, "stokercloud_12345", &DeviceModel{
		Identifiers:  []string{"stokercloud_12345"},
		Manufacturer: "NBE",
		Name:         "Boiler",
	})
	return fake, c, d
}

func decodeConfig(t *testing.T, fake *mqtttest.Client, topic string) map[string]any {
	t.Helper()

	msg, ok := fake.Last(topic)
	if !ok {
		t.Fatalf("nothing published to %s", topic)
	}
	if !msg.Retained {
		t.Errorf("config on %s should be retained", topic)
	}
	var out map[string]any
	if err := json.Unmarshal(msg.Payload, &out); err != nil {
		t.Fatalf("config is not JSON: %v", err)
	}
	return out
}

func TestNewSensor(t *testing.T) {
	fake, _, d := newTestDevice(t)

	s, err := NewSensor(d, "stokercloud_12345_boilertemp", &SensorModel{
		EntityModel: EntityModel{
			Name:          "Boiler Temperature",
			DeviceClass:   "temperature",
			ValueTemplate: "{{value_json.boilertemp}}",
		},
		UnitOfMeasurement: "°C",
	})
	if err != nil {
		t.Fatalf("NewSensor() error = %v", err)
	}

	want := "homeassistant/sensor/ctrl/stokercloud_12345_boilertemp/config"
	if s.ConfigTopic() != want {
		t.Errorf("ConfigTopic() = %q, want %q", s.ConfigTopic(), want)
	}

	cfg := decodeConfig(t, fake, want)
	if cfg["state_topic"] != "homeassistant/stokercloud_12345/state" {
		t.Errorf("state_topic = %v", cfg["state_topic"])
	}
	if cfg["unique_id"] != "stokercloud_12345_boilertemp" {
		t.Errorf("unique_id = %v", cfg["unique_id"])
	}
	if cfg["unit_of_measurement"] != "°C" {
		t.Errorf("unit_of_measurement = %v", cfg["unit_of_measurement"])
	}
	dev, ok := cfg["device"].(map[string]any)
	if !ok || dev["manufacturer"] != "NBE" {
		t.Errorf("device = %v", cfg["device"])
	}
	avail, ok := cfg["availability"].([]any)
	if !ok || len(avail) != 1 {
		t.Fatalf("availability = %v", cfg["availability"])
	}
	if avail[0].(map[string]any)["topic"] != "homeassistant/stokercloud_12345/availability" {
		t.Errorf("availability topic = %v", avail[0])
	}
}

func TestNewNumber_Command(t *testing.T) {
	fake, _, d := newTestDevice(t)

	var got []string
	_, err := NewNumber(d, "stokercloud_12345_hopper", "hopper", &NumberModel{
		EntityModel: EntityModel{Name: "Hopper content"},
		Min:         0,
		Max:         250,
		Step:        1,
	}, func(payload string) {
		got = append(got, payload)
	})
	if err != nil {
		t.Fatalf("NewNumber() error = %v", err)
	}

	cmdTopic := "homeassistant/stokercloud_12345/hopper/set"
	cfg := decodeConfig(t, fake, "homeassistant/number/ctrl/stokercloud_12345_hopper/config")
	if cfg["command_topic"] != cmdTopic {
		t.Errorf("command_topic = %v", cfg["command_topic"])
	}
	if cfg["max"] != 250.0 {
		t.Errorf("max = %v", cfg["max"])
	}

	if !fake.Deliver(cmdTopic, []byte("120")) {
		t.Fatal("command topic not subscribed")
	}
	if len(got) != 1 || got[0] != "120" {
		t.Errorf("commands = %v", got)
	}
}

func TestNewWaterHeater(t *testing.T) {
	fake, _, d := newTestDevice(t)

	_, err := NewWaterHeater(d, "stokercloud_12345_hot_water", &WaterHeaterModel{
		EntityModel: EntityModel{Name: "Hot Water"},
		Modes:       []string{"off", "performance"},
	})
	if err != nil {
		t.Fatalf("NewWaterHeater() error = %v", err)
	}

	cfg := decodeConfig(t, fake, "homeassistant/water_heater/ctrl/stokercloud_12345_hot_water/config")
	if _, ok := cfg["state_topic"]; ok {
		t.Error("water heater config must not carry state_topic")
	}
	for _, key := range []string{"current_temperature_topic", "temperature_state_topic", "mode_state_topic"} {
		if cfg[key] != "homeassistant/stokercloud_12345/state" {
			t.Errorf("%s = %v", key, cfg[key])
		}
	}
}

func TestDevice_SendStatusAndAvailability(t *testing.T) {
	fake, _, d := newTestDevice(t)

	if err := d.SendStatus(map[string]any{"boilertemp": 65.3}); err != nil {
		t.Fatalf("SendStatus() error = %v", err)
	}
	msg, _ := fake.Last(d.StatusTopic())
	if string(msg.Payload) != `{"boilertemp":65.3}` {
		t.Errorf("status payload = %s", msg.Payload)
	}

	if err := d.SendStatus(`{"raw":true}`); err != nil {
		t.Fatalf("SendStatus() error = %v", err)
	}
	msg, _ = fake.Last(d.StatusTopic())
	if string(msg.Payload) != `{"raw":true}` {
		t.Errorf("raw status payload = %s", msg.Payload)
	}

	if err := d.SendAvailability(false); err != nil {
		t.Fatalf("SendAvailability() error = %v", err)
	}
	msg, _ = fake.Last("homeassistant/stokercloud_12345/availability")
	if string(msg.Payload) != PayloadOffline || !msg.Retained {
		t.Errorf("availability = %q retained=%v", msg.Payload, msg.Retained)
	}
}

func TestClient_BirthRepublishes(t *testing.T) {
	fake, c, d := newTestDevice(t)

	s, err := NewBinarySensor(d, "stokercloud_12345_alarm", &BinarySensorModel{
		EntityModel: EntityModel{Name: "Alarm"},
	})
	if err != nil {
		t.Fatalf("NewBinarySensor() error = %v", err)
	}

	births := 0
	c.OnBirth(func() { births++ })
	c.HandleConnect()

	before := len(fake.Published())
	fake.Deliver("homeassistant/status", []byte("offline"))
	if births != 0 || len(fake.Published()) != before {
		t.Error("offline status should not re-publish")
	}

	fake.Deliver("homeassistant/status", []byte("online"))
	if births != 1 {
		t.Errorf("births = %d, want 1", births)
	}
	if _, ok := fake.Last(s.ConfigTopic()); !ok || len(fake.Published()) != before+1 {
		t.Errorf("expected one re-published config, got %d new messages", len(fake.Published())-before)
	}
}

func TestNewSensor_PublishedOnConnect(t *testing.T) {
	fake := mqtttest.NewClient()
	c := NewClientFrom(fake, "ctrl", "", nil)
	d := NewDevice(c, "stokercloud_12345", &DeviceModel{Name: "Boiler"})

	s, err := NewSensor(d, "stokercloud_12345_boilertemp", &SensorModel{
		EntityModel: EntityModel{Name: "Boiler Temperature"},
	})
	if !errors.Is(err, mqtttest.ErrNotConnected) {
		t.Fatalf("NewSensor() error = %v, want ErrNotConnected", err)
	}
	if s == nil {
		t.Fatal("entity should be returned even when discovery could not be sent")
	}
	if len(fake.Published()) != 0 {
		t.Fatal("nothing should be published while disconnected")
	}

	fake.Connect()
	c.HandleConnect()

	if _, ok := fake.Last(s.ConfigTopic()); !ok {
		t.Error("config not published after connect")
	}
}
