package main

import (
	"fmt"

	"github.com/netleapio/stokercloud-controller/stokercloud"
)

type entityKind string

const (
	kindSensor       entityKind = "sensor"
	kindBinarySensor entityKind = "binary_sensor"
	kindNumber       entityKind = "number"
)

// Keys of values the controller keeps locally rather than reading from
// StokerCloud.
const (
	keyPelletEnergy      = "internaldata_pellet_energy_per_kg"
	keyConsumptionEnergy = "internaldata_consumption_energy"
	keyTotalConsumption  = "hopperdata_2_value"
)

// entityDescription describes one Home Assistant entity backed by a key of
// the flattened controller data.
type entityDescription struct {
	Key         string
	Name        string
	Icon        string
	Kind        entityKind
	DeviceClass string
	StateClass  string
	Unit        string
	Precision   int

	// Category is the Home Assistant entity category, "diagnostic" or
	// "config"; empty for primary readings.
	Category string

	// Labels maps raw values to display strings; values without a label
	// are formatted with UnknownLabel when it is set. Missing is rendered
	// when the key is absent from the data.
	Labels       map[string]string
	UnknownLabel string
	Missing      string

	// Number entities only.
	Min, Max, Step float64
	Default        float64
	Menu, Setting  string
	Internal       bool
}

var stateLabels = map[string]string{
	string(stokercloud.StateIgnition1):     "IGNITION_1",
	string(stokercloud.StateIgnition2):     "IGNITION_2",
	string(stokercloud.StatePower):         "POWER",
	string(stokercloud.StateHotWater):      "HOT_WATER",
	string(stokercloud.StateFaultIgnition): "FAULT_IGNITION",
	string(stokercloud.StateOff):           "OFF",
}

var infoMessageLabels = map[string]string{
	"0":  "No info message",
	"13": "Ash tray full",
	"24": "Hopper content low",
}

var boilerSensors = []entityDescription{
	{Key: "frontdata_1_value", Name: "Boiler Temperature", Icon: "mdi:thermometer", DeviceClass: "temperature", StateClass: "measurement", Unit: "°C", Precision: 1},
	{Key: "frontdata_2_value", Name: "Boiler Temperature Requested", Icon: "mdi:thermometer-chevron-up", DeviceClass: "temperature", Unit: "°C", Precision: 1},
	{Key: "miscdata_output", Name: "Boiler Effect", Icon: "mdi:gas-burner", DeviceClass: "power", StateClass: "measurement", Unit: "kW", Precision: 1},
	{Key: "miscdata_outputpct", Name: "Boiler Effect pct", Icon: "mdi:gas-burner", StateClass: "measurement", Unit: "%"},
	{Key: "frontdata_3_value", Name: "Current Water Heater Temperature", Icon: "mdi:thermometer", DeviceClass: "temperature", StateClass: "measurement", Unit: "°C", Precision: 1},
	{Key: "frontdata_4_value", Name: "Requested Water Heater Temperature", Icon: "mdi:thermometer-chevron-up", DeviceClass: "temperature", Unit: "°C", Precision: 1},
	{Key: keyTotalConsumption, Name: "Total Consumption", Icon: "mdi:counter", DeviceClass: "weight", StateClass: "total_increasing", Unit: "kg", Precision: 1},
	{Key: keyConsumptionEnergy, Name: "Total Consumption Energy", Icon: "mdi:fire", DeviceClass: "energy", StateClass: "total_increasing", Unit: "kWh", Precision: 0},
	{Key: "miscdata_state_value", Name: "State", Icon: "mdi:information", Labels: stateLabels},
	{Key: "serial", Name: "Serial no", Icon: "mdi:information", Category: "diagnostic"},
	{Key: "miscdata_clock_value", Name: "Clock", Icon: "mdi:clock-digital", Category: "diagnostic"},
	{Key: "infomessages_0", Name: "Status message", Icon: "mdi:information", Labels: infoMessageLabels, UnknownLabel: "Info message %s", Missing: "0"},
	{Key: "weatherdata_0_value", Name: "Weather City", Icon: "mdi:information"},
	{Key: "weatherdata_1_value", Name: "Weather Outside temperature", Icon: "mdi:information", DeviceClass: "temperature", StateClass: "measurement", Unit: "°C", Precision: 1},
	{Key: "weatherdata_2_value", Name: "Weather Wind speed", Icon: "mdi:information", DeviceClass: "wind_speed", StateClass: "measurement", Unit: "m/s", Precision: 1},
	{Key: "weatherdata_3_value", Name: "Weather Wind direction", Icon: "mdi:information"},
}

var boilerBinarySensors = []entityDescription{
	{Key: "miscdata_running", Name: "Running", Icon: "mdi:radiator", DeviceClass: "running"},
	{Key: "miscdata_alarm", Name: "Alarm", Icon: "mdi:alarm-light-outline", DeviceClass: "problem"},
}

var boilerNumbers = []entityDescription{
	{
		Key: "frontdata_0_value", Name: "Hopper content", Icon: "mdi:information",
		DeviceClass: "weight", Unit: "kg",
		Min: 0, Max: 250, Step: 1,
		Menu: "hopper.content", Setting: "hopper.content",
	},
	{
		Key: keyPelletEnergy, Name: "Pellet energy (kWh/kg)", Icon: "mdi:fire",
		Unit: "kWh", Category: "config",
		Min:  0, Max: 10, Step: 0.1, Default: 5.0,
		Internal: true,
	},
}

var entitiesByKey = func() map[string]entityDescription {
	m := map[string]entityDescription{}
	add := func(kind entityKind, descs []entityDescription) {
		for _, d := range descs {
			d.Kind = kind
			if _, dup := m[d.Key]; dup {
				panic(fmt.Sprintf("duplicate entity key %q", d.Key))
			}
			m[d.Key] = d
		}
	}
	add(kindSensor, boilerSensors)
	add(kindBinarySensor, boilerBinarySensors)
	add(kindNumber, boilerNumbers)
	return m
}()

// allEntities returns every entity description, sensors first.
func allEntities() []entityDescription {
	out := make([]entityDescription, 0, len(entitiesByKey))
	for _, group := range []struct {
		kind  entityKind
		descs []entityDescription
	}{
		{kindSensor, boilerSensors},
		{kindBinarySensor, boilerBinarySensors},
		{kindNumber, boilerNumbers},
	} {
		for _, d := range group.descs {
			d.Kind = group.kind
			out = append(out, d)
		}
	}
	return out
}

func lookupEntity(key string) (entityDescription, bool) {
	d, ok := entitiesByKey[key]
	return d, ok
}

// render converts the raw value for d into the value published to Home
// Assistant. It returns false when there is nothing to publish.
func (d entityDescription) render(data stokercloud.Flat) (any, bool) {
	raw, ok := data.String(d.Key)
	if !ok {
		if d.Missing == "" {
			return nil, false
		}
		raw = d.Missing
	}

	if d.Kind == kindBinarySensor {
		v, ok := data.Float(d.Key)
		if !ok {
			return nil, false
		}
		if v != 0 {
			return "ON", true
		}
		return "OFF", true
	}

	if d.Labels != nil {
		if label, ok := d.Labels[raw]; ok {
			return label, true
		}
		if d.UnknownLabel != "" {
			return fmt.Sprintf(d.UnknownLabel, raw), true
		}
		return raw, true
	}

	if d.Unit != "" {
		if v, ok := data.Float(d.Key); ok {
			return v, true
		}
	}
	return raw, true
}

// renderAll renders every entity present in data, keyed by entity key.
func renderAll(data stokercloud.Flat) map[string]any {
	out := map[string]any{}
	for key, d := range entitiesByKey {
		if v, ok := d.render(data); ok {
			out[key] = v
		}
	}
	return out
}
