package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	hassiomqtt "github.com/netleapio/stokercloud-controller/hassio-mqtt"
	"github.com/netleapio/stokercloud-controller/stokercloud"
)

const (
	deviceManufacturer = "NBE"
	deviceModel        = "Stoker cloud boiler"

	waterHeaterModeOn  = "performance"
	waterHeaterModeOff = "off"
)

// MQTTListener mirrors the boiler state into Home Assistant.
type MQTTListener struct {
	account      string
	eventChannel chan BoilerChange
	mqtt         *hassiomqtt.Client
	manager      *BoilerManager
	log          hclog.Logger

	device    *hassiomqtt.Device
	deviceID  string
	entities  map[string]*hassiomqtt.Entity
	available *bool
}

func NewMQTTListener(cfg *MQTTSettings, log hclog.Logger) *MQTTListener {
	client := hassiomqtt.NewClient(hassiomqtt.Settings{
		Broker:          cfg.Broker,
		Port:            cfg.Port,
		ClientID:        cfg.ClientID,
		User:            cfg.User,
		Password:        cfg.Password,
		DiscoveryPrefix: cfg.DiscoveryPrefix,
	}, log)
	return newMQTTListener(client, log)
}

func newMQTTListener(client *hassiomqtt.Client, log hclog.Logger) *MQTTListener {
	return &MQTTListener{
		eventChannel: make(chan BoilerChange, 10),
		mqtt:         client,
		log:          log,
		entities:     map[string]*hassiomqtt.Entity{},
	}
}

func (l *MQTTListener) Init(manager *BoilerManager, account string) {
	l.account = account
	l.deviceID = "stokercloud_" + sanitizeID(account)
	l.manager = manager
	manager.AddListener(l.eventChannel)

	l.mqtt.OnBirth(func() {
		manager.RequestRefresh()
	})
}

func (l *MQTTListener) Start(ctx context.Context) {
	l.mqtt.Start(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				l.mqtt.Stop()
				return
			case change := <-l.eventChannel:
				l.handleChange(change)
			}
		}
	}()
}

func (l *MQTTListener) handleChange(change BoilerChange) {
	d := l.manager.GetBoiler()
	if d == nil {
		return
	}

	if l.device == nil {
		l.newDevice(d)
	}
	if change.Changes&ChangeBoilerGone != 0 {
		l.log.Warn("boiler gone, marking entities unavailable", "serial", change.Serial)
	}

	l.updateState(d)
}

func (l *MQTTListener) newDevice(d *BoilerState) {
	l.log.Info("new boiler", "serial", d.serial)

	l.device = hassiomqtt.NewDevice(l.mqtt, l.deviceID, &hassiomqtt.DeviceModel{
		Identifiers:     []string{l.deviceID},
		Manufacturer:    deviceManufacturer,
		Model:           deviceModel,
		Name:            l.account,
		SerialNumber:    d.serial,
		SoftwareVersion: Version,
	})

	for _, desc := range allEntities() {
		id := fmt.Sprintf("%s_%s", l.deviceID, desc.Key)
		e, err := l.newEntity(id, desc)
		if err != nil {
			l.log.Warn("discovery not sent, retrying on connect", "entity", id, "error", err)
		}
		if e != nil {
			l.entities[desc.Key] = e
		}
	}

	id := l.deviceID + "_hot_water"
	e, err := hassiomqtt.NewWaterHeater(l.device, id, &hassiomqtt.WaterHeaterModel{
		EntityModel: hassiomqtt.EntityModel{
			Name:     "Hot Water",
			ObjectID: id,
			Icon:     "mdi:water-boiler",
		},
		CurrentTemperatureTemplate: "{{ value_json.water_heater_current }}",
		TemperatureStateTemplate:   "{{ value_json.water_heater_target }}",
		ModeStateTemplate:          "{{ value_json.water_heater_mode }}",
		Modes:                      []string{waterHeaterModeOff, waterHeaterModeOn},
		Precision:                  0.1,
		TemperatureUnit:            "C",
	})
	if err != nil {
		l.log.Warn("discovery not sent, retrying on connect", "entity", id, "error", err)
	}
	if e != nil {
		l.entities["hot_water"] = e
	}
}

func (l *MQTTListener) newEntity(id string, desc entityDescription) (*hassiomqtt.Entity, error) {
	base := hassiomqtt.EntityModel{
		DeviceClass:    desc.DeviceClass,
		EntityCategory: desc.Category,
		Icon:           desc.Icon,
		Name:           desc.Name,
		ObjectID:       id,
		ValueTemplate:  fmt.Sprintf("{{ value_json.%s }}", desc.Key),
	}

	switch desc.Kind {
	case kindBinarySensor:
		return hassiomqtt.NewBinarySensor(l.device, id, &hassiomqtt.BinarySensorModel{
			EntityModel: base,
		})
	case kindNumber:
		key := desc.Key
		return hassiomqtt.NewNumber(l.device, id, key, &hassiomqtt.NumberModel{
			EntityModel:       base,
			Min:               desc.Min,
			Max:               desc.Max,
			Step:              desc.Step,
			Mode:              "box",
			UnitOfMeasurement: desc.Unit,
		}, func(payload string) {
			l.handleCommand(key, payload)
		})
	}

	return hassiomqtt.NewSensor(l.device, id, &hassiomqtt.SensorModel{
		EntityModel:               base,
		SuggestedDisplayPrecision: desc.Precision,
		StateClass:                desc.StateClass,
		UnitOfMeasurement:         desc.Unit,
	})
}

func (l *MQTTListener) handleCommand(key, payload string) {
	value, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if err != nil {
		l.log.Warn("ignoring non-numeric command", "key", key, "payload", payload)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*stokercloud.DefaultTimeout)
	defer cancel()

	if _, err := l.manager.SetValue(ctx, key, value); err != nil {
		l.log.Error("failed to set value", "key", key, "error", err)
	}
}

func (l *MQTTListener) updateState(d *BoilerState) {
	state := renderAll(d.values)
	if d.controller != nil {
		l.addWaterHeaterState(state, d.controller)
	}

	if err := l.device.SendStatus(state); err != nil {
		l.log.Error("failed to send status", "error", err)
	}

	available := d.Available()
	if l.available == nil || *l.available != available {
		if err := l.device.SendAvailability(available); err != nil {
			l.log.Error("failed to send availability", "error", err)
			return
		}
		l.available = &available
	}
}

func (l *MQTTListener) addWaterHeaterState(state map[string]any, ctrl *stokercloud.Controller) {
	if v, err := ctrl.HotWaterTemperatureCurrent(); err == nil {
		state["water_heater_current"] = v.Float64()
	} else {
		l.log.Debug("no hot water temperature", "error", err)
	}
	if v, err := ctrl.HotWaterTemperatureRequested(); err == nil {
		state["water_heater_target"] = v.Float64()
	}
	if s, err := ctrl.State(); err == nil {
		mode := waterHeaterModeOff
		if s == stokercloud.StateHotWater {
			mode = waterHeaterModeOn
		}
		state["water_heater_mode"] = mode
	}
}

// sanitizeID keeps characters that are valid in MQTT discovery object ids.
func sanitizeID(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
