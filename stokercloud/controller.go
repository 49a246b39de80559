package stokercloud

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// PowerState is an on/off flag reported by the controller.
type PowerState int

const (
	PowerUnknown PowerState = -1
	PowerOff     PowerState = 0
	PowerOn      PowerState = 1
)

func (p PowerState) String() string {
	switch p {
	case PowerOff:
		return "OFF"
	case PowerOn:
		return "ON"
	}
	return "UNKNOWN"
}

// State is the operating state of the boiler, as reported in
// miscdata.state.value.
type State string

const (
	StateIgnition1     State = "state_2"
	StateIgnition2     State = "state_4"
	StatePower         State = "state_5"
	StateHotWater      State = "state_7"
	StateFaultIgnition State = "state_13"
	StateOff           State = "state_14"
)

var stateNames = map[State]string{
	StateIgnition1:     "IGNITION_1",
	StateIgnition2:     "IGNITION_2",
	StatePower:         "POWER",
	StateHotWater:      "HOT_WATER",
	StateFaultIgnition: "FAULT_IGNITION",
	StateOff:           "OFF",
}

// Known reports whether s is one of the documented states.
func (s State) Known() bool {
	_, ok := stateNames[s]
	return ok
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return string(s)
}

// Controller is a read-only view over one controller status document.
type Controller struct {
	doc Document
}

// NewController checks that the document describes a connected controller
// and wraps it.
func NewController(doc Document) (*Controller, error) {
	nc := doc.Get("notconnected")
	if !nc.Exists() {
		return nil, &MissingFieldError{Path: "notconnected"}
	}
	if nc.Float() != 0 {
		return nil, ErrNotConnected
	}
	return &Controller{doc: doc}, nil
}

// Document returns the underlying document.
func (c *Controller) Document() Document {
	return c.doc
}

// SerialNumber returns the controller serial.
func (c *Controller) SerialNumber() (string, error) {
	r, err := c.field("serial")
	if err != nil {
		return "", err
	}
	return r.String(), nil
}

// Alarm reports whether the controller alarm is raised.
func (c *Controller) Alarm() (PowerState, error) {
	return c.powerState("miscdata.alarm")
}

// Running reports whether the burner is running.
func (c *Controller) Running() (PowerState, error) {
	return c.powerState("miscdata.running")
}

// State returns the operating state. Unknown states are returned as-is;
// use State.Known to tell them apart.
func (c *Controller) State() (State, error) {
	r, err := c.field("miscdata.state.value")
	if err != nil {
		return "", err
	}
	return State(r.String()), nil
}

func (c *Controller) BoilerTemperatureCurrent() (Value, error) {
	return c.subItemValue("frontdata", "boilertemp", UnitDegree)
}

func (c *Controller) BoilerTemperatureRequested() (Value, error) {
	return c.subItemValue("frontdata", "-wantedboilertemp", UnitDegree)
}

func (c *Controller) BoilerEnergy() (Value, error) {
	return c.subItemValue("boilerdata", "5", UnitKWh)
}

func (c *Controller) HotWaterTemperatureCurrent() (Value, error) {
	return c.subItemValue("frontdata", "dhw", UnitDegree)
}

func (c *Controller) HotWaterTemperatureRequested() (Value, error) {
	return c.subItemValue("frontdata", "dhwwanted", UnitDegree)
}

func (c *Controller) ConsumptionTotal() (Value, error) {
	return c.subItemValue("hopperdata", "4", UnitKilogram)
}

func (c *Controller) ConsumptionDay() (Value, error) {
	return c.subItemValue("hopperdata", "3", UnitKilogram)
}

// OutputPercent is the current burner output relative to its maximum.
func (c *Controller) OutputPercent() (Value, error) {
	r, err := c.field("miscdata.outputpct")
	if err != nil {
		return Value{}, err
	}
	return NewValue(r.String(), UnitPercent)
}

// InfoMessages returns the codes of the active info messages.
func (c *Controller) InfoMessages() ([]string, error) {
	r, err := c.field("infomessages")
	if err != nil {
		return nil, err
	}
	var msgs []string
	r.ForEach(func(_, v gjson.Result) bool {
		msgs = append(msgs, v.String())
		return true
	})
	return msgs, nil
}

func (c *Controller) field(path string) (gjson.Result, error) {
	r := c.doc.Get(path)
	if !r.Exists() {
		return r, &MissingFieldError{Path: path}
	}
	return r, nil
}

func (c *Controller) powerState(path string) (PowerState, error) {
	r, err := c.field(path)
	if err != nil {
		return PowerUnknown, err
	}
	switch r.Int() {
	case 0:
		return PowerOff, nil
	case 1:
		return PowerOn, nil
	}
	return PowerUnknown, nil
}

// subItemValue finds the element of the menu list whose id matches and
// returns its value.
func (c *Controller) subItemValue(menu, id string, unit Unit) (Value, error) {
	r, err := c.field(fmt.Sprintf("%s.#(id==%q).value", menu, id))
	if err != nil {
		return Value{}, err
	}
	return NewValue(r.String(), unit)
}
