package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	labels = []string{"serial"}

	boilerTempGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "stokercloud",
		Subsystem: "boiler",
		Name:      "temperature_celsius",
	}, labels)
	boilerWantedTempGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "stokercloud",
		Subsystem: "boiler",
		Name:      "requested_temperature_celsius",
	}, labels)
	hotWaterTempGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "stokercloud",
		Subsystem: "hot_water",
		Name:      "temperature_celsius",
	}, labels)
	hotWaterWantedTempGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "stokercloud",
		Subsystem: "hot_water",
		Name:      "requested_temperature_celsius",
	}, labels)
	outputGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "stokercloud",
		Subsystem: "boiler",
		Name:      "output_kilowatts",
	}, labels)
	outputRatioGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "stokercloud",
		Subsystem: "boiler",
		Name:      "output_ratio",
	}, labels)
	consumptionGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "stokercloud",
		Subsystem: "hopper",
		Name:      "consumption_total_kilograms",
	}, labels)
	connectedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "stokercloud",
		Subsystem: "boiler",
		Name:      "connected",
		Help:      "1 when the controller reports it is connected to StokerCloud.",
	}, labels)
	lastUpdateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "stokercloud",
		Subsystem: "boiler",
		Name:      "last_update_timestamp_seconds",
	}, labels)

	pollsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stokercloud",
		Subsystem: "poller",
		Name:      "polls_total",
		Help:      "Polls of the controller status by result.",
	}, []string{"result"})
)

// gaugesByKey maps flattened keys to the gauges recording them, with the
// factor applied to the raw value.
var gaugesByKey = []struct {
	key    string
	gauge  *prometheus.GaugeVec
	factor float64
}{
	{"frontdata_1_value", boilerTempGauge, 1},
	{"frontdata_2_value", boilerWantedTempGauge, 1},
	{"frontdata_3_value", hotWaterTempGauge, 1},
	{"frontdata_4_value", hotWaterWantedTempGauge, 1},
	{"miscdata_output", outputGauge, 1},
	{"miscdata_outputpct", outputRatioGauge, 0.01},
	{keyTotalConsumption, consumptionGauge, 1},
}

func newMetricsServer(addr string) *http.Server {
	reg := prometheus.NewRegistry()

	// Add Go module build info.
	reg.MustRegister(collectors.NewBuildInfoCollector())
	reg.MustRegister(collectors.NewGoCollector(
		collectors.WithGoCollections(collectors.GoRuntimeMemStatsCollection | collectors.GoRuntimeMetricsCollection),
	))

	reg.MustRegister(boilerTempGauge)
	reg.MustRegister(boilerWantedTempGauge)
	reg.MustRegister(hotWaterTempGauge)
	reg.MustRegister(hotWaterWantedTempGauge)
	reg.MustRegister(outputGauge)
	reg.MustRegister(outputRatioGauge)
	reg.MustRegister(consumptionGauge)
	reg.MustRegister(connectedGauge)
	reg.MustRegister(lastUpdateGauge)
	reg.MustRegister(pollsCounter)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		reg,
		promhttp.HandlerOpts{
			// Opt into OpenMetrics to support exemplars.
			EnableOpenMetrics: true,
		},
	))

	return &http.Server{Addr: addr, Handler: mux}
}

func prometheusRecord(state *BoilerState) {
	labels := prometheus.Labels{"serial": state.serial}

	for _, g := range gaugesByKey {
		if v, ok := state.values.Float(g.key); ok {
			g.gauge.With(labels).Set(v * g.factor)
		}
	}

	if state.connected {
		connectedGauge.With(labels).Set(1)
	} else {
		connectedGauge.With(labels).Set(0)
	}
	lastUpdateGauge.With(labels).Set(float64(state.lastSeen.Unix()))
}

func prometheusRecordPoll(result string) {
	pollsCounter.WithLabelValues(result).Inc()
}
