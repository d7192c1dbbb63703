package hood

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exposes the last known device state and the client's
// health counters. It reads the in-memory store only; the poller owns all
// device I/O.
type MetricsCollector struct {
	client *Client

	motorValue  prometheus.Gauge
	fanPercent  prometheus.Gauge
	fanOn       prometheus.Gauge
	lightValue  prometheus.Gauge
	lightOn     prometheus.Gauge
	red         prometheus.Gauge
	green       prometheus.Gauge
	blue        prometheus.Gauge
	coldWhite   prometheus.Gauge
	brightness  prometheus.Gauge
	temperature prometheus.Gauge
	timerTM     prometheus.Gauge
	timerTS     prometheus.Gauge
	lightMode   prometheus.Gauge

	commandsTotal   *prometheus.Desc
	commandFailures *prometheus.Desc
	lastSuccess     prometheus.Gauge
	consecFails     prometheus.Gauge
}

func NewMetricsCollector(client *Client) *MetricsCollector {
	return &MetricsCollector{
		client: client,
		motorValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hoodd_motor_value",
			Help: "Raw motor field (M) from the device",
		}),
		fanPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hoodd_fan_percent",
			Help: "Fan speed as a percentage per the active profile",
		}),
		fanOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hoodd_fan_on",
			Help: "Whether the fan is running (1=on, 0=off)",
		}),
		lightValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hoodd_light_value",
			Help: "Raw light field (L) from the device",
		}),
		lightOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hoodd_light_on",
			Help: "Whether the light is on per the active profile (1=on, 0=off)",
		}),
		red: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hoodd_light_red",
			Help: "Red channel (0-255)",
		}),
		green: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hoodd_light_green",
			Help: "Green channel (0-255)",
		}),
		blue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hoodd_light_blue",
			Help: "Blue channel (0-255)",
		}),
		coldWhite: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hoodd_light_cold_white",
			Help: "Cold white channel (0-255)",
		}),
		brightness: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hoodd_light_brightness",
			Help: "Brightness (BRG, 0-255)",
		}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hoodd_temperature_celsius",
			Help: "Temperature field (T) as reported by the device",
		}),
		timerTM: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hoodd_timer_tm",
			Help: "Timer field TM",
		}),
		timerTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hoodd_timer_ts",
			Help: "Timer field TS",
		}),
		lightMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hoodd_light_mode",
			Help: "Light mode field (LM)",
		}),
		commandsTotal: prometheus.NewDesc(
			"hoodd_commands_total",
			"Dispatched commands, including status queries",
			nil, nil,
		),
		commandFailures: prometheus.NewDesc(
			"hoodd_command_failures_total",
			"Commands that failed at the network level",
			nil, nil,
		),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hoodd_last_success_timestamp_seconds",
			Help: "Last successful exchange timestamp (epoch seconds)",
		}),
		consecFails: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hoodd_consecutive_failures",
			Help: "Consecutive failed exchanges since the last success",
		}),
	}
}

func (c *MetricsCollector) gauges() []prometheus.Gauge {
	return []prometheus.Gauge{
		c.motorValue, c.fanPercent, c.fanOn,
		c.lightValue, c.lightOn,
		c.red, c.green, c.blue, c.coldWhite, c.brightness,
		c.temperature, c.timerTM, c.timerTS, c.lightMode,
		c.lastSuccess, c.consecFails,
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range c.gauges() {
		g.Describe(ch)
	}
	ch <- c.commandsTotal
	ch <- c.commandFailures
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	state := c.client.Snapshot()
	profile := c.client.Profile()

	if motor, ok := state.Int(FieldMotor); ok {
		c.motorValue.Set(float64(motor))
		percent := profile.PercentForMotorValue(motor)
		c.fanPercent.Set(float64(percent))
		c.fanOn.Set(boolValue(percent > 0))
	}
	if light, ok := state.Int(FieldLight); ok {
		c.lightValue.Set(float64(light))
		c.lightOn.Set(boolValue(light == profile.LightOn))
	}
	setField(c.red, state, FieldRed)
	setField(c.green, state, FieldGreen)
	setField(c.blue, state, FieldBlue)
	setField(c.coldWhite, state, FieldColdWhite)
	setField(c.brightness, state, FieldBrightness)
	setField(c.temperature, state, FieldTemp)
	setField(c.timerTM, state, FieldTimerTM)
	setField(c.timerTS, state, FieldTimerTS)
	setField(c.lightMode, state, FieldLightMode)

	health := c.client.Health()
	if !health.LastSuccess.IsZero() {
		c.lastSuccess.Set(float64(health.LastSuccess.Unix()))
	}
	c.consecFails.Set(float64(health.ConsecutiveFailures))

	for _, g := range c.gauges() {
		g.Collect(ch)
	}
	// The health counters are monotonic, so they surface as counters, not
	// gauges snapshotted into the collector.
	ch <- prometheus.MustNewConstMetric(c.commandsTotal, prometheus.CounterValue, float64(health.CommandsTotal))
	ch <- prometheus.MustNewConstMetric(c.commandFailures, prometheus.CounterValue, float64(health.CommandFailures))
}

func setField(g prometheus.Gauge, state State, field string) {
	if v, ok := state.Int(field); ok {
		g.Set(float64(v))
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
