// Package publish republishes device state changes and availability to an
// MQTT broker, the downstream surface the home-automation host consumes.
package publish

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/mkurtov/haierbridge/internal/device"
)

// Options configure the broker connection.
type Options struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	ClientID    string
}

// Publisher mirrors engine state onto the broker topic tree:
// <prefix>/<deviceID>/state and <prefix>/<deviceID>/availability.
type Publisher struct {
	client mqtt.Client
	prefix string
	log    zerolog.Logger
}

// New connects to the broker. A retained availability message marks the
// bridge itself online.
func New(opts Options, log zerolog.Logger) (*Publisher, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(10 * time.Second).
		SetWill(opts.TopicPrefix+"/bridge/availability", "offline", 0, true)

	client := mqtt.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	p := &Publisher{
		client: client,
		prefix: opts.TopicPrefix,
		log:    log.With().Str("component", "publish").Logger(),
	}
	p.publish(p.prefix+"/bridge/availability", []byte("online"), true)
	return p, nil
}

// Watch subscribes to an engine and mirrors its updates.
func (p *Publisher) Watch(appliance device.Appliance) {
	appliance.Subscribe(func(ev device.Event) {
		switch ev.Type {
		case device.EventStatusUpdated:
			p.publishState(appliance)
		case device.EventError:
			p.log.Warn().Str("device", ev.DeviceID).Err(ev.Err).Msg("device error")
		}
	})
	p.publishState(appliance)
}

// PublishAvailability mirrors a device online/offline transition.
func (p *Publisher) PublishAvailability(deviceID string, online bool) {
	state := "offline"
	if online {
		state = "online"
	}
	p.publish(p.prefix+"/"+deviceID+"/availability", []byte(state), true)
}

func (p *Publisher) publishState(appliance device.Appliance) {
	state := appliance.State()
	payload, err := json.Marshal(map[string]any{
		"id":                  appliance.ID(),
		"name":                appliance.Name(),
		"kind":                appliance.Kind(),
		"status":              state.On,
		"current_temperature": state.CurrentTemperature,
		"target_temperature":  state.TargetTemperature,
		"mode":                state.Mode,
		"fan_mode":            state.FanMode,
		"swing_mode":          state.SwingPosition,
		"flags":               state.Flags,
		"doors":               state.Doors,
	})
	if err != nil {
		p.log.Error().Err(err).Msg("marshal state")
		return
	}
	p.publish(p.prefix+"/"+appliance.ID()+"/state", payload, true)
}

func (p *Publisher) publish(topic string, payload []byte, retained bool) {
	if token := p.client.Publish(topic, 0, retained, payload); token.Wait() && token.Error() != nil {
		p.log.Warn().Str("topic", topic).Err(token.Error()).Msg("publish failed")
	}
}

// Close marks the bridge offline and disconnects.
func (p *Publisher) Close() {
	p.publish(p.prefix+"/bridge/availability", []byte("offline"), true)
	p.client.Disconnect(250)
}
