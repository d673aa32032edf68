package mqttfeed

import (
	"fmt"
	"log"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	prefix string
}

// NewRealPublisher creates a publisher connected to the given broker.
// prefix is the topic prefix, e.g. "ledbrick".
func NewRealPublisher(broker, prefix string) (*RealPublisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("ledbrick-ng").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &RealPublisher{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
	}, nil
}

// PublishChannels sends the channel snapshot, QoS 0, not retained.
func (p *RealPublisher) PublishChannels(ev ChannelEvent) error {
	payload, err := FormatChannelPayload(ev)
	if err != nil {
		return fmt.Errorf("format channel payload: %w", err)
	}

	token := p.client.Publish(p.topic(topicChannels), 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishThermal sends the thermal snapshot, retained so subscribers see the
// latest state immediately.
func (p *RealPublisher) PublishThermal(ev ThermalEvent) error {
	payload, err := FormatThermalPayload(ev)
	if err != nil {
		return fmt.Errorf("format thermal payload: %w", err)
	}

	token := p.client.Publish(p.topic(topicThermal), 0, true, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish thermal timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish thermal: %w", err)
	}
	return nil
}

// SubscribeSensors subscribes to sensors/<name> under the prefix for each
// named sensor. Malformed payloads are logged and dropped.
func (p *RealPublisher) SubscribeSensors(names []string, fn func(name string, tempC float64)) error {
	for _, name := range names {
		name := name
		handler := func(_ paho.Client, m paho.Message) {
			v, err := ParseSensorPayload(m.Payload())
			if err != nil {
				log.Printf("mqtt sensor %s: %v", name, err)
				return
			}
			fn(name, v)
		}
		token := p.client.Subscribe(p.topic(topicSensorPrefix+name), 0, handler)
		if !token.WaitTimeout(5 * time.Second) {
			return fmt.Errorf("subscribe %s timeout", name)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("subscribe %s: %w", name, err)
		}
	}
	return nil
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}

func (p *RealPublisher) topic(suffix string) string {
	if p.prefix == "" {
		return suffix
	}
	return p.prefix + "/" + suffix
}
