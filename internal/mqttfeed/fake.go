package mqttfeed

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	// ChannelEvents contains all channel snapshots that were published.
	ChannelEvents []ChannelEvent

	// ThermalEvents contains all thermal snapshots that were published.
	ThermalEvents []ThermalEvent

	// Subscribed holds the sensor names passed to SubscribeSensors.
	Subscribed []string

	// SensorFn is the callback given to SubscribeSensors; tests call it to
	// inject remote samples.
	SensorFn func(name string, tempC float64)

	// PublishError, if set, is returned by both publish methods.
	PublishError error

	// SubscribeError, if set, is returned by SubscribeSensors.
	SubscribeError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishChannels records the channel snapshot.
func (f *FakePublisher) PublishChannels(ev ChannelEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.ChannelEvents = append(f.ChannelEvents, ev)
	return nil
}

// PublishThermal records the thermal snapshot.
func (f *FakePublisher) PublishThermal(ev ThermalEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.ThermalEvents = append(f.ThermalEvents, ev)
	return nil
}

// SubscribeSensors records the subscription and captures the callback.
func (f *FakePublisher) SubscribeSensors(names []string, fn func(name string, tempC float64)) error {
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.Subscribed = append(f.Subscribed, names...)
	f.SensorFn = fn
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}
