// Package publish forwards stored readings to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

var errNotConnected = errors.New("mqtt client not connected")

// Options configure the MQTT sink.
type Options struct {
	Broker   string
	Port     int
	ClientID string
	Topic    string
}

// MQTTSink publishes each reading as JSON. Publishing is best effort: a
// disconnected broker is reported and the reading is dropped.
type MQTTSink struct {
	client    mqtt.Client
	topic     string
	log       *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Payload is the wire form of one reading. Unknown fields are omitted.
type Payload struct {
	Timestamp       time.Time `json:"timestamp"`
	AQI             *int      `json:"aqi,omitempty"`
	TVOC            *float64  `json:"tvoc_ppb,omitempty"`
	ECO2            *float64  `json:"eco2_ppm,omitempty"`
	IndoorTemp      *float64  `json:"indoor_temp_f,omitempty"`
	IndoorHumidity  *float64  `json:"indoor_humidity_pct,omitempty"`
	OutdoorTemp     *float64  `json:"outdoor_temp_f,omitempty"`
	OutdoorHumidity *float64  `json:"outdoor_humidity_pct,omitempty"`
}

func NewPayload(r telemetry.SensorReading) Payload {
	return Payload{
		Timestamp:       r.Timestamp,
		AQI:             r.AQI,
		TVOC:            r.TVOC,
		ECO2:            r.ECO2,
		IndoorTemp:      r.IndoorTemp,
		IndoorHumidity:  r.IndoorHumidity,
		OutdoorTemp:     r.OutdoorTemp,
		OutdoorHumidity: r.OutdoorHumidity,
	}
}

func NewMQTTSink(opts Options) *MQTTSink {
	s := &MQTTSink{
		topic:  opts.Topic,
		log:    slog.Default().With("component", "mqtt", "broker", opts.Broker),
		stopCh: make(chan struct{}),
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port))
	co.SetClientID(opts.ClientID)
	co.SetCleanSession(true)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(5 * time.Second)
	co.SetMaxReconnectInterval(60 * time.Second)
	co.SetKeepAlive(30 * time.Second)
	co.SetPingTimeout(10 * time.Second)

	co.SetOnConnectHandler(func(_ mqtt.Client) {
		s.setConnected(true)
		s.log.Info("mqtt connected")
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		s.log.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(co)
	return s
}

// Connect waits for the initial connection. It respects ctx and Close.
func (s *MQTTSink) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return errors.New("mqtt sink closed")
	default:
	}
	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return errors.New("mqtt sink closed")
		default:
		}
	}
}

// Publish implements telemetry.Sink.
func (s *MQTTSink) Publish(ctx context.Context, r telemetry.SensorReading) error {
	if !s.IsConnected() {
		return errNotConnected
	}
	data, err := json.Marshal(NewPayload(r))
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	timeout := 5 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(dl))
	}
	token := s.client.Publish(s.topic, 1, false, data)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish timeout for topic %s", s.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish reading: %w", err)
	}
	s.log.Debug("published reading", "topic", s.topic, "timestamp", r.Timestamp)
	return nil
}

// IsConnected reports whether the broker connection is up.
func (s *MQTTSink) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Close disconnects from the broker. Safe to call more than once.
func (s *MQTTSink) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.client.Disconnect(250)
	s.setConnected(false)
	s.log.Info("mqtt disconnected")
}

func (s *MQTTSink) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
