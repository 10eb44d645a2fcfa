package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// MQTTPublisher pushes session state and metrics to an MQTT broker for
// off-box dashboards
type MQTTPublisher struct {
	client mqtt.Client
	config *MQTTConfig
	agg    *Aggregator
}

// MetricPayload represents a metric message for MQTT
type MetricPayload struct {
	Timestamp int64              `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

// generateClientID creates a random client ID for MQTT connection
func generateClientID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "hdradiod_" + hex.EncodeToString(bytes)
}

// NewMQTTPublisher connects to the broker and returns a publisher
func NewMQTTPublisher(config *MQTTConfig, agg *Aggregator) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(generateClientID())

	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Println("MQTT: Connected to broker")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT: Connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		log.Println("MQTT: Attempting to reconnect...")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Printf("MQTT: Successfully connected to broker: %s", config.Broker)

	return &MQTTPublisher{
		client: client,
		config: config,
		agg:    agg,
	}, nil
}

// Start begins the background publishing loop. It publishes immediately and
// then on every interval until the context is cancelled.
func (mp *MQTTPublisher) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Duration(mp.config.PublishInterval) * time.Second)
		defer ticker.Stop()

		log.Printf("MQTT: Publisher started with %d second interval", mp.config.PublishInterval)

		mp.publishAll()
		for {
			select {
			case <-ctx.Done():
				log.Println("MQTT: Publisher stopped")
				mp.client.Disconnect(250)
				return
			case <-ticker.C:
				mp.publishAll()
			}
		}
	}()
}

func (mp *MQTTPublisher) publishAll() {
	mp.publishState()
	mp.publishMetrics()
}

// publishState publishes the current session snapshot
func (mp *MQTTPublisher) publishState() {
	snap := mp.agg.Snapshot()

	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("MQTT ERROR: Failed to marshal state: %v", err)
		return
	}
	mp.publish(mp.config.TopicPrefix+"/state", payload)

	if snap.NowPlaying.Title != nil || snap.NowPlaying.Artist != nil {
		np, err := json.Marshal(snap.NowPlaying)
		if err == nil {
			mp.publish(mp.config.TopicPrefix+"/now_playing", np)
		}
	}
}

// publishMetrics gathers the Prometheus registry and publishes the session
// metrics as a single payload
func (mp *MQTTPublisher) publishMetrics() {
	metricFamilies, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		log.Printf("MQTT ERROR: Failed to gather Prometheus metrics: %v", err)
		return
	}

	out := make(map[string]float64)
	for _, mf := range metricFamilies {
		name := mf.GetName()
		if len(name) < 8 || name[:8] != "hdradio_" {
			continue
		}
		for _, m := range mf.GetMetric() {
			value := extractMetricValue(m)
			if value == nil {
				continue
			}
			key := name
			for _, label := range m.GetLabel() {
				key += "_" + label.GetName() + "_" + label.GetValue()
			}
			out[key] = *value
		}
	}

	payload, err := json.Marshal(MetricPayload{
		Timestamp: time.Now().Unix(),
		Metrics:   out,
	})
	if err != nil {
		log.Printf("MQTT ERROR: Failed to marshal metrics: %v", err)
		return
	}
	mp.publish(mp.config.TopicPrefix+"/metrics", payload)
}

func (mp *MQTTPublisher) publish(topic string, payload []byte) {
	token := mp.client.Publish(topic, 0, false, payload)
	token.Wait()
	if token.Error() != nil {
		log.Printf("MQTT ERROR: Failed to publish to %s: %v", topic, token.Error())
	}
}

// extractMetricValue pulls the numeric value out of a gathered metric
func extractMetricValue(m *dto.Metric) *float64 {
	if m.Gauge != nil {
		return m.Gauge.Value
	}
	if m.Counter != nil {
		return m.Counter.Value
	}
	if m.Untyped != nil {
		return m.Untyped.Value
	}
	return nil
}
