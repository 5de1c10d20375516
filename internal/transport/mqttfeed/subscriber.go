// Package mqttfeed ingests position messages published by tracking
// hardware over MQTT. Devices publish to fleet/tracker/<id>/position;
// the tracker id inside the payload is authoritative.
package mqttfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"fleettrack/internal/domain"
)

const topicPattern = "fleet/tracker/+/position"

// PositionSink is the ingestion entry the feed hands samples to.
type PositionSink interface {
	ReportPosition(ctx context.Context, sample *domain.PositionSample) error
}

type Subscriber struct {
	client mqtt.Client
	sink   PositionSink
	log    zerolog.Logger
}

func NewSubscriber(broker, clientID string, sink PositionSink, log zerolog.Logger) *Subscriber {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	return &Subscriber{
		client: mqtt.NewClient(opts),
		sink:   sink,
		log:    log,
	}
}

func (s *Subscriber) Start() error {
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}

	token := s.client.Subscribe(topicPattern, 1, s.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe: %w", err)
	}

	s.log.Info().Str("topic", topicPattern).Msg("mqtt feed subscribed")
	return nil
}

func (s *Subscriber) Stop() {
	s.client.Unsubscribe(topicPattern)
	s.client.Disconnect(250)
}

func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var sample domain.PositionSample
	if err := json.Unmarshal(msg.Payload(), &sample); err != nil {
		s.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("malformed position message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.sink.ReportPosition(ctx, &sample); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrNotFound) {
			s.log.Warn().Err(err).Str("tracker_id", sample.TrackerID).Msg("position rejected")
			return
		}
		s.log.Error().Err(err).Str("tracker_id", sample.TrackerID).Msg("position ingest failed")
	}
}
