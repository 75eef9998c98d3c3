//go:build integration

package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"bastion/internal/monitoring/models"
	"bastion/internal/monitoring/notify"
	"bastion/internal/platform/kafka"
	"bastion/pkg/domain"
	"bastion/pkg/testutil/containers"
)

const topic = "security.alerts.test"

type KafkaChannelIntegrationSuite struct {
	suite.Suite
	broker   string
	producer *kgo.Client
}

func TestKafkaChannelIntegrationSuite(t *testing.T) {
	suite.Run(t, new(KafkaChannelIntegrationSuite))
}

func (s *KafkaChannelIntegrationSuite) SetupSuite() {
	rp := containers.NewRedpandaContainer(s.T())
	s.broker = rp.Broker

	producer, err := kafka.NewProducer([]string{s.broker}, topic)
	s.Require().NoError(err)
	s.producer = producer

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Require().NoError(kafka.EnsureTopic(ctx, producer, topic, 1, 1))
	s.Require().NoError(kafka.EnsureTopic(ctx, producer, topic, 1, 1), "existing topics are fine")
}

func (s *KafkaChannelIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *KafkaChannelIntegrationSuite) TestDispatchedAlertIsConsumable() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d := notify.NewDispatcher(nil)
	d.Add(notify.NewKafkaChannel(s.producer, ""), 0)
	alert := &models.SecurityAlert{
		ID:       "alert-1",
		Type:     models.AnomalyRepeatedFailedLogins,
		Severity: domain.SeverityHigh,
		Title:    "Anomaly detected",
	}
	report := d.Notify(ctx, notify.ForAlert(alert, notify.KindAlert, time.Now()))
	s.Equal(notify.OutcomeDelivered, report["kafka"])

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())
	records := fetches.Records()
	s.Require().NotEmpty(records)

	rec := records[0]
	s.Equal("alert-1", string(rec.Key))
	var got notify.Notification
	s.Require().NoError(json.Unmarshal(rec.Value, &got))
	s.Equal(notify.KindAlert, got.Kind)
	s.Equal(domain.SeverityHigh, got.Severity)
	s.Equal(models.AnomalyRepeatedFailedLogins, got.Type)
}
