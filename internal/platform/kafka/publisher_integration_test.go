//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"sebenza/internal/audit"
	"sebenza/internal/platform/config"
	id "sebenza/pkg/domain"
	"sebenza/pkg/testutil/containers"
)

func TestPublisherRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	redpanda := containers.NewRedpandaContainer(t)

	cfg := config.KafkaConfig{
		Brokers:    redpanda.Brokers,
		AuditTopic: "onboarding.audit.test",
		Partitions: 1,
	}
	publisher, err := NewPublisher(ctx, cfg, slog.Default())
	require.NoError(t, err)
	defer publisher.Close()

	entry := audit.Entry{
		ID:         id.NewEntryID(),
		EntityType: audit.EntitySession,
		EntityID:   id.NewSessionID().String(),
		Action:     audit.ActionCreated,
		Actor:      "agent-1",
		ActorRole:  "ONBOARDING_AGENT",
		ReasonCode: audit.BootstrapReasonCode,
		NewState:   "NOT_STARTED",
		Timestamp:  time.Now().UTC(),
	}
	require.NoError(t, publisher.Publish(ctx, entry))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(redpanda.Brokers...),
		kgo.ConsumeTopics(cfg.AuditTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(fetchCtx)
	require.NoError(t, fetches.Err())

	records := fetches.Records()
	require.Len(t, records, 1)
	require.Equal(t, entry.EntityID, string(records[0].Key))

	var got audit.Entry
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	require.Equal(t, entry.ID, got.ID)
	require.Equal(t, audit.ActionCreated, got.Action)
	require.Equal(t, audit.BootstrapReasonCode, got.ReasonCode)
}
