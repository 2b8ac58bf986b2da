package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brovar/digimarket-backend/pkg/config"
	"github.com/brovar/digimarket-backend/pkg/db/models"
	"github.com/brovar/digimarket-backend/pkg/enums"
	"github.com/brovar/digimarket-backend/pkg/logger"
	"github.com/brovar/digimarket-backend/pkg/outbox"
)

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	fetchErr  error
}

func (r *fakeRepo) FetchUnpublishedTx(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	if limit < len(r.events) {
		return r.events[:limit], nil
	}
	return r.events, nil
}

func (r *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	r.published = append(r.published, id)
	return nil
}

func (r *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	r.failed = append(r.failed, id)
	return nil
}

type fakePublishResult struct {
	err error
}

func (r fakePublishResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "msg-id", nil
}

type fakePublisher struct {
	messages []*gcppubsub.Message
	results  []publishResult
}

func (p *fakePublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	if len(p.results) > 0 {
		result := p.results[0]
		p.results = p.results[1:]
		return result
	}
	return fakePublishResult{}
}

func mustEnvelopePayload(t *testing.T, marker string) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{"marker":"` + marker + `"}`),
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

func newTestService(t *testing.T, repo *fakeRepo, pub *fakePublisher) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard}),
		DB:         fakeDB{},
		Repository: repo,
		Publisher:  pub,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func outboxEvent(t *testing.T, marker string) models.OutboxEvent {
	t.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, marker),
		CreatedAt:     time.Now(),
	}
}

func TestProcessBatchPublishesInOrder(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		outboxEvent(t, "one"),
		outboxEvent(t, "two"),
	}}
	pub := &fakePublisher{}
	svc := newTestService(t, repo, pub)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report processed")
	}
	if len(pub.messages) != 2 {
		t.Fatalf("expected 2 published messages, got %d", len(pub.messages))
	}
	if len(repo.published) != 2 || repo.published[0] != repo.events[0].ID {
		t.Fatalf("published rows out of order: %v", repo.published)
	}
	if got := pub.messages[0].Attributes["event_type"]; got != string(enums.EventOrderCreated) {
		t.Fatalf("unexpected event_type attribute %q", got)
	}
	if pub.messages[0].Attributes["event_id"] == "" {
		t.Fatal("expected event_id attribute from the payload envelope")
	}
}

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		outboxEvent(t, "one"),
		outboxEvent(t, "two"),
	}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	svc := newTestService(t, repo, pub)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != repo.events[0].ID {
		t.Fatalf("unexpected failed rows: %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != repo.events[1].ID {
		t.Fatalf("unexpected published rows: %v", repo.published)
	}
}

func TestProcessBatchEmptyIsIdle(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	svc := newTestService(t, repo, pub)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if processed {
		t.Fatal("empty batch must report idle")
	}
	if len(pub.messages) != 0 {
		t.Fatalf("unexpected publishes: %d", len(pub.messages))
	}
}

func TestNextBackoffCapsAtMax(t *testing.T) {
	base := 500 * time.Millisecond
	current := base
	for i := 0; i < 10; i++ {
		current = nextBackoff(current, base, maxBackoff)
	}
	if current != maxBackoff {
		t.Fatalf("expected backoff capped at %s, got %s", maxBackoff, current)
	}
}
