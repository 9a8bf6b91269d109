package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"chat-broker/internal/mocks"
	"chat-broker/internal/telemetry"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.chat", "chat-broker", "test")

	userID := "42"
	publisher.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(event any) bool {
		envelope, ok := event.(telemetry.AuditEnvelope)
		return ok &&
			envelope.EventType == "audit_log" &&
			envelope.Service == "chat-broker" &&
			envelope.RequestID == "req-1" &&
			envelope.UserID != nil && *envelope.UserID == "42" &&
			envelope.Payload.Level == "INFO" &&
			envelope.Payload.Text == "room created: general"
	})).Return(nil).Once()

	emitter.Emit(context.Background(), "INFO", "room created: general", "req-1", &userID)
	publisher.AssertExpectations(t)
}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.chat", "chat-broker", "test")

	publisher.On("Publish", mock.Anything, "audit.chat", mock.Anything).Return(assert.AnError).Once()

	emitter.Emit(context.Background(), "ERROR", "boom", "req-2", nil)
	publisher.AssertExpectations(t)
}

func TestNilEmitterIsSafe(t *testing.T) {
	var emitter *telemetry.AuditEmitter
	emitter.Emit(context.Background(), "INFO", "ignored", "req-3", nil)
}
