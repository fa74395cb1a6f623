package realtime

import (
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestPublishOutcome(t *testing.T) {
	const messageID = "0f5b2f0e-7c1d-4a7a-b0a4-7b3c1e9d2a55"

	tests := []struct {
		name     string
		acked    bool
		returned []amqp.Return
		wantErr  bool
		offline  bool
	}{
		{name: "routed and acked", acked: true},
		{name: "unroutable returns as offline", acked: true, returned: []amqp.Return{
			{ReplyCode: 312, ReplyText: "NO_ROUTE", MessageId: messageID},
		}, wantErr: true, offline: true},
		{name: "stale return of other message ignored", acked: true, returned: []amqp.Return{
			{ReplyCode: 312, ReplyText: "NO_ROUTE", MessageId: "other"},
		}},
		{name: "nacked", acked: false, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			returns := make(chan amqp.Return, len(tt.returned))
			for _, r := range tt.returned {
				returns <- r
			}

			err := publishOutcome(messageID, tt.acked, returns)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Equal(t, tt.offline, errors.Is(err, ErrNoConnection))
		})
	}
}

func TestPublishOutcome_ClosedChannel(t *testing.T) {
	returns := make(chan amqp.Return)
	close(returns)

	err := publishOutcome("id", true, returns)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoConnection))
}

func TestDrainReturns(t *testing.T) {
	returns := make(chan amqp.Return, 3)
	returns <- amqp.Return{MessageId: "a"}
	returns <- amqp.Return{MessageId: "b"}

	drainReturns(returns)
	assert.Empty(t, returns)

	assert.NoError(t, publishOutcome("a", true, returns))
}
