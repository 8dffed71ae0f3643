package invcache

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	kafkax "github.com/ordercore/go-product-orders/internal/kafka"
	"github.com/ordercore/go-product-orders/internal/orders"
)

func TestHandleOrderCreated_IgnoresForeignEvents(t *testing.T) {
	svc := &Service{ServiceName: "test", Log: zap.NewNop()}
	env := orders.Envelope{EventID: "e1", EventType: "SomethingElse", EventVersion: 1}
	err := svc.HandleOrderCreated(context.Background(), kafka.Message{Value: kafkax.MustMarshal(env)})
	require.NoError(t, err)
}

func TestHandleOrderCreated_RejectsMalformedEnvelope(t *testing.T) {
	svc := &Service{ServiceName: "test", Log: zap.NewNop()}
	err := svc.HandleOrderCreated(context.Background(), kafka.Message{Value: []byte("{not json")})
	assert.Error(t, err)
}
