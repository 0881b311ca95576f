package kafka

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestNew_ConstructsClientWithoutDialing(t *testing.T) {
	b, err := New([]string{"127.0.0.1:1"}, "bgpstream-test", []string{"dump-ready"}, "bgpstream-test-client", nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if b.IsJoined() {
		t.Error("expected IsJoined() to be false before any partition assignment")
	}
}

func TestProduceBatch_NonLiveIsRejected(t *testing.T) {
	b, err := New([]string{"127.0.0.1:1"}, "bgpstream-test", []string{"dump-ready"}, "bgpstream-test-client", nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if _, err := b.ProduceBatch(context.Background(), nil, false); err == nil {
		t.Error("expected the kafka backend to reject non-live ProduceBatch calls")
	}
}
