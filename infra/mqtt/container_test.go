//go:build !no_containers

package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/taxidispatch/core/feed"
	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/internal/testutil"
)

func TestFeedOverMosquitto(t *testing.T) {
	if testing.Short() {
		t.Skip("container test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	broker, cleanup, err := testutil.StartMosquitto(ctx)
	if err != nil {
		t.Skipf("mosquitto unavailable: %v", err)
	}
	defer cleanup()

	srv, err := NewClient(Config{Broker: broker, ClientID: "server", QoS: 1}, nil)
	require.NoError(t, err)
	defer srv.Disconnect()
	sub := NewFeedSubscriber(srv, 8, nil)
	require.NoError(t, sub.Start())

	agent, err := NewClient(Config{Broker: broker, ClientID: "agent-7", QoS: 1}, nil)
	require.NoError(t, err)
	defer agent.Disconnect()
	pub := NewFeedPublisher(agent)
	rec := model.AgentRecord{ID: 7, X: 4, Y: 4, Address: model.Address{Host: "127.0.0.1", Port: 6007}, Status: model.StatusAvailable}
	require.NoError(t, pub.PublishPosition(rec))

	select {
	case m := <-sub.Messages():
		assert.Equal(t, feed.TopicPosition, m.Topic)
		assert.Equal(t, 7, m.AgentID)
	case <-time.After(5 * time.Second):
		t.Fatal("no feed message received")
	}
}
