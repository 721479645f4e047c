package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/taxidispatch/core/feed"
	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/core/persistence"
)

func TestFeedRoundTrip(t *testing.T) {
	cli, mc := newMockedClient(t, Config{ClientID: "srv"})
	sub := NewFeedSubscriber(cli, 4, nil)
	require.NoError(t, sub.Start())

	pub := NewFeedPublisher(cli)
	rec := model.AgentRecord{ID: 3, X: 1, Y: 2, Address: model.Address{Host: "127.0.0.1", Port: 6003}, Status: model.StatusAvailable, MaxServices: 4}
	require.NoError(t, pub.PublishPosition(rec))
	require.NoError(t, pub.PublishStatus(3, model.StatusBusy))

	assert.Equal(t, "taxi/feed/position", mc.published[0].topic)
	assert.Equal(t, "taxi/feed/status", mc.published[1].topic)

	m := <-sub.Messages()
	assert.Equal(t, feed.TopicPosition, m.Topic)
	assert.Equal(t, 3, m.AgentID)
	m = <-sub.Messages()
	assert.Equal(t, feed.TopicStatus, m.Topic)
	assert.JSONEq(t, `{"status":"busy"}`, string(m.Payload))
}

func TestFeedSubscriber_DropsMalformedAndOverflow(t *testing.T) {
	cli, mc := newMockedClient(t, Config{ClientID: "srv"})
	sub := NewFeedSubscriber(cli, 1, nil)
	var drops []string
	sub.OnDrop(func(topic string, _ error) { drops = append(drops, topic) })
	require.NoError(t, sub.Start())

	mc.deliver("taxi/feed/position", []byte("position one {}"))
	mc.deliver("taxi/feed/status", []byte(`status 1 {"status":"busy"}`))
	mc.deliver("taxi/feed/status", []byte(`status 2 {"status":"busy"}`))

	assert.Equal(t, uint64(2), sub.Dropped())
	assert.Equal(t, []string{"taxi/feed/position", "taxi/feed/status"}, drops)
	m := <-sub.Messages()
	assert.Equal(t, 1, m.AgentID)
}

func TestStateSync_IgnoresOwnMessages(t *testing.T) {
	cli, mc := newMockedClient(t, Config{ClientID: "primary"})
	ss := NewStateSync(cli, nil)
	require.NoError(t, ss.Start())

	snap := persistence.Snapshot{Agents: []model.AgentRecord{{ID: 1}}, RequestsGranted: 2, RequestsDenied: 1}
	require.NoError(t, ss.Publish(snap))
	assert.Equal(t, 1, mc.publishedCount())
	assert.Len(t, ss.Messages(), 0)

	mc.deliver("taxi/state", []byte(`{"origin":"other","snapshot":{"agents":[{"id":9}],"requests_granted":5,"requests_denied":0}}`))
	mc.deliver("taxi/state", []byte(`not json`))
	require.Len(t, ss.Messages(), 1)
	m := <-ss.Messages()
	assert.Equal(t, "other", m.Origin)
	assert.Equal(t, 5, m.Snapshot.RequestsGranted)
	assert.Equal(t, 9, m.Snapshot.Agents[0].ID)
}
