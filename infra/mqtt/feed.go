package mqtt

import (
	"sync/atomic"

	"github.com/kilianp07/taxidispatch/core/feed"
	"github.com/kilianp07/taxidispatch/core/logger"
	"github.com/kilianp07/taxidispatch/core/model"
)

const defaultFeedBuffer = 256

// FeedSubscriber delivers parsed feed lines from the bus to a channel.
// Malformed lines are logged and dropped here; a full channel drops the
// newest message.
type FeedSubscriber struct {
	cli     *Client
	out     chan feed.Message
	log     logger.Logger
	dropped atomic.Uint64
	onDrop  func(topic string, err error)
}

// NewFeedSubscriber returns a subscriber with the given channel capacity.
func NewFeedSubscriber(cli *Client, buffer int, log logger.Logger) *FeedSubscriber {
	if buffer <= 0 {
		buffer = defaultFeedBuffer
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &FeedSubscriber{cli: cli, out: make(chan feed.Message, buffer), log: log}
}

// OnDrop installs a callback invoked for every dropped line.
func (s *FeedSubscriber) OnDrop(fn func(topic string, err error)) { s.onDrop = fn }

// Start subscribes to the position and status topics.
func (s *FeedSubscriber) Start() error {
	for _, t := range []string{feed.TopicPosition, feed.TopicStatus} {
		if err := s.cli.Subscribe(s.cli.Config().FeedTopic(t), s.handle); err != nil {
			return err
		}
	}
	return nil
}

// Messages returns the channel of parsed feed messages.
func (s *FeedSubscriber) Messages() <-chan feed.Message { return s.out }

// Dropped returns the number of lines dropped so far.
func (s *FeedSubscriber) Dropped() uint64 { return s.dropped.Load() }

func (s *FeedSubscriber) handle(topic string, payload []byte) {
	msg, err := feed.ParseLine(string(payload))
	if err != nil {
		s.drop(topic, err)
		s.log.Warnf("dropping feed line on %s: %v", topic, err)
		return
	}
	select {
	case s.out <- msg:
	default:
		s.drop(topic, errBufferFull)
		s.log.Warnf("feed buffer full, dropping %s update of agent %d", msg.Topic, msg.AgentID)
	}
}

func (s *FeedSubscriber) drop(topic string, err error) {
	s.dropped.Add(1)
	if s.onDrop != nil {
		s.onDrop(topic, err)
	}
}

// FeedPublisher publishes an agent's position and status lines.
type FeedPublisher struct {
	cli *Client
}

// NewFeedPublisher returns a publisher on cli.
func NewFeedPublisher(cli *Client) *FeedPublisher { return &FeedPublisher{cli: cli} }

// PublishPosition publishes the position line of rec.
func (p *FeedPublisher) PublishPosition(rec model.AgentRecord) error {
	m, err := feed.NewPosition(rec)
	if err != nil {
		return err
	}
	return p.publish(m)
}

// PublishStatus publishes a status line.
func (p *FeedPublisher) PublishStatus(agentID int, st model.Status) error {
	m, err := feed.NewStatus(agentID, st)
	if err != nil {
		return err
	}
	return p.publish(m)
}

func (p *FeedPublisher) publish(m feed.Message) error {
	return p.cli.Publish(p.cli.Config().FeedTopic(m.Topic), []byte(feed.FormatLine(m)))
}
