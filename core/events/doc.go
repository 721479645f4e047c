// Package events defines the events emitted on the in-process event bus.
//
// Available event types:
//   - RoleChangedEvent: a server changed dispatch role
//   - OutcomeEvent: a service request was answered
//   - FeedDropEvent: a feed message was rejected by the registry
package events

// Event is any value published on the bus.
type Event interface{}
