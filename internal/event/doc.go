/*
Package event provides a type-safe, local pub/sub bus for side-channel
notifications emitted by individual tool implementations — file edits,
permission prompts, todo-list updates, and VCS branch changes.

It is deliberately independent of internal/runtime/dispatcher: the
dispatcher carries the session's authoritative event/delta stream to
supervisors and subscribers, while this bus lets a tool (e.g.
internal/tool/edit.go) announce something happened without threading a
dispatcher handle through every tool constructor.

# Architecture

The package is built on top of watermill's gochannel for infrastructure while maintaining
direct-call semantics to preserve type information. It provides both synchronous and
asynchronous event publishing patterns.

# Event Types

  - file.edited: File was modified
  - permission.updated: Permission request created
  - permission.replied: Permission request responded to
  - todo.updated: A session's todo list changed
  - vcs.branch_updated: The workspace's git branch changed

# Basic Usage

Publishing events:

	// Asynchronous publishing (non-blocking)
	event.Publish(event.Event{
		Type: event.FileEdited,
		Data: event.FileEditedData{
			File: path,
		},
	})

	// Synchronous publishing (blocking until all subscribers complete)
	event.PublishSync(event.Event{
		Type: event.VcsBranchUpdated,
		Data: event.VcsBranchUpdatedData{Branch: newBranch},
	})

Subscribing to specific events:

	unsubscribe := event.Subscribe(event.FileEdited, func(e event.Event) {
		data := e.Data.(event.FileEditedData)
		log.Info("file edited", "path", data.File)
	})
	defer unsubscribe()

Subscribing to all events:

	unsubscribe := event.SubscribeAll(func(e event.Event) {
		log.Debug("Event received", "type", e.Type)
	})
	defer unsubscribe()

# Subscriber Safety Guidelines

When using PublishSync, subscribers are called synchronously in the publisher's
goroutine. To avoid blocking or deadlocks, subscribers MUST:

  - Complete quickly (avoid long-running operations)
  - Use non-blocking channel sends (select with default case)
  - Never call Publish/PublishSync from within a subscriber (no re-entrant publishing)
  - Never acquire locks that the publisher might hold

Example of a safe subscriber:

	event.SubscribeAll(func(e event.Event) {
	    select {
	    case eventChan <- e:
	        // Event sent successfully
	    default:
	        // Channel full, drop event to avoid blocking
	        log.Warn("Event dropped due to full channel", "type", e.Type)
	    }
	})

# Custom Event Bus

For testing or isolation, you can create custom bus instances:

	bus := event.NewBus()
	defer bus.Close()

	unsubscribe := bus.Subscribe(event.FileEdited, handler)
	bus.PublishSync(event.Event{Type: event.FileEdited, Data: data})

# Testing

The package provides utilities for testing:

	// Reset global bus state (use in test cleanup)
	event.Reset()

# Thread Safety

The event bus is thread-safe and can be used concurrently from multiple goroutines.
Both publishing and subscribing operations are protected by internal synchronization.

# Performance Considerations

- Asynchronous publishing (Publish) creates a goroutine per subscriber per event
- Synchronous publishing (PublishSync) calls all subscribers in the current goroutine
- Use PublishSync for critical events where ordering matters
- Use Publish for fire-and-forget notifications
- Consider subscriber performance impact on PublishSync calls

# Integration with Watermill

The package uses watermill's gochannel internally, providing access to the underlying
pubsub infrastructure for advanced use cases:

	pubsub := event.PubSub()
	// Use watermill features like middleware, routing, etc.

This allows future migration to distributed message brokers if needed while maintaining
the current API.
*/
package event