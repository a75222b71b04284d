// Package reconcile applies asynchronous delivery events reported by the
// email provider to enrollment state.
//
// Every known event is appended to the event store first. The event is then
// resolved through the message index to the enrollment that was active when
// the message was sent, which may since have advanced, completed or exited.
package reconcile
