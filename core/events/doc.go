// Package events defines the domain events the fleet engine publishes on the
// event bus after each committed mutation.
//
// Event types are dotted names grouped by entity:
//   - ride.*: requested, assigned, started, completed, cancelled
//   - driver.*: registered, online, offline, deactivated
//   - passenger.registered
//   - odometer.*: opened, closed
//   - attendance.*: opened, closed
//   - leave.*: submitted, reviewed
package events
