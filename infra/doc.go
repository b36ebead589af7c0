// Package infra groups the adapters that plug ridefleet into real systems:
// record stores (sqlite, postgres), distributed locks (redis), event
// publishers (mqtt, kafka, amqp), metrics sinks (prometheus, influx), the
// append-only audit log and Sentry. Engine code in core/ only sees the
// interfaces these packages implement.
package infra
