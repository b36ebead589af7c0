package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/ridefleet/core/metrics"
	"github.com/kilianp07/ridefleet/infra/logger"
)

// InfluxSink writes fleet measurements to InfluxDB using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// InfluxConfig locates the InfluxDB bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// NewInfluxSink creates a sink for the given endpoint. A trailing
// /api/v2/write is accepted and stripped.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings InfluxDB and returns a NopSink when the
// health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordOperation writes a fleet_operation point.
func (s *InfluxSink) RecordOperation(ev coremetrics.OperationEvent) error {
	p := write.NewPointWithMeasurement("fleet_operation").
		AddTag("operation", ev.Operation).
		AddTag("outcome", ev.Outcome).
		AddField("latency_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordRideCompletion writes a ride_completed point.
func (s *InfluxSink) RecordRideCompletion(ev coremetrics.RideCompletionEvent) error {
	p := write.NewPointWithMeasurement("ride_completed").
		AddTag("driver_id", ev.DriverID).
		AddTag("ride_id", ev.RideID).
		AddField("distance_km", round3(ev.DistanceKm)).
		AddField("duration_min", ev.DurationMin).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordSession writes an attendance_session point.
func (s *InfluxSink) RecordSession(ev coremetrics.SessionEvent) error {
	p := write.NewPointWithMeasurement("attendance_session").
		AddTag("driver_id", ev.DriverID).
		AddField("hours", round3(ev.Hours)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordAvailability writes a driver_availability point.
func (s *InfluxSink) RecordAvailability(ev coremetrics.AvailabilityEvent) error {
	p := write.NewPointWithMeasurement("driver_availability").
		AddTag("driver_id", ev.DriverID).
		AddField("online", ev.Online).
		SetTime(ev.Time)
	return s.write(p)
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
