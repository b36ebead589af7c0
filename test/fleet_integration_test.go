package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ridefleet/api"
	"github.com/kilianp07/ridefleet/app"
	"github.com/kilianp07/ridefleet/config"
	"github.com/kilianp07/ridefleet/core/factory"
	"github.com/kilianp07/ridefleet/core/model"
	"github.com/kilianp07/ridefleet/test/util"
)

const jwtSecret = "integration-secret-000001"

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

type client struct {
	t    *testing.T
	base string
}

func (c client) call(p model.Principal, method, path string, body any, out any) int {
	c.t.Helper()
	tok, err := api.IssueToken([]byte(jwtSecret), p, time.Minute)
	require.NoError(c.t, err)
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// startService runs the service on a free port and returns the API base URL
// and the metrics address.
func startService(t *testing.T, cfg *config.Config) (string, string) {
	t.Helper()
	cfg.HTTP.Address = freeAddr(t)
	cfg.HTTP.JWTSecret = jwtSecret
	cfg.Metrics.PrometheusAddress = freeAddr(t)
	cfg.Audit.Backend = "memory"

	svc, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
		assert.NoError(t, svc.Close())
	})

	base := "http://" + cfg.HTTP.Address
	waitCtx, waitCancel := context.WithTimeout(context.Background(), util.HTTPTimeout)
	defer waitCancel()
	require.NoError(t, util.WaitForHTTP(waitCtx, base+"/healthz"))
	return base, cfg.Metrics.PrometheusAddress
}

func TestRideScenario_SQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Store = factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"path": filepath.Join(t.TempDir(), "fleet.db")}}
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "prometheus"}}
	cfg.Seed.Demo = true
	base, metricsAddr := startService(t, cfg)
	c := client{t: t, base: base}

	admin := model.Principal{ID: "ops", Role: model.RoleAdmin}
	drv := model.Principal{ID: "driver-1", Role: model.RoleDriver}
	pax := model.Principal{ID: "passenger-1", Role: model.RolePassenger}

	var d model.Driver
	require.Equal(t, http.StatusOK, c.call(drv, http.MethodPut, "/drivers/me/status", map[string]any{"online": true}, &d))
	assert.True(t, d.Online)

	var ride model.Ride
	require.Equal(t, http.StatusCreated, c.call(pax, http.MethodPost, "/rides", map[string]any{
		"pickup":  map[string]any{"latitude": 40.7128, "longitude": -74.006, "address": "Downtown"},
		"dropoff": map[string]any{"latitude": 40.7589, "longitude": -73.9851, "address": "Midtown"},
	}, &ride))
	require.Equal(t, http.StatusOK, c.call(admin, http.MethodPost, "/rides/"+ride.ID+"/assign", map[string]any{"driver_id": "driver-1"}, &ride))
	require.Equal(t, http.StatusConflict, c.call(admin, http.MethodPost, "/drivers/driver-1/deactivate", nil, nil))
	require.Equal(t, http.StatusOK, c.call(drv, http.MethodPost, "/rides/"+ride.ID+"/start", map[string]any{"start_km": 5000}, &ride))
	require.Equal(t, http.StatusOK, c.call(drv, http.MethodPost, "/rides/"+ride.ID+"/complete", map[string]any{"end_km": 5012}, &ride))
	assert.Equal(t, model.RideCompleted, ride.Status)
	assert.Equal(t, 12.0, ride.DistanceKm)

	require.Equal(t, http.StatusOK, c.call(drv, http.MethodPut, "/drivers/me/status", map[string]any{"online": false}, &d))
	var sessions []model.AttendanceSession
	require.Equal(t, http.StatusOK, c.call(admin, http.MethodGet, "/attendance?driver_id=driver-1&status=completed", nil, &sessions))
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].TotalHours)

	var stats map[string]any
	require.Equal(t, http.StatusOK, c.call(admin, http.MethodGet, "/dashboard/stats", nil, &stats))
	assert.EqualValues(t, 12, stats["total_distance_km"])

	ctx, cancel := context.WithTimeout(context.Background(), util.MetricTimeout)
	defer cancel()
	require.NoError(t, util.WaitForMetric(ctx, "http://"+metricsAddr+"/metrics", `fleet_operations_total{operation="ride.complete",outcome="ok"}`))
	require.NoError(t, util.WaitForMetric(ctx, "http://"+metricsAddr+"/metrics", "ridefleet_ride_distance_km_count"))
}

func TestConcurrentAssignOverHTTP(t *testing.T) {
	cfg := config.Default()
	cfg.Seed.Demo = true
	base, _ := startService(t, cfg)
	c := client{t: t, base: base}
	admin := model.Principal{ID: "ops", Role: model.RoleAdmin}
	pax := model.Principal{ID: "passenger-1", Role: model.RolePassenger}

	require.Equal(t, http.StatusOK, c.call(model.Principal{ID: "driver-2", Role: model.RoleDriver}, http.MethodPut, "/drivers/me/status", map[string]any{"online": true}, nil))
	rides := make([]model.Ride, 4)
	for i := range rides {
		require.Equal(t, http.StatusCreated, c.call(pax, http.MethodPost, "/rides", map[string]any{}, &rides[i]))
	}

	var wg sync.WaitGroup
	codes := make([]int, len(rides))
	for i := range rides {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = c.call(admin, http.MethodPost, "/rides/"+rides[i].ID+"/assign", map[string]any{"driver_id": "driver-2"}, nil)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, code := range codes {
		if code == http.StatusOK {
			ok++
		} else {
			assert.Contains(t, []int{http.StatusConflict, http.StatusServiceUnavailable}, code)
		}
	}
	assert.Equal(t, 1, ok, fmt.Sprint(codes))
}

func TestEventsOverMQTTWithRedisLocks(t *testing.T) {
	if !util.DockerAvailable() {
		t.Skip("docker not available")
	}
	ctx := context.Background()
	broker, stopBroker, err := util.StartMosquitto(ctx)
	require.NoError(t, err)
	defer stopBroker()
	redisURL, stopRedis, err := util.StartRedis(ctx)
	require.NoError(t, err)
	defer stopRedis()

	var mu sync.Mutex
	var topics []string
	sub := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("fleet-observer"))
	tok := sub.Connect()
	tok.Wait()
	require.NoError(t, tok.Error())
	defer sub.Disconnect(100)
	tok = sub.Subscribe("ridefleet/#", 1, func(_ paho.Client, m paho.Message) {
		mu.Lock()
		topics = append(topics, m.Topic())
		mu.Unlock()
	})
	tok.Wait()
	require.NoError(t, tok.Error())

	cfg := config.Default()
	cfg.Seed.Demo = true
	cfg.Locks.Type = "redis"
	cfg.Locks.Conf = map[string]any{"url": redisURL}
	cfg.Events.Publishers = []factory.ModuleConfig{{Type: "mqtt", Conf: map[string]any{"broker": broker, "client_id": "ridefleet-it", "qos": 1}}}
	base, _ := startService(t, cfg)
	c := client{t: t, base: base}

	var ride model.Ride
	require.Equal(t, http.StatusCreated, c.call(model.Principal{ID: "passenger-2", Role: model.RolePassenger}, http.MethodPost, "/rides", map[string]any{}, &ride))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, tp := range topics {
			if strings.HasPrefix(tp, "ridefleet/ride/requested/") && strings.HasSuffix(tp, ride.ID) {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)
}
