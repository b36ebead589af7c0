// Package util holds helpers shared by the integration tests: Docker gating,
// readiness polling and disposable Mosquitto, Redis and Postgres containers.
package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/docker/go-connections/nat"
	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	HTTPTimeout           = 5 * time.Second
	MosquittoReadyTimeout = 5 * time.Second
	MetricTimeout         = 5 * time.Second

	pollInterval = 50 * time.Millisecond
)

// DockerAvailable is true when DOCKER_AVAILABLE is "true" or "1".
func DockerAvailable() bool {
	v := os.Getenv("DOCKER_AVAILABLE")
	return v == "true" || v == "1"
}

// poll calls try until it reports done, returns an error, or ctx ends.
func poll(ctx context.Context, what string, try func() (bool, error)) error {
	for {
		done, err := try()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", what, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

func get(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

// WaitForHTTP polls url until it answers 200.
func WaitForHTTP(ctx context.Context, url string) error {
	return poll(ctx, "server not ready", func() (bool, error) {
		code, _, err := get(ctx, url)
		return err == nil && code == http.StatusOK, nil
	})
}

// WaitForMetric polls a Prometheus endpoint until its exposition contains
// substr.
func WaitForMetric(ctx context.Context, metricsURL, substr string) error {
	return poll(ctx, fmt.Sprintf("metric %q not found", substr), func() (bool, error) {
		_, body, err := get(ctx, metricsURL)
		return err == nil && strings.Contains(string(body), substr), nil
	})
}

// startContainer runs req and returns host:port of its first exposed port.
func startContainer(ctx context.Context, req tc.ContainerRequest) (string, func(), error) {
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		return "", nil, fmt.Errorf("start %s: %w", req.Image, err)
	}
	cleanup := func() { _ = cont.Terminate(context.Background()) }
	host, err := cont.Host(ctx)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	port, err := cont.MappedPort(ctx, nat.Port(req.ExposedPorts[0]))
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return fmt.Sprintf("%s:%s", host, port.Port()), cleanup, nil
}

const mosquittoConf = `listener 1883
allow_anonymous true
persistence false
log_dest stdout
log_type error
log_type warning
connection_messages true
`

// StartMosquitto launches an anonymous Mosquitto broker and returns its
// tcp:// URL once it accepts MQTT connections.
func StartMosquitto(ctx context.Context) (string, func(), error) {
	addr, cleanup, err := startContainer(ctx, tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			Reader:            strings.NewReader(mosquittoConf),
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0o644,
		}},
	})
	if err != nil {
		return "", nil, err
	}
	broker := "tcp://" + addr

	waitCtx, cancel := context.WithTimeout(ctx, MosquittoReadyTimeout)
	defer cancel()
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("ridefleet-readiness")
	err = poll(waitCtx, "mqtt broker not ready", func() (bool, error) {
		cli := paho.NewClient(opts)
		token := cli.Connect()
		token.Wait()
		if token.Error() != nil {
			return false, nil
		}
		cli.Disconnect(100)
		return true, nil
	})
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return broker, cleanup, nil
}

// StartRedis launches Redis and returns a redis:// URL for database 0.
func StartRedis(ctx context.Context) (string, func(), error) {
	addr, cleanup, err := startContainer(ctx, tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	})
	if err != nil {
		return "", nil, err
	}
	return "redis://" + addr + "/0", cleanup, nil
}

// StartPostgres launches Postgres and returns a DSN for the "fleet" database.
func StartPostgres(ctx context.Context) (string, func(), error) {
	addr, cleanup, err := startContainer(ctx, tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "fleet",
			"POSTGRES_PASSWORD": "fleet",
			"POSTGRES_DB":       "fleet",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(time.Minute),
	})
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("postgres://fleet:fleet@%s/fleet?sslmode=disable", addr), cleanup, nil
}
