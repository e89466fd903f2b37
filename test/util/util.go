// Package util holds helpers shared by the integration tests: a disposable
// Mosquitto broker and pollers for the dispatch HTTP API.
package util

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	MosquittoImage        = "eclipse-mosquitto:2.0"
	MosquittoReadyTimeout = 10 * time.Second

	pollInterval = 50 * time.Millisecond
)

const mosquittoConf = `listener 1883
allow_anonymous true
persistence false
log_dest stdout
log_type error
log_type warning
connection_messages true
`

// RequireDocker skips t under -short or when DOCKER_AVAILABLE is not set.
func RequireDocker(t testing.TB) {
	t.Helper()
	if testing.Short() {
		t.Skip("short mode")
	}
	switch os.Getenv("DOCKER_AVAILABLE") {
	case "1", "true":
	default:
		t.Skip("docker not available")
	}
}

// GetJSON decodes the body of a GET on url into out. Non-200 answers are
// errors.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// WaitForHTTP polls url until it answers 200.
func WaitForHTTP(ctx context.Context, url string) error {
	return poll(ctx, func() bool {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, "server at "+url)
}

// WaitForMetric polls a Prometheus endpoint until its exposition contains
// substr.
func WaitForMetric(ctx context.Context, metricsURL, substr string) error {
	return poll(ctx, func() bool {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, metricsURL, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return err == nil && strings.Contains(string(body), substr)
	}, fmt.Sprintf("metric %q", substr))
}

func poll(ctx context.Context, ok func() bool, what string) error {
	for !ok() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s not ready: %w", what, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
	return nil
}

// StartMosquitto runs a throwaway broker and returns its tcp:// URL once it
// accepts MQTT connections. The cleanup func terminates the container.
func StartMosquitto(ctx context.Context) (string, func(), error) {
	dir, err := os.MkdirTemp("", "mosquitto")
	if err != nil {
		return "", nil, err
	}
	path := filepath.Join(dir, "mosquitto.conf")
	if err := os.WriteFile(path, []byte(mosquittoConf), 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return "", nil, err
	}

	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        MosquittoImage,
			ExposedPorts: []string{"1883/tcp"},
			WaitingFor:   wait.ForListeningPort("1883/tcp"),
			Files: []tc.ContainerFile{{
				HostFilePath:      path,
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0o644,
			}},
		},
		Started: true,
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", nil, err
	}
	cleanup := func() {
		_ = cont.Terminate(context.Background())
		_ = os.RemoveAll(dir)
	}

	endpoint, err := cont.PortEndpoint(ctx, "1883/tcp", "tcp")
	if err != nil {
		cleanup()
		return "", nil, err
	}

	readyCtx, cancel := context.WithTimeout(ctx, MosquittoReadyTimeout)
	defer cancel()
	probe := paho.NewClientOptions().AddBroker(endpoint).SetClientID("readiness-probe")
	err = poll(readyCtx, func() bool {
		cli := paho.NewClient(probe)
		tok := cli.Connect()
		if !tok.WaitTimeout(time.Second) || tok.Error() != nil {
			return false
		}
		cli.Disconnect(50)
		return true
	}, "mosquitto at "+endpoint)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return endpoint, cleanup, nil
}
