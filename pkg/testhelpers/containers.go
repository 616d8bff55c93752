package testhelpers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ekaya-inc/ekaya-flux/pkg/retry"
)

const (
	// InfluxImage is the InfluxDB 2.x image used by integration tests.
	InfluxImage = "influxdb:2.7"

	InfluxOrg    = "ekaya"
	InfluxBucket = "metrics"
	// InfluxToken is the admin token the container is initialized with.
	InfluxToken = "ekaya-test-admin-token-0123456789"
)

// TestInflux holds a shared InfluxDB container seeded with sample data.
type TestInflux struct {
	Container testcontainers.Container
	URL       string
	Org       string
	Bucket    string
	Token     string
}

var (
	sharedTestInflux     *TestInflux
	sharedTestInfluxOnce sync.Once
	sharedTestInfluxErr  error
)

// GetTestInflux returns a shared InfluxDB container for integration tests.
// The container is created once and reused across all tests in the run.
// The bucket holds the points returned by SamplePoints.
func GetTestInflux(t *testing.T) *TestInflux {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestInfluxOnce.Do(func() {
		sharedTestInflux, sharedTestInfluxErr = setupTestInflux()
	})

	if sharedTestInfluxErr != nil {
		t.Fatalf("Failed to setup test InfluxDB: %v", sharedTestInfluxErr)
	}

	return sharedTestInflux
}

func setupTestInflux() (*TestInflux, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        InfluxImage,
		ExposedPorts: []string{"8086/tcp"},
		Env: map[string]string{
			"DOCKER_INFLUXDB_INIT_MODE":        "setup",
			"DOCKER_INFLUXDB_INIT_USERNAME":    "ekaya",
			"DOCKER_INFLUXDB_INIT_PASSWORD":    "test_password",
			"DOCKER_INFLUXDB_INIT_ORG":         InfluxOrg,
			"DOCKER_INFLUXDB_INIT_BUCKET":      InfluxBucket,
			"DOCKER_INFLUXDB_INIT_ADMIN_TOKEN": InfluxToken,
		},
		WaitingFor: wait.ForHTTP("/health").
			WithPort("8086/tcp").
			WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start influx container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "8086")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	ti := &TestInflux{
		Container: container,
		URL:       fmt.Sprintf("http://%s:%s", host, port.Port()),
		Org:       InfluxOrg,
		Bucket:    InfluxBucket,
		Token:     InfluxToken,
	}

	client := influxdb2.NewClient(ti.URL, ti.Token)
	defer client.Close()

	// The init script restarts influxd once setup completes; wait for the final server.
	readiness := &retry.Config{MaxRetries: 20, InitialDelay: 250 * time.Millisecond, MaxDelay: time.Second, Multiplier: 1.5}
	if err := retry.Do(ctx, readiness, func() error {
		ok, err := client.Ping(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("ping not ok")
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("influx never became ready: %w", err)
	}

	if err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		return client.WriteAPIBlocking(ti.Org, ti.Bucket).WritePoint(ctx, SamplePoints(time.Now())...)
	}); err != nil {
		return nil, fmt.Errorf("failed to seed sample points: %w", err)
	}

	return ti, nil
}

// SamplePoints returns the seed data: a "cpu" measurement tagged by host with
// usage_user and usage_system fields, and a "mem" measurement with used_percent.
func SamplePoints(now time.Time) []*write.Point {
	points := make([]*write.Point, 0, 10)
	for i := 0; i < 5; i++ {
		ts := now.Add(-time.Duration(i) * time.Minute)
		points = append(points,
			influxdb2.NewPoint("cpu",
				map[string]string{"host": fmt.Sprintf("server-%d", i%2)},
				map[string]any{"usage_user": 10.5 + float64(i), "usage_system": 2.25},
				ts),
			influxdb2.NewPoint("mem",
				map[string]string{"host": "server-0", "region": "eu-west"},
				map[string]any{"used_percent": 40.0 + float64(i)},
				ts),
		)
	}
	return points
}
