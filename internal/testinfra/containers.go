// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package testinfra

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const defaultStartTimeout = 60 * time.Second

// SkipIfNoDocker skips the test when the Docker daemon is not reachable.
func SkipIfNoDocker(t *testing.T) {
	t.Helper()
	if !IsDockerAvailable() {
		t.Skip("Skipping test: Docker not available")
	}
}

// IsDockerAvailable reports whether `docker info` succeeds.
func IsDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "docker", "info").Run() == nil
}

// CleanupContainer terminates c, logging instead of failing on error.
func CleanupContainer(t *testing.T, ctx context.Context, c testcontainers.Container) {
	t.Helper()
	if c == nil {
		return
	}
	if err := c.Terminate(ctx); err != nil {
		t.Logf("Warning: failed to terminate container: %v", err)
	}
}

// Option customizes a container request.
type Option func(*options)

type options struct {
	image        string
	startTimeout time.Duration
}

// WithImage overrides the default image.
func WithImage(image string) Option {
	return func(o *options) { o.image = image }
}

// WithStartTimeout bounds how long to wait for the service to be ready.
func WithStartTimeout(d time.Duration) Option {
	return func(o *options) { o.startTimeout = d }
}

// service describes one single-port container.
type service struct {
	name     string
	image    string
	port     string
	scheme   string
	readyLog string
	cmd      []string
}

// start runs svc and returns the container with its client URL.
func start(ctx context.Context, svc service, opts []Option) (testcontainers.Container, string, error) {
	o := &options{image: svc.image, startTimeout: defaultStartTimeout}
	for _, opt := range opts {
		opt(o)
	}

	port := svc.port + "/tcp"
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        o.image,
			ExposedPorts: []string{port},
			Cmd:          svc.cmd,
			WaitingFor: wait.ForAll(
				wait.ForListeningPort(nat.Port(port)),
				wait.ForLog(svc.readyLog),
			).WithStartupTimeout(o.startTimeout),
		},
		Started: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("create %s container: %w", svc.name, err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, "", fmt.Errorf("get %s host: %w", svc.name, err)
	}
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, "", fmt.Errorf("get %s port: %w", svc.name, err)
	}
	return c, fmt.Sprintf("%s://%s:%s", svc.scheme, host, mapped.Port()), nil
}
