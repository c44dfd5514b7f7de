// Package docker wraps the subset of the Docker engine API the install/run
// driver needs: locating the daemon's private repositories index and
// confirming the daemon is reachable before the registrar edits state it
// owns.
package docker

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/docker/docker/client"
	"github.com/rs/zerolog/log"
)

// Client wraps a docker engine API client bound to one host.
type Client struct {
	api *client.Client
}

// New dials host, a DOCKER_HOST-style URL such as unix:///var/run/docker.sock.
func New(host string) (*Client, error) {
	api, err := client.NewClientWithOpts(
		client.WithAPIVersionNegotiation(),
		client.WithHost(host),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing docker client: %w", err)
	}
	return &Client{api: api}, nil
}

// RepositoriesIndexPath returns the path of the daemon's private image
// repositories index, derived from Info().DockerRootDir.
func (c *Client) RepositoriesIndexPath(ctx context.Context) (string, error) {
	info, err := c.api.Info(ctx)
	if err != nil {
		return "", fmt.Errorf("querying docker info: %w", err)
	}
	path := repositoriesIndexPathFor(info.DockerRootDir)
	log.Debug().Str("path", path).Msg("resolved repositories index path")
	return path, nil
}

// repositoriesIndexPathFor derives the overlay2 repositories index path from
// a daemon root directory, split out from RepositoriesIndexPath so it's
// testable without a running daemon.
func repositoriesIndexPathFor(dockerRoot string) string {
	return filepath.Join(dockerRoot, "image", "overlay2", "repositories.json")
}

// Ping confirms the daemon is reachable. The install/run driver does not
// call it; it only resolves the repositories index path.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.Ping(ctx); err != nil {
		return fmt.Errorf("pinging docker daemon: %w", err)
	}
	return nil
}

// Close releases the underlying client's idle connections.
func (c *Client) Close() error {
	return c.api.Close()
}
