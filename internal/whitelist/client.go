// Package whitelist synchronizes membership decisions into the game
// server's allow-list over the RCON command protocol. Calls are
// idempotent ("already whitelisted" counts as success) and retried with
// bounded backoff; callers treat a failure as "sync failed" and never
// roll back the membership decision that triggered it.
package whitelist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorcon/rcon"

	"github.com/frekv/gatekeeper/internal/config"
	"github.com/frekv/gatekeeper/pkg/logger"
)

// Synchronizer is the allow-list capability the decision engines consume.
type Synchronizer interface {
	AddMember(ctx context.Context, name string, id uuid.UUID) (bool, error)
	RemoveMember(ctx context.Context, name string) (bool, error)
	ListMembers(ctx context.Context) ([]string, error)
}

// Client talks to the game server over RCON. Connections are dialed per
// call; the server closes idle RCON sessions aggressively.
type Client struct {
	address     string
	password    string
	dialTimeout time.Duration
	maxRetries  uint64
	enabled     bool
	log         *logger.Logger
}

// NewClient creates a new whitelist client.
func NewClient(cfg *config.RCONConfig, log *logger.Logger) *Client {
	return &Client{
		address:     cfg.Address,
		password:    cfg.Password,
		dialTimeout: time.Duration(cfg.DialTimeout) * time.Second,
		maxRetries:  uint64(cfg.MaxRetries),
		enabled:     cfg.Enabled,
		log:         log,
	}
}

// AddMember adds a player to the allow-list.
func (c *Client) AddMember(ctx context.Context, name string, id uuid.UUID) (bool, error) {
	if !c.enabled {
		c.log.Debug().Str("name", name).Msg("RCON is disabled, skipping whitelist add")
		return true, nil
	}

	response, err := c.execute(ctx, fmt.Sprintf("whitelist add %s", name))
	if err != nil {
		return false, fmt.Errorf("whitelist add for %s failed: %w", name, err)
	}

	lower := strings.ToLower(response)
	ok := strings.Contains(lower, "added") || strings.Contains(lower, "already whitelisted")
	c.log.Info().
		Str("name", name).
		Str("uuid", id.String()).
		Str("response", response).
		Bool("ok", ok).
		Msg("Whitelist add executed")
	return ok, nil
}

// RemoveMember removes a player from the allow-list.
func (c *Client) RemoveMember(ctx context.Context, name string) (bool, error) {
	if !c.enabled {
		c.log.Debug().Str("name", name).Msg("RCON is disabled, skipping whitelist remove")
		return true, nil
	}

	response, err := c.execute(ctx, fmt.Sprintf("whitelist remove %s", name))
	if err != nil {
		return false, fmt.Errorf("whitelist remove for %s failed: %w", name, err)
	}

	lower := strings.ToLower(response)
	ok := strings.Contains(lower, "removed") || strings.Contains(lower, "not whitelisted")
	c.log.Info().
		Str("name", name).
		Str("response", response).
		Bool("ok", ok).
		Msg("Whitelist remove executed")
	return ok, nil
}

// ListMembers returns the names currently on the allow-list.
func (c *Client) ListMembers(ctx context.Context) ([]string, error) {
	if !c.enabled {
		return nil, nil
	}

	response, err := c.execute(ctx, "whitelist list")
	if err != nil {
		return nil, fmt.Errorf("whitelist list failed: %w", err)
	}
	return parseWhitelistList(response), nil
}

// execute dials, authenticates, runs one command and closes, retrying
// transport failures with bounded exponential backoff.
func (c *Client) execute(ctx context.Context, command string) (string, error) {
	var response string

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(250*time.Millisecond),
		backoff.WithMaxInterval(3*time.Second),
	), c.maxRetries)

	err := backoff.Retry(func() error {
		conn, err := rcon.Dial(c.address, c.password, rcon.SetDialTimeout(c.dialTimeout))
		if err != nil {
			return err
		}
		defer conn.Close()

		response, err = conn.Execute(command)
		return err
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return "", err
	}
	return response, nil
}

// parseWhitelistList extracts player names from a response of the form
// "There are 3 whitelisted players: alice, bob, carol".
func parseWhitelistList(response string) []string {
	_, list, found := strings.Cut(response, ":")
	if !found {
		return nil
	}
	parts := strings.Split(list, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			names = append(names, name)
		}
	}
	return names
}
