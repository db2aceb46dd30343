package main

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"swanid/internal/api"
	"swanid/internal/config"
)

const (
	serverStartTimeout = 3 * time.Second
	serverPollInterval = 100 * time.Millisecond
	serverPingTimeout  = 500 * time.Millisecond
)

// withClient runs fn against the configured API, starting a local server for
// the duration of the call when nothing answers at cfg.APIURL.
func withClient(ctx context.Context, cfg *config.Config, fn func(*api.Client) error) error {
	cleanup, err := ensureServer(ctx, cfg)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	return fn(api.NewClient(cfg.APIURL))
}

func ensureServer(ctx context.Context, cfg *config.Config) (func(), error) {
	client := api.NewClient(cfg.APIURL)
	pingCtx, cancel := context.WithTimeout(ctx, serverPingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx); err == nil {
		return nil, nil
	}

	cmd, err := startServerProcess(cfg)
	if err != nil {
		return nil, err
	}
	stop := func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}

	if err := waitForServer(ctx, client, serverStartTimeout); err != nil {
		stop()
		return nil, err
	}
	return stop, nil
}

func startServerProcess(cfg *config.Config) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(exe, "srv")
	cmd.Env = append(os.Environ(), serverEnv(cfg)...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// serverEnv pins the child server to the same storage and endpoints as the CLI.
func serverEnv(cfg *config.Config) []string {
	env := []string{
		"SWANID_API_URL=" + cfg.APIURL,
		"SWANID_DATA_DIR=" + cfg.DataDir,
		"SWANID_DB=" + cfg.DBPath,
		"SWANID_SCRATCH_DIR=" + cfg.ScratchDir,
	}
	if cfg.Inference.URL != "" {
		env = append(env, "SWANID_INFERENCE_URL="+cfg.Inference.URL)
	}
	return env
}

func waitForServer(ctx context.Context, client *api.Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pingCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		err := client.Ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !isConnRefused(err) {
			// Port is taken by something that is not a swanid server.
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(serverPollInterval):
		}
	}
	return errors.New("server did not start in time")
}

func isConnRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr *net.OpError
	return errors.As(err, &netErr)
}
