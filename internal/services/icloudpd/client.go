// Package icloudpd drives the origin photo library through command-line
// tools: icloudpd for downloads, and operator-configured commands for adding
// files to the delete-pending album and for deleting them at the origin.
package icloudpd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"mediaferry/internal/config"
	"mediaferry/internal/services"
)

var commandContext = exec.CommandContext

// ExitNotFound is the exit status a delete command uses to report that the
// item no longer exists at the origin.
const ExitNotFound = 4

// DeleteResult reports what happened to the origin copy.
type DeleteResult int

const (
	Deleted DeleteResult = iota
	NotFound
)

func (r DeleteResult) String() string {
	if r == NotFound {
		return "not_found"
	}
	return "deleted"
}

// Client runs the origin commands.
type Client struct {
	command       string
	username      string
	cookieDir     string
	directory     string
	recentDays    int
	albumCommand  []string
	deleteCommand []string
	timeout       time.Duration
}

// New builds a client from configuration.
func New(cfg *config.Config) *Client {
	return &Client{
		command:       strings.TrimSpace(cfg.Origin.Command),
		username:      strings.TrimSpace(cfg.Origin.Username),
		cookieDir:     strings.TrimSpace(cfg.Origin.CookieDir),
		directory:     cfg.Paths.DownloadDir,
		recentDays:    cfg.Origin.RecentDays,
		albumCommand:  append([]string(nil), cfg.Origin.AlbumCommand...),
		deleteCommand: append([]string(nil), cfg.Origin.DeleteCommand...),
		timeout:       time.Duration(cfg.Origin.TimeoutSeconds) * time.Second,
	}
}

// Command returns the download binary.
func (c *Client) Command() string { return c.command }

// CanStage reports whether an album command is configured.
func (c *Client) CanStage() bool { return len(c.albumCommand) > 0 }

// CanDelete reports whether a delete command is configured.
func (c *Client) CanDelete() bool { return len(c.deleteCommand) > 0 }

// DownloadArgs returns the icloudpd argument list.
func (c *Client) DownloadArgs() []string {
	args := []string{"--username", c.username, "--directory", c.directory, "--no-progress-bar"}
	if c.cookieDir != "" {
		args = append(args, "--cookie-directory", c.cookieDir)
	}
	if c.recentDays > 0 {
		args = append(args, "--recent", strconv.Itoa(c.recentDays))
	}
	return args
}

// Download runs icloudpd into the download directory.
func (c *Client) Download(ctx context.Context) error {
	if c.command == "" {
		return services.Wrap(services.ErrConfiguration, "download", "icloudpd", "origin.command is empty", nil)
	}
	if c.username == "" {
		return services.Wrap(services.ErrConfiguration, "download", "icloudpd",
			"origin.username is empty (or export ICLOUD_USERNAME)", nil)
	}
	_, err := c.run(ctx, "download", c.command, c.DownloadArgs())
	return err
}

// StageForDeletion adds path to the delete-pending album. It is a no-op when
// no album command is configured.
func (c *Client) StageForDeletion(ctx context.Context, path, album string) error {
	if !c.CanStage() {
		return nil
	}
	args := append(append([]string(nil), c.albumCommand[1:]...), path, album)
	_, err := c.run(ctx, "prepare_delete", c.albumCommand[0], args)
	return err
}

// DeleteRemote deletes filename from the origin. A not-found exit status is
// reported as NotFound without error.
func (c *Client) DeleteRemote(ctx context.Context, filename, album string) (DeleteResult, error) {
	if !c.CanDelete() {
		return Deleted, services.Wrap(services.ErrConfiguration, "delete_origin", "delete command",
			"origin.delete_command is not configured", nil)
	}
	args := append(append([]string(nil), c.deleteCommand[1:]...), filename, album)
	code, err := c.run(ctx, "delete_origin", c.deleteCommand[0], args)
	if code == ExitNotFound {
		return NotFound, nil
	}
	if err != nil {
		return Deleted, err
	}
	return Deleted, nil
}

// CheckConnection lists albums to verify the session is authenticated.
func (c *Client) CheckConnection(ctx context.Context) error {
	if c.username == "" {
		return services.Wrap(services.ErrConfiguration, "download", "icloudpd", "origin.username is empty", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	args := []string{"--username", c.username, "--list-albums"}
	if c.cookieDir != "" {
		args = append(args, "--cookie-directory", c.cookieDir)
	}
	_, err := c.run(ctx, "download", c.command, args)
	return err
}

// run executes name with args and returns the exit status.
func (c *Client) run(ctx context.Context, stage, name string, args []string) (int, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	cmd := commandContext(ctx, name, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return -1, services.Wrap(services.ErrTimeout, stage, name, fmt.Sprintf("exceeded %s", c.timeout), err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		detail := lastLine(stderr.String())
		if detail == "" {
			detail = fmt.Sprintf("exit status %d", exitErr.ExitCode())
		}
		return exitErr.ExitCode(), services.Wrap(services.ErrExternalTool, stage, name, detail, err)
	}
	return -1, services.Wrap(services.ErrExternalTool, stage, name, "start command", err)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
