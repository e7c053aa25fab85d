// Package deps reports whether the external commands mediaferry shells out
// to are installed.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"mediaferry/internal/config"
)

// Requirement defines an external command the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the commands the configured pipeline will execute.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	reqs := []Requirement{{
		Name:        "Origin downloader",
		Command:     cfg.Origin.Command,
		Description: "Downloads new media from the origin",
	}}
	if len(cfg.Origin.AlbumCommand) > 0 {
		reqs = append(reqs, Requirement{
			Name:        "Origin album command",
			Command:     cfg.Origin.AlbumCommand[0],
			Description: "Adds staged files to the delete-pending album",
		})
	}
	if len(cfg.Origin.DeleteCommand) > 0 {
		reqs = append(reqs, Requirement{
			Name:        "Origin delete command",
			Command:     cfg.Origin.DeleteCommand[0],
			Description: "Removes files from the origin",
		})
	} else {
		reqs = append(reqs, Requirement{
			Name:        "Origin delete command",
			Description: "Removes files from the origin; delete_origin fails without it",
			Optional:    true,
		})
	}
	if cfg.Compression.Enabled {
		ffmpeg := Requirement{
			Name:        "FFmpeg",
			Command:     cfg.Compression.FFmpegBinary,
			Description: "Re-encodes videos",
		}
		if cfg.Compression.VideoBackend == config.VideoBackendDrapto {
			ffmpeg.Command = "ffmpeg"
			ffmpeg.Description = "Used by the drapto encoder"
			reqs = append(reqs, ffmpeg, Requirement{
				Name:        "FFprobe",
				Command:     "ffprobe",
				Description: "Used by the drapto encoder for media analysis",
			})
		} else {
			reqs = append(reqs, ffmpeg)
		}
	}
	return reqs
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case cmd == "":
			status.Detail = "command not configured"
		default:
			if _, err := exec.LookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
			} else {
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}
