package action

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/oshokin/tone-alert/internal/protocol"
)

// ErrNoCommand is returned when no command is configured.
var ErrNoCommand = errors.New("no command configured")

// Environment variables carrying the report to the command.
const (
	EnvFrequencyA = "TONE_FREQUENCY_A"
	EnvFrequencyB = "TONE_FREQUENCY_B"
)

// Run executes command with the report in its environment and waits for it.
// The command is killed when ctx is cancelled.
func Run(ctx context.Context, command []string, report protocol.ToneReport) error {
	if len(command) == 0 || command[0] == "" {
		return ErrNoCommand
	}

	//nolint:gosec // The command comes from the operator's own settings file.
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Env = append(os.Environ(),
		EnvFrequencyA+"="+strconv.FormatFloat(report.FrequencyA, 'f', -1, 64),
		EnvFrequencyB+"="+strconv.FormatFloat(report.FrequencyB, 'f', -1, 64),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w", command[0], err)
	}

	return nil
}
