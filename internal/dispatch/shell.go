package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/hochfrequenz/worksim/internal/domain"
	"github.com/hochfrequenz/worksim/internal/protocol"
)

// ShellConfig configures the secondary remote-shell transport. It invokes
// the executor binary in one-shot mode over ssh, one process per request.
type ShellConfig struct {
	Host    string
	User    string
	Port    int
	KeyPath string
	Command string // remote executor invocation, default "worksim-executor exec"
	Timeout time.Duration
}

// ShellRunner executes single requests over an ssh channel. It carries no
// persistent state; every Run is a fresh process.
type ShellRunner struct {
	cfg ShellConfig
}

// NewShellRunner creates the runner.
func NewShellRunner(cfg ShellConfig) *ShellRunner {
	if cfg.Command == "" {
		cfg.Command = "worksim-executor exec"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Minute
	}
	return &ShellRunner{cfg: cfg}
}

// Run executes one request remotely and parses the JSON result from stdout.
func (s *ShellRunner) Run(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
	payload, err := json.Marshal(protocol.FromRequest(req))
	if err != nil {
		return domain.ActionResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ssh", s.sshArgs()...)
	cmd.Stdin = bytes.NewReader(payload)

	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return domain.ActionResult{}, fmt.Errorf("ssh: %w: %s", err, bytes.TrimSpace(exitErr.Stderr))
		}
		return domain.ActionResult{}, fmt.Errorf("ssh: %w", err)
	}

	var res protocol.ResultMessage
	if err := json.Unmarshal(bytes.TrimSpace(out), &res); err != nil {
		return domain.ActionResult{}, fmt.Errorf("unparsable executor output: %w", err)
	}
	if res.ID != req.ID {
		return domain.ActionResult{}, fmt.Errorf("response id %s does not match request %s", res.ID, req.ID)
	}
	return res.ToResult(), nil
}

// sshArgs builds the ssh invocation. Host key checking is disabled because
// the executor runs on disposable lab VMs.
func (s *ShellRunner) sshArgs() []string {
	args := []string{}
	if s.cfg.KeyPath != "" {
		args = append(args, "-i", s.cfg.KeyPath)
	}
	if s.cfg.Port != 0 && s.cfg.Port != 22 {
		args = append(args, "-p", strconv.Itoa(s.cfg.Port))
	}
	args = append(args,
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "LogLevel=ERROR",
	)

	target := s.cfg.Host
	if s.cfg.User != "" {
		target = s.cfg.User + "@" + s.cfg.Host
	}
	args = append(args, target, s.cfg.Command)
	return args
}
