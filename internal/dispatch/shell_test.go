package dispatch

import (
	"strings"
	"testing"
)

func TestShellRunnerDefaults(t *testing.T) {
	s := NewShellRunner(ShellConfig{Host: "10.0.0.5"})
	if s.cfg.Command != "worksim-executor exec" {
		t.Errorf("Command = %q, want default executor invocation", s.cfg.Command)
	}
	if s.cfg.Timeout == 0 {
		t.Error("Timeout default not applied")
	}
}

func TestSSHArgs(t *testing.T) {
	tests := []struct {
		name string
		cfg  ShellConfig
		want []string
	}{
		{
			name: "host only",
			cfg:  ShellConfig{Host: "10.0.0.5"},
			want: []string{"10.0.0.5", "worksim-executor exec"},
		},
		{
			name: "user and key",
			cfg:  ShellConfig{Host: "10.0.0.5", User: "worker", KeyPath: "/keys/lab"},
			want: []string{"-i", "/keys/lab", "worker@10.0.0.5"},
		},
		{
			name: "custom port",
			cfg:  ShellConfig{Host: "10.0.0.5", Port: 2222},
			want: []string{"-p", "2222"},
		},
		{
			name: "default ssh port omitted",
			cfg:  ShellConfig{Host: "10.0.0.5", Port: 22},
			want: []string{"10.0.0.5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := NewShellRunner(tt.cfg).sshArgs()
			joined := strings.Join(args, " ")
			for _, w := range tt.want {
				if !strings.Contains(joined, w) {
					t.Errorf("sshArgs() = %v, missing %q", args, w)
				}
			}
			if tt.cfg.Port == 22 && strings.Contains(joined, "-p") {
				t.Errorf("sshArgs() = %v, port 22 should not emit -p", args)
			}
		})
	}
}
