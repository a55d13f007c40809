package notify

import (
	"os/exec"
	"runtime"
)

// DesktopNotifier surfaces run completions as native desktop notifications
// on the machine driving the simulation.
type DesktopNotifier struct {
	enabled bool
}

// NewDesktopNotifier creates a desktop notifier.
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled}
}

// Send shows the notification via the platform's notification service.
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		return d.sendMacOS(n)
	case "linux":
		return d.sendLinux(n)
	default:
		return nil // no desktop notification service
	}
}

func (d *DesktopNotifier) sendMacOS(n Notification) error {
	script := `display notification "` + n.Message + `" with title "` + n.Title + `" subtitle "worksim"`
	return exec.Command("osascript", "-e", script).Run()
}

func (d *DesktopNotifier) sendLinux(n Notification) error {
	args := []string{"-a", "worksim", "-i", IconForType(n.Type), n.Title, n.Message}
	return exec.Command("notify-send", args...).Run()
}

// IconForType maps a notification type onto a freedesktop icon name.
func IconForType(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "dialog-positive"
	case NotifyWarning:
		return "dialog-warning"
	case NotifyError:
		return "dialog-error"
	default:
		return "dialog-information"
	}
}
