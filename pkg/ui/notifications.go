package ui

import (
	"fmt"
	"os/exec"
	"runtime"
)

// NotificationSender delivers a desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

// CommandSender runs a platform notification command
type CommandSender struct {
	build func(title, message string) *exec.Cmd
}

func (c CommandSender) Send(title, message string) error {
	return c.build(title, message).Run()
}

func notifySend(title, message string) *exec.Cmd {
	return exec.Command("notify-send", "--app-name=igengage", title, message)
}

func osascript(title, message string) *exec.Cmd {
	script := fmt.Sprintf("display notification %q with title %q", message, title)
	return exec.Command("osascript", "-e", script)
}

// Notifier announces finished posts on the console and the desktop
type Notifier struct {
	sender  NotificationSender
	printer *Printer
}

// NewNotifier picks a sender for the current platform. Platforms without
// one only get the console line.
func NewNotifier(p *Printer, desktop bool) *Notifier {
	n := &Notifier{printer: p}
	if !desktop {
		return n
	}
	switch runtime.GOOS {
	case "linux":
		n.sender = CommandSender{build: notifySend}
	case "darwin":
		n.sender = CommandSender{build: osascript}
	}
	return n
}

// WithSender replaces the desktop sender
func (n *Notifier) WithSender(s NotificationSender) *Notifier {
	n.sender = s
	return n
}

// Success announces a completed post
func (n *Notifier) Success(title, message string) {
	n.printer.Success(title + ": " + message)
	n.send(title, message)
}

// Failure announces a post that could not be fully retrieved
func (n *Notifier) Failure(title, message string) {
	n.printer.Error(title+": "+message, nil)
	n.send(title, message)
}

func (n *Notifier) send(title, message string) {
	if n.sender == nil {
		return
	}
	// delivery failures are not worth interrupting a run
	_ = n.sender.Send(title, message)
}
