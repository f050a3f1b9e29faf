package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// ConsoleChannel prints notifications to a terminal, colored by type.
type ConsoleChannel struct {
	mu      sync.Mutex
	out     io.Writer
	bell    bool
	enabled bool
}

// NewConsoleChannel writes to out. bell rings the terminal bell on errors.
func NewConsoleChannel(out io.Writer, bell bool) *ConsoleChannel {
	return &ConsoleChannel{out: out, bell: bell, enabled: true}
}

// Name returns the name of the notifier.
func (c *ConsoleChannel) Name() string {
	return "console"
}

// IsEnabled returns whether the notifier is enabled.
func (c *ConsoleChannel) IsEnabled() bool {
	return c.enabled
}

// Send prints n as a title line followed by the message.
func (c *ConsoleChannel) Send(_ context.Context, n Notification) error {
	var title *color.Color
	switch n.Type {
	case NotificationTrade:
		title = color.New(color.FgGreen, color.Bold)
	case NotificationError:
		title = color.New(color.FgRed, color.Bold)
	case NotificationSummary:
		title = color.New(color.FgCyan, color.Bold)
	default:
		title = color.New(color.Bold)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bell && n.Type == NotificationError {
		fmt.Fprint(c.out, "\a")
	}
	if _, err := fmt.Fprintf(c.out, "[%s] %s\n", n.Timestamp.Format("15:04:05"), title.Sprint(n.Title)); err != nil {
		return err
	}
	_, err := fmt.Fprintln(c.out, n.Message)
	return err
}
