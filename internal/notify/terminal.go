package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// TerminalNotifier prints notifications to a terminal.
type TerminalNotifier struct {
	out          io.Writer
	mu           sync.Mutex
	enabled      bool
	bellEnabled  bool
	colorEnabled bool
}

// NewTerminalNotifier creates a notifier writing to out, or stdout when nil.
func NewTerminalNotifier(out io.Writer, colorEnabled bool) *TerminalNotifier {
	if out == nil {
		out = os.Stdout
	}
	return &TerminalNotifier{
		out:          out,
		enabled:      true,
		bellEnabled:  true,
		colorEnabled: colorEnabled,
	}
}

// SetBellEnabled enables or disables the terminal bell.
func (tn *TerminalNotifier) SetBellEnabled(enabled bool) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.bellEnabled = enabled
}

// SetEnabled enables or disables the notifier.
func (tn *TerminalNotifier) SetEnabled(enabled bool) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.enabled = enabled
}

// Name returns the name of the notifier.
func (tn *TerminalNotifier) Name() string {
	return "terminal"
}

// IsEnabled returns whether the notifier is enabled.
func (tn *TerminalNotifier) IsEnabled() bool {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	return tn.enabled
}

// Send writes the formatted notification. Critical notifications ring the bell.
func (tn *TerminalNotifier) Send(ctx context.Context, n Notification) error {
	tn.mu.Lock()
	defer tn.mu.Unlock()

	if tn.bellEnabled && n.Type.Critical() {
		fmt.Fprint(tn.out, "\a")
	}
	_, err := fmt.Fprintln(tn.out, FormatNotification(n, tn.colorEnabled))
	return err
}

func typeIndicator(t NotificationType) (string, color.Attribute) {
	switch t {
	case NotificationRecommendation:
		return "RECOMMENDATION", color.FgCyan
	case NotificationFill:
		return "FILL", color.FgGreen
	case NotificationExit:
		return "EXIT", color.FgMagenta
	case NotificationCircuitBreaker:
		return "HALT", color.FgRed
	case NotificationReconciliation:
		return "MISMATCH", color.FgYellow
	case NotificationSummary:
		return "SUMMARY", color.FgBlue
	case NotificationError:
		return "ERROR", color.FgRed
	default:
		return "INFO", color.FgWhite
	}
}

// FormatNotification formats a notification for terminal display.
func FormatNotification(n Notification, colorEnabled bool) string {
	var sb strings.Builder

	indicator, attr := typeIndicator(n.Type)
	header := fmt.Sprintf("[%s] %s", n.Timestamp.Format("15:04:05"), indicator)
	if colorEnabled {
		c := color.New(attr, color.Bold)
		c.EnableColor()
		header = c.Sprint(header)
	}
	sb.WriteString(header)

	if n.Title != "" {
		sb.WriteString(" | " + n.Title)
	}
	for _, line := range strings.Split(n.Message, "\n") {
		if line == "" {
			continue
		}
		sb.WriteString("\n    " + line)
	}
	return sb.String()
}
