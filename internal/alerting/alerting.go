// Package alerting delivers detection alerts to their sinks: the
// console, a rotating log file, and optionally Discord.
package alerting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"polywatch/internal/store"
)

// Notifier receives every alert the engine emits. Implementations
// must not block the detection loop for long.
type Notifier interface {
	Notify(alert store.Alert)
	Close() error
}

// Multi fans one alert out to several notifiers.
type Multi struct {
	notifiers []Notifier
}

func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) Notify(alert store.Alert) {
	for _, n := range m.notifiers {
		n.Notify(alert)
	}
}

func (m *Multi) Close() error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LogNotifier prints a banner for each alert to stdout and appends the
// same banner to a size-rotated log file.
type LogNotifier struct {
	logger *zap.Logger
	out    io.Writer
	file   *lumberjack.Logger
}

func NewLogNotifier(logger *zap.Logger, path string, maxSizeMB, backupCount int) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &LogNotifier{logger: logger, out: os.Stdout}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			logger.Warn("failed to create alert log directory", zap.Error(err))
		} else {
			n.file = &lumberjack.Logger{
				Filename:   path,
				MaxSize:    maxSizeMB,
				MaxBackups: backupCount,
			}
		}
	}
	return n
}

func (n *LogNotifier) Notify(alert store.Alert) {
	banner := FormatAlert(alert)
	fmt.Fprint(n.out, banner)
	if n.file != nil {
		if _, err := n.file.Write([]byte(banner)); err != nil {
			n.logger.Warn("failed to write alert log", zap.Error(err))
		}
	}
}

func (n *LogNotifier) Close() error {
	if n.file == nil {
		return nil
	}
	return n.file.Close()
}

const bannerRule = "================================================================================"
const bannerSep = "--------------------------------------------------------------------------------"

// FormatAlert renders the banner written to the console and alert log.
func FormatAlert(a store.Alert) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(bannerRule + "\n")
	fmt.Fprintf(&b, "%s | ALERT | %s\n",
		a.CreatedAt.Format("2006-01-02 15:04:05"),
		strings.ToUpper(strings.ReplaceAll(a.Type, "_", " ")),
	)
	b.WriteString(bannerSep + "\n")
	fmt.Fprintf(&b, "  Wallet:      %s\n", a.WalletAddress)
	fmt.Fprintf(&b, "  Trade Size:  $%s\n", formatAmount(a.USDValue))
	fmt.Fprintf(&b, "  History:     %d previous trades\n", a.WalletTradeCount)
	fmt.Fprintf(&b, "  Market:      %s\n", orUnknown(a.Slug))
	fmt.Fprintf(&b, "  Outcome:     %s\n", orUnknown(a.Outcome))
	fmt.Fprintf(&b, "  Side:        %s\n", orUnknown(a.Side))
	fmt.Fprintf(&b, "  Tx:          %s\n", orUnknown(a.TransactionHash))
	b.WriteString(bannerRule + "\n")
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// formatAmount renders n with thousands separators and two decimals.
func formatAmount(n float64) string {
	s := fmt.Sprintf("%.2f", n)
	dot := strings.IndexByte(s, '.')
	intPart, frac := s[:dot], s[dot:]

	neg := false
	if strings.HasPrefix(intPart, "-") {
		neg = true
		intPart = intPart[1:]
	}

	var b strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}

	out := b.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}
