// internal/logger/pretty.go
package logger

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Colors for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorPurple = "\033[35m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

// PrettyEncoder creates a user-friendly console encoder
func PrettyEncoder() zapcore.Encoder {
	config := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    customLevelEncoder,
		EncodeTime:     customTimeEncoder,
		EncodeName:     zapcore.FullNameEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	return zapcore.NewConsoleEncoder(config)
}

func customLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.DebugLevel:
		enc.AppendString(fmt.Sprintf("%s[DEBUG]%s", ColorCyan, ColorReset))
	case zapcore.InfoLevel:
		enc.AppendString(fmt.Sprintf("%s[INFO]%s", ColorGreen, ColorReset))
	case zapcore.WarnLevel:
		enc.AppendString(fmt.Sprintf("%s[WARN]%s", ColorYellow, ColorReset))
	case zapcore.ErrorLevel:
		enc.AppendString(fmt.Sprintf("%s[ERROR]%s", ColorRed, ColorReset))
	case zapcore.FatalLevel:
		enc.AppendString(fmt.Sprintf("%s[FATAL]%s", ColorRed+ColorBold, ColorReset))
	default:
		enc.AppendString(fmt.Sprintf("[%s]", level.CapitalString()))
	}
}

func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05"))
}

// FormatMessage turns the engines' structured lifecycle messages into one
// readable console line. Unknown messages pass through unchanged.
func FormatMessage(msg string, fields ...zapcore.Field) string {
	mint := shortenAddress(extractField(fields, "mint"))

	switch msg {
	case "Bonding curve initialized":
		return fmt.Sprintf("%s🚀 Curve opened for %s%s", ColorBlue, mint, ColorReset)
	case "Migration threshold reached":
		return fmt.Sprintf("%s🎯 %s reached the migration threshold (%s lamports)%s",
			ColorPurple, mint, extractField(fields, "real_sol_reserves"), ColorReset)
	case "Bonding curve complete":
		return fmt.Sprintf("%s✓ %s sold out on the curve%s", ColorGreen, mint, ColorReset)
	case "Migration completed":
		return fmt.Sprintf("%s✅ %s migrated: %s lamports, %s tokens%s", ColorGreen+ColorBold,
			mint, extractField(fields, "sol_migrated"), extractField(fields, "tokens_migrated"), ColorReset)
	case "Pool created":
		return fmt.Sprintf("%s🏊 Pool %s created for %s%s", ColorCyan,
			shortenAddress(extractField(fields, "pool")), mint, ColorReset)
	case "Liquidity locked":
		return fmt.Sprintf("%s🔒 %s LP burned for %s%s", ColorGreen, extractField(fields, "lp_burned"), mint, ColorReset)
	case "Platform fees withdrawn":
		return fmt.Sprintf("%s💰 %s lamports of fees withdrawn from %s%s", ColorYellow, extractField(fields, "amount"), mint, ColorReset)
	case "Vested tokens claimed":
		return fmt.Sprintf("%s💸 %s tokens claimed by %s%s", ColorGreen, extractField(fields, "amount"),
			shortenAddress(extractField(fields, "beneficiary")), ColorReset)
	default:
		return msg
	}
}

func extractField(fields []zapcore.Field, key string) string {
	for _, field := range fields {
		if field.Key != key {
			continue
		}
		switch field.Type {
		case zapcore.StringType:
			return field.String
		case zapcore.Uint64Type, zapcore.Int64Type:
			return fmt.Sprintf("%d", uint64(field.Integer))
		default:
			return fmt.Sprintf("%v", field.Interface)
		}
	}
	return ""
}

func shortenAddress(addr string) string {
	if len(addr) > 8 {
		return addr[:4] + "..." + addr[len(addr)-4:]
	}
	return addr
}

// prettyCore rewrites known messages with FormatMessage and drops their fields.
// Unknown messages keep their fields.
type prettyCore struct {
	core   zapcore.Core
	fields []zapcore.Field
}

func (c *prettyCore) Enabled(level zapcore.Level) bool {
	return c.core.Enabled(level)
}

func (c *prettyCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &prettyCore{core: c.core, fields: merged}
}

func (c *prettyCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *prettyCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	all := append(append([]zapcore.Field{}, c.fields...), fields...)
	if pretty := FormatMessage(entry.Message, all...); pretty != entry.Message {
		entry.Message = pretty
		return c.core.Write(entry, nil)
	}
	return c.core.Write(entry, all)
}

func (c *prettyCore) Sync() error {
	return c.core.Sync()
}

// Strip removes terminal color codes.
func Strip(s string) string {
	for _, code := range []string{ColorReset, ColorRed, ColorGreen, ColorYellow, ColorBlue, ColorPurple, ColorCyan, ColorBold} {
		s = strings.ReplaceAll(s, code, "")
	}
	return s
}
