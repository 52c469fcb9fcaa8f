// ABOUTME: slog setup for the console: colorized text or JSON on stderr
// ABOUTME: Text lines lead with the emitting component and highlight error attrs

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/safespace/safespace-admin/internal/config"
)

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(newConsoleHandler(os.Stderr, level))
}

// consoleHandler writes one line per record:
//
//	15:04:05 WRN [admin-session] ending remote session failed error="timeout"
//
// stdout stays free for command output.
type consoleHandler struct {
	out       io.Writer
	mu        *sync.Mutex
	level     slog.Level
	component string
	prefix    string
	attrs     string
}

func newConsoleHandler(out io.Writer, level slog.Level) *consoleHandler {
	return &consoleHandler{out: out, mu: &sync.Mutex{}, level: level}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	if !r.Time.IsZero() {
		buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05")))
		buf.WriteByte(' ')
	}
	buf.WriteString(levelTag(r.Level))
	buf.WriteByte(' ')

	component := h.component
	var rest strings.Builder
	rest.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		if h.prefix == "" && a.Key == "component" {
			component = a.Value.String()
			return true
		}
		writeAttr(&rest, h.prefix, a)
		return true
	})

	if component != "" {
		buf.WriteString(color.BlueString("[" + component + "] "))
	}
	buf.WriteString(r.Message)
	buf.WriteString(rest.String())
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func levelTag(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return color.MagentaString("DBG")
	case l < slog.LevelWarn:
		return color.CyanString("INF")
	case l < slog.LevelError:
		return color.YellowString("WRN")
	default:
		return color.New(color.FgRed, color.Bold).Sprint("ERR")
	}
}

// writeAttr renders a as " key=value", flattening groups into dotted keys.
func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		if len(group) == 0 {
			return
		}
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range group {
			writeAttr(b, prefix, ga)
		}
		return
	}

	b.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
	value := a.Value.String()
	if strings.ContainsAny(value, " \t\n\"=") || value == "" {
		value = strconv.Quote(value)
	}
	if a.Key == "error" {
		value = color.RedString(value)
	}
	b.WriteString(value)
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := *h
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		if h.prefix == "" && a.Key == "component" {
			c.component = a.Value.String()
			continue
		}
		writeAttr(&b, h.prefix, a)
	}
	c.attrs = b.String()
	return &c
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}
