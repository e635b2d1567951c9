package pkg

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/alchemy/rotoslog"
	"github.com/phsym/console-slog"
)

const TraceLevel = slog.Level(-8)

const logTimeFormat = "2006-01-02 15:04:05.000"

var _ slog.Handler = (*MultiLogHandler)(nil)

func ParseLevel(level string) slog.Level {
	var lv slog.LevelVar
	if level == "trace" {
		lv.Set(TraceLevel)
	} else {
		lv.UnmarshalText([]byte(level))
	}
	return lv.Level()
}

// MultiLogHandler fans every record out to all registered handlers.
// Children created by WithAttrs follow handlers added to the parent later.
type MultiLogHandler struct {
	mu           sync.RWMutex
	handlers     []slog.Handler
	attrChildren map[*MultiLogHandler][]slog.Attr
	parentLevel  *slog.Level
	level        *slog.Level
}

func NewMultiLogHandler(level slog.Level) *MultiLogHandler {
	return &MultiLogHandler{level: &level}
}

func (m *MultiLogHandler) Add(h slog.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
	for child, attrs := range m.attrChildren {
		child.Add(h.WithAttrs(attrs))
	}
}

func (m *MultiLogHandler) Remove(h slog.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := slices.Index(m.handlers, h); i != -1 {
		m.handlers = slices.Delete(m.handlers, i, i+1)
	}
}

func (m *MultiLogHandler) SetLevel(level slog.Level) {
	if m.level == nil {
		m.level = &level
	} else {
		*m.level = level
	}
}

// Enabled implements slog.Handler.
func (m *MultiLogHandler) Enabled(_ context.Context, l slog.Level) bool {
	if m.level != nil {
		return l >= *m.level
	}
	if m.parentLevel != nil {
		return l >= *m.parentLevel
	}
	return l >= slog.LevelInfo
}

// Handle implements slog.Handler.
func (m *MultiLogHandler) Handle(ctx context.Context, rec slog.Record) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, h := range m.handlers {
		if !h.Enabled(ctx, rec.Level) {
			continue
		}
		if err := h.Handle(ctx, rec.Clone()); err != nil {
			return err
		}
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (m *MultiLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := &MultiLogHandler{
		handlers:    make([]slog.Handler, len(m.handlers)),
		parentLevel: m.parentLevel,
	}
	if m.attrChildren == nil {
		m.attrChildren = make(map[*MultiLogHandler][]slog.Attr)
	}
	m.attrChildren[result] = attrs
	if m.level != nil {
		result.parentLevel = m.level
	}
	for i, h := range m.handlers {
		result.handlers[i] = h.WithAttrs(attrs)
	}
	return result
}

// WithGroup implements slog.Handler.
func (m *MultiLogHandler) WithGroup(name string) slog.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := &MultiLogHandler{
		handlers:    make([]slog.Handler, len(m.handlers)),
		parentLevel: m.parentLevel,
	}
	if m.level != nil {
		result.parentLevel = m.level
	}
	for i, h := range m.handlers {
		result.handlers[i] = h.WithGroup(name)
	}
	return result
}

// NewConsoleHandler is the human readable handler used on terminals.
func NewConsoleHandler(w io.Writer, level slog.Level, noColor bool) slog.Handler {
	return console.NewHandler(w, &console.HandlerOptions{NoColor: noColor, Level: level, TimeFormat: logTimeFormat})
}

type RotateOptions struct {
	Dir       string
	MaxSize   uint64
	MaxFiles  uint64
	Formatter string
}

// NewRotateHandler writes plain console formatted lines into size rotated files.
func NewRotateHandler(opts RotateOptions, level slog.Level) (slog.Handler, error) {
	builder := func(w io.Writer, _ *slog.HandlerOptions) slog.Handler {
		return console.NewHandler(w, &console.HandlerOptions{NoColor: true, Level: level, TimeFormat: logTimeFormat})
	}
	return rotoslog.NewHandler(
		rotoslog.LogHandlerBuilder(builder),
		rotoslog.LogDir(opts.Dir),
		rotoslog.MaxFileSize(opts.MaxSize),
		rotoslog.DateTimeLayout(opts.Formatter),
		rotoslog.MaxRotatedFiles(opts.MaxFiles),
	)
}
