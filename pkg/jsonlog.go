package pkg

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	slogcommon "github.com/samber/slog-common"
)

var ErrorKeys = []string{"error", "err"}

var _ slog.Handler = (*JSONHandler)(nil)

// JSONHandler writes one flat JSON object per record. The CLI uses it to dump
// samples in a machine readable form.
type JSONHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	opts   slog.HandlerOptions
	attrs  []slog.Attr
	groups []string
}

func NewJSONHandler(w io.Writer, opts *slog.HandlerOptions) *JSONHandler {
	h := &JSONHandler{mu: &sync.Mutex{}, w: w}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.Level == nil {
		h.opts.Level = slog.LevelInfo
	}
	return h
}

func (h *JSONHandler) convert(record *slog.Record) map[string]any {
	attrs := slogcommon.AppendRecordAttrsToAttrs(h.attrs, h.groups, record)
	if h.opts.AddSource {
		attrs = append(attrs, slogcommon.Source("source", record))
	}
	attrs = slogcommon.ReplaceAttrs(h.opts.ReplaceAttr, []string{}, attrs...)
	attrs = slogcommon.RemoveEmptyAttrs(attrs)

	extra := slogcommon.AttrsToMap(attrs...)
	payload := map[string]any{
		"time":  record.Time.UTC(),
		"level": record.Level.String(),
		"msg":   record.Message,
	}
	for _, errorKey := range ErrorKeys {
		if v, ok := extra[errorKey]; ok {
			if err, ok := v.(error); ok {
				payload[errorKey] = slogcommon.FormatError(err)
				delete(extra, errorKey)
				break
			}
		}
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}

func (h *JSONHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *JSONHandler) Handle(_ context.Context, r slog.Record) error {
	data, err := json.Marshal(h.convert(&r))
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(append(data, '\n'))
	return err
}

func (h *JSONHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &JSONHandler{
		mu:     h.mu,
		w:      h.w,
		opts:   h.opts,
		attrs:  append(append(make([]slog.Attr, 0, len(h.attrs)+len(attrs)), h.attrs...), attrs...),
		groups: h.groups,
	}
}

func (h *JSONHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &JSONHandler{
		mu:     h.mu,
		w:      h.w,
		opts:   h.opts,
		attrs:  h.attrs,
		groups: append(append([]string(nil), h.groups...), name),
	}
}
