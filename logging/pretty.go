package logging

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// PrettyHandler prints every record as an indented JSON object. It is meant
// for reading attempt logs in a terminal, not for throughput.
type PrettyHandler struct {
	w         io.Writer
	mu        *sync.Mutex
	level     slog.Leveler
	addSource bool

	attrs  []groupedAttr
	groups []string
}

// groupedAttr remembers which groups were open when WithAttrs was called.
type groupedAttr struct {
	groups []string
	attr   slog.Attr
}

func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	h := &PrettyHandler{w: w, mu: &sync.Mutex{}, level: slog.LevelInfo}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.addSource = opts.AddSource
	}
	return h
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	when := r.Time
	if when.IsZero() {
		when = time.Now()
	}
	out := map[string]any{
		"time":  when.UTC().Format(time.RFC3339Nano),
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	if h.addSource && r.PC != 0 {
		out["source"] = source(r.PC)
	}

	for _, ga := range h.attrs {
		put(descend(out, ga.groups), ga.attr)
	}
	dst := descend(out, h.groups)
	r.Attrs(func(a slog.Attr) bool {
		put(dst, a)
		return true
	})

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		b = []byte(`{"level":` + strconv.Quote(r.Level.String()) + `,"msg":` + strconv.Quote(r.Message) + `}`)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(append(b, '\n'))
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]groupedAttr(nil), h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, groupedAttr{groups: h.groups, attr: a})
	}
	return &clone
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func descend(root map[string]any, groups []string) map[string]any {
	dst := root
	for _, g := range groups {
		child, ok := dst[g].(map[string]any)
		if !ok {
			child = map[string]any{}
			dst[g] = child
		}
		dst = child
	}
	return dst
}

func put(dst map[string]any, a slog.Attr) {
	v := a.Value.Resolve()
	if a.Key == "" && v.Kind() != slog.KindGroup {
		return
	}
	switch v.Kind() {
	case slog.KindGroup:
		target := dst
		if a.Key != "" {
			child := map[string]any{}
			dst[a.Key] = child
			target = child
		}
		for _, ga := range v.Group() {
			put(target, ga)
		}
	case slog.KindDuration:
		dst[a.Key] = v.Duration().String()
	case slog.KindTime:
		dst[a.Key] = v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			dst[a.Key] = err.Error()
			return
		}
		if s, ok := v.Any().(interface{ String() string }); ok {
			dst[a.Key] = s.String()
			return
		}
		dst[a.Key] = v.Any()
	default:
		dst[a.Key] = v.Any()
	}
}

func source(pc uintptr) string {
	f, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if f.File == "" {
		return ""
	}
	file := f.File
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		file = file[i+1:]
	}
	return file + ":" + strconv.Itoa(f.Line)
}
