package out

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/ggonzalez94/chainctl/internal/model"
)

// Options control how an envelope is written.
type Options struct {
	// Mode is "json" or "plain".
	Mode         string
	SelectFields []string
	ResultsOnly  bool
}

func Render(w io.Writer, env model.Envelope, opts Options) error {
	data := env.Data
	if len(opts.SelectFields) > 0 {
		data = project(data, opts.SelectFields)
	}

	if opts.ResultsOnly {
		if opts.Mode == "plain" {
			return renderPlain(w, data)
		}
		return encodeJSON(w, data)
	}

	if opts.Mode != "plain" {
		env.Data = data
		return encodeJSON(w, env)
	}

	if env.Error != nil {
		return renderPlainError(w, env.Error)
	}
	if err := renderPlain(w, data); err != nil {
		return err
	}
	for _, warning := range env.Warnings {
		if _, err := fmt.Fprintf(w, "warning: %s\n", warning); err != nil {
			return err
		}
	}
	return nil
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderPlainError writes one "error[type/stage]: message" line plus the
// revert reason and transaction hash when present.
func renderPlainError(w io.Writer, e *model.ErrorBody) error {
	label := e.Type
	if e.Stage != "" {
		label += "/" + e.Stage
	}
	line := fmt.Sprintf("error[%s]: %s", label, e.Message)
	if e.Reason != "" {
		line += " reason=" + e.Reason
	}
	if e.TxHash != "" {
		line += " tx=" + e.TxHash
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func renderPlain(w io.Writer, data any) error {
	v := reflect.ValueOf(data)
	if !v.IsValid() {
		_, err := fmt.Fprintln(w, "null")
		return err
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			_, err := fmt.Fprintln(w, "[]")
			return err
		}
		for i := 0; i < v.Len(); i++ {
			line, err := toLine(normalizeValue(v.Index(i).Interface()))
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		return nil
	default:
		line, err := toLine(normalizeValue(data))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, line)
		return err
	}
}

func project(data any, fields []string) any {
	n := normalizeValue(data)
	switch t := n.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, projectMap(m, fields))
		}
		return out
	case map[string]any:
		return projectMap(t, fields)
	default:
		return n
	}
}

// projectMap keeps the listed fields. A dotted field such as "receipt.tx_hash"
// reaches into nested objects and is emitted under its full dotted name.
func projectMap(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := lookup(m, f); ok {
			out[f] = v
		}
	}
	return out
}

func lookup(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func normalizeValue(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}

func toLine(v any) (string, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			switch val := t[k].(type) {
			case map[string]any, []any:
				buf, err := json.Marshal(val)
				if err != nil {
					return "", err
				}
				parts = append(parts, fmt.Sprintf("%s=%s", k, buf))
			default:
				parts = append(parts, fmt.Sprintf("%s=%v", k, val))
			}
		}
		return strings.Join(parts, " "), nil
	case string:
		return t, nil
	default:
		buf, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(buf), nil
	}
}
