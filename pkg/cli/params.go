package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// paramFlag collects repeated --param name=value flags. Values that look
// like integers, floats or booleans are typed; [a,b,c] binds a list.
type paramFlag struct {
	values map[string]any
}

func (p *paramFlag) String() string {
	if p == nil || len(p.values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p.values[k])
	}
	return strings.Join(parts, ",")
}

func (p *paramFlag) Set(s string) error {
	name, raw, ok := strings.Cut(s, "=")
	name = strings.TrimLeft(strings.TrimSpace(name), ":?")
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	if p.values == nil {
		p.values = map[string]any{}
	}
	p.values[name] = parseParamValue(raw)
	return nil
}

func (p *paramFlag) Type() string {
	return "name=value"
}

func parseParamValue(raw string) any {
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		inner := strings.TrimSpace(raw[1 : len(raw)-1])
		if inner == "" {
			return []any{}
		}
		items := strings.Split(inner, ",")
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = parseScalar(strings.TrimSpace(item))
		}
		return out
	}
	return parseScalar(raw)
}

func parseScalar(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil && (raw == "true" || raw == "false") {
		return b
	}
	return raw
}
