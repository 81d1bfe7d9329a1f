package crew

import (
	"regexp"
	"sort"
	"strings"

	"github.com/BaSui01/crewflow/types"
)

// TimestampKey is the built-in placeholder for the run start time.
const TimestampKey = "timestamp"

// TimestampLayout formats {timestamp}; it is safe in file names.
const TimestampLayout = "2006-01-02 15-04-05"

var placeholderName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)

type segment struct {
	text        string
	placeholder bool
}

// template is a parsed placeholder template.
type template struct {
	raw      string
	segments []segment
	names    []string
}

// parseTemplate splits raw into literal text and {name} placeholders.
// "{{" and "}}" are literal braces; a brace pair whose content is not a
// valid name stays literal.
func parseTemplate(raw string) *template {
	t := &template{raw: raw}
	seen := make(map[string]struct{})
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			t.segments = append(t.segments, segment{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '{' && i+1 < len(raw) && raw[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(raw) && raw[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(raw[i+1:], '}')
			if end < 0 {
				lit.WriteByte(c)
				continue
			}
			name := raw[i+1 : i+1+end]
			if !placeholderName.MatchString(name) {
				lit.WriteByte(c)
				continue
			}
			flush()
			t.segments = append(t.segments, segment{text: name, placeholder: true})
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				t.names = append(t.names, name)
			}
			i += end + 1
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return t
}

// Names returns the placeholder names in first-appearance order.
func (t *template) Names() []string {
	return t.names
}

// render substitutes every placeholder. Missing names are collected and
// reported together.
func (t *template) render(lookup func(string) (string, bool)) (string, []string) {
	var b strings.Builder
	var missing []string
	for _, seg := range t.segments {
		if !seg.placeholder {
			b.WriteString(seg.text)
			continue
		}
		v, ok := lookup(seg.text)
		if !ok {
			missing = append(missing, seg.text)
			continue
		}
		b.WriteString(v)
	}
	return b.String(), dedupe(missing)
}

// Render expands a template string against values; it is the exported
// form used by custom functions and tools.
func Render(raw string, values map[string]string) (string, error) {
	out, missing := parseTemplate(raw).render(func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	})
	if len(missing) > 0 {
		return "", unresolved(missing)
	}
	return out, nil
}

// Placeholders returns the distinct placeholder names of raw.
func Placeholders(raw string) []string {
	return append([]string(nil), parseTemplate(raw).names...)
}

func unresolved(names []string) *types.Error {
	names = dedupe(names)
	sort.Strings(names)
	return types.Errorf(types.ErrUnresolvedPlaceholder, "unresolved placeholders: %s", strings.Join(names, ", "))
}

func dedupe(names []string) []string {
	if len(names) < 2 {
		return names
	}
	seen := make(map[string]struct{}, len(names))
	out := names[:0:0]
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
