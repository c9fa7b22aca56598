// Package format implements the placeholder substitution used to name job
// directories and to assemble generated job scripts.
//
// Templates contain `{key}` or `{key:spec}` placeholders. Keys are
// dot-separated paths resolved by successive lookups into a nested
// configuration mapping ("{hp.batch_size:04}" reads config["hp"]["batch_size"]
// and zero-pads it to 4 digits). The reserved key "date" is never looked up
// in the config; it formats the current time with Strftime. Literal braces
// are written as `{{` and `}}`.
package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// LookupError reports a placeholder key that could not be resolved against
// the configuration mapping.
type LookupError struct {
	Key string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("format: key %q not found in config", e.Key)
}

// defaultDateFormat is used for "{date}" placeholders without a spec.
const defaultDateFormat = "%Y-%m-%d_%H-%M-%S_%3f"

// Sentinel runes used to protect escaped braces while placeholders are
// substituted. They are noncharacters, guaranteed absent from valid text.
const (
	sentinelLeft  = "￾"
	sentinelRight = "￿"
)

// placeholderRe matches well-formed `{...}` spans. Unbalanced braces never
// match and pass through the output literally.
var placeholderRe = regexp.MustCompile(`\{[^{}]*\}`)

// Render replaces every placeholder in tmpl with its formatted value from
// config. A missing key returns a *LookupError.
func Render(tmpl string, config map[string]any) (string, error) {
	return render(tmpl, config, time.Now(), false)
}

// RenderSilent is Render, except placeholders whose key is missing from
// config are left in the output verbatim.
func RenderSilent(tmpl string, config map[string]any) (string, error) {
	return render(tmpl, config, time.Now(), true)
}

// RenderChain renders tmpl against each config in turn: every pass but the
// last is silent, and the last errors on any still-unresolved key. Brace
// escapes are decoded once, after the final pass, so `{{`/`}}` literals
// survive the intermediate passes without being re-scanned as
// placeholders.
func RenderChain(tmpl string, configs ...map[string]any) (string, error) {
	return renderChain(tmpl, configs, time.Now())
}

func render(tmpl string, config map[string]any, now time.Time, silent bool) (string, error) {
	return renderChainSilent(tmpl, []map[string]any{config}, now, silent)
}

func renderChain(tmpl string, configs []map[string]any, now time.Time) (string, error) {
	return renderChainSilent(tmpl, configs, now, false)
}

func renderChainSilent(tmpl string, configs []map[string]any, now time.Time, silent bool) (string, error) {
	s := encodePair(tmpl, "{{", "}}")
	for i, config := range configs {
		var err error
		s, err = substitute(s, config, now, silent || i < len(configs)-1)
		if err != nil {
			return "", err
		}
	}
	return decodePair(s, "{", "}"), nil
}

// substitute resolves placeholders in an already-encoded template.
func substitute(s string, config map[string]any, now time.Time, silent bool) (string, error) {
	var b strings.Builder
	last := 0
	for _, span := range placeholderRe.FindAllStringIndex(s, -1) {
		b.WriteString(s[last:span[0]])
		out, err := formatTerm(s[span[0]:span[1]], config, now, silent)
		if err != nil {
			return "", err
		}
		b.WriteString(out)
		last = span[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

// encodePair swaps left/right brace pairs for sentinel runs so they survive
// placeholder substitution.
func encodePair(s, left, right string) string {
	s = strings.ReplaceAll(s, left, strings.Repeat(sentinelLeft, 2))
	return strings.ReplaceAll(s, right, strings.Repeat(sentinelRight, 2))
}

// decodePair restores sentinel runs to single braces.
func decodePair(s, left, right string) string {
	s = strings.ReplaceAll(s, strings.Repeat(sentinelLeft, 2), left)
	return strings.ReplaceAll(s, strings.Repeat(sentinelRight, 2), right)
}

// formatTerm formats one "{key:spec}" term.
func formatTerm(term string, config map[string]any, now time.Time, silent bool) (string, error) {
	key, spec, hasSpec := strings.Cut(term[1:len(term)-1], ":")

	if key == "date" {
		if !hasSpec {
			spec = defaultDateFormat
		}
		return Strftime(spec, now), nil
	}

	value, ok := dictGet(config, strings.Split(key, "."))
	if !ok {
		if silent {
			return term, nil
		}
		return "", &LookupError{Key: key}
	}

	if !hasSpec {
		return fmt.Sprint(value), nil
	}
	return formatValue(value, spec)
}

// dictGet resolves a dot-path key sequence against nested string-keyed maps.
func dictGet(config map[string]any, path []string) (any, bool) {
	var value any = config
	for _, key := range path {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}
		value, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return value, true
}

// formatValue renders value per a format spec. The spec is a subset of the
// original mini-language: [0][width][.prec][verb] where verb is one of
// d b o x X e E f g s (default: d for integers, g for floats, s otherwise).
func formatValue(value any, spec string) (string, error) {
	zero, width, prec, verb, err := parseSpec(spec)
	if err != nil {
		return "", err
	}

	if verb == 0 {
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			verb = 'd'
		case float32, float64:
			verb = 'g'
		default:
			verb = 's'
		}
	}

	var layout strings.Builder
	layout.WriteByte('%')
	if zero {
		layout.WriteByte('0')
	}
	if width > 0 {
		layout.WriteString(strconv.Itoa(width))
	}
	if prec >= 0 {
		layout.WriteByte('.')
		layout.WriteString(strconv.Itoa(prec))
	}

	switch verb {
	case 'd', 'b', 'o', 'x', 'X':
		layout.WriteByte(verb)
		return fmt.Sprintf(layout.String(), value), nil
	case 'e', 'E', 'f', 'g':
		layout.WriteByte(verb)
		return fmt.Sprintf(layout.String(), toFloat(value)), nil
	case 's':
		layout.WriteByte('s')
		return fmt.Sprintf(layout.String(), fmt.Sprint(value)), nil
	default:
		return "", fmt.Errorf("format: unsupported verb %q in spec %q", verb, spec)
	}
}

func parseSpec(spec string) (zero bool, width, prec int, verb byte, err error) {
	prec = -1
	i := 0
	if i < len(spec) && spec[i] == '0' {
		zero = true
		i++
	}
	for i < len(spec) && spec[i] >= '0' && spec[i] <= '9' {
		width = width*10 + int(spec[i]-'0')
		i++
	}
	if i < len(spec) && spec[i] == '.' {
		i++
		start := i
		for i < len(spec) && spec[i] >= '0' && spec[i] <= '9' {
			i++
		}
		if i == start {
			return false, 0, 0, 0, fmt.Errorf("format: missing precision in spec %q", spec)
		}
		prec, _ = strconv.Atoi(spec[start:i])
	}
	if i < len(spec) {
		verb = spec[i]
		i++
	}
	if i != len(spec) {
		return false, 0, 0, 0, fmt.Errorf("format: malformed spec %q", spec)
	}
	return zero, width, prec, verb, nil
}

func toFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
