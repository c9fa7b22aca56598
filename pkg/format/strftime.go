package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

// Strftime formats t with C-style strftime directives, plus one extension:
// a digit immediately following '%' truncates that component's textual
// representation to that many characters, so "%3f" keeps the first three
// digits of the microsecond field. "%%" is not a literal-percent escape.
func Strftime(layout string, t time.Time) string {
	tokens := strings.Split(layout, "%")
	var b strings.Builder
	b.WriteString(tokens[0])
	for _, tok := range tokens[1:] {
		b.WriteString(formatToken(tok, t))
	}
	return b.String()
}

func formatToken(tok string, t time.Time) string {
	if tok == "" {
		return ""
	}
	if tok[0] >= '0' && tok[0] <= '9' {
		if len(tok) < 2 {
			return ""
		}
		width := int(tok[0] - '0')
		s := directive(tok[1], t)
		if len(s) > width {
			s = s[:width]
		}
		return s + tok[2:]
	}
	return directive(tok[0], t) + tok[1:]
}

func directive(c byte, t time.Time) string {
	// Microseconds are formatted directly: truncation to a fixed digit
	// count must see all six digits regardless of trailing zeros.
	if c == 'f' {
		return fmt.Sprintf("%06d", t.Nanosecond()/1000)
	}
	return strftime.Format("%"+string(c), t)
}
