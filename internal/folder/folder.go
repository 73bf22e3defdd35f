// Package folder expands destination folder templates into relative paths.
//
// A template is a "/"-separated path whose components may contain
// placeholders in curly braces:
//
//	{date}         current local date as YYYY-MM-DD
//	{date:FMT}     current local time formatted with strftime verbs, e.g. {date:%Y}
//	               %-d, %-m, %-H, %-I, %-M, %-S, %-j and %-y print without padding
//	{timestamp}    current Unix time in seconds
//	{XXXX}         random [A-Za-z0-9] string, one character per X
//
// Unknown placeholders are kept verbatim and reported as a warning.
package folder

import (
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

// Separator joins template components
const Separator = "/"

// DefaultDateFormat is used by a bare {date} placeholder
const DefaultDateFormat = "%Y-%m-%d"

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var randomToken = regexp.MustCompile(`^X+$`)

// Kind identifies what a template segment expands to
type Kind int

const (
	KindLiteral Kind = iota
	KindDate
	KindTimestamp
	KindRandom
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	case KindRandom:
		return "random"
	default:
		return "unsupported"
	}
}

// Segment is a piece of a template component. Text holds the raw template
// text, braces included; Token holds the placeholder body without braces.
type Segment struct {
	Kind  Kind
	Text  string
	Token string
}

// Resolver expands folder templates. Every call reads the clock and the
// random source again, so the same template rarely resolves twice to the
// same path.
type Resolver struct {
	logger *slog.Logger
	now    func() time.Time
	intN   func(n int) int
}

// NewResolver creates a resolver using the wall clock and a non-cryptographic
// random source.
func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{
		logger: logger,
		now:    time.Now,
		intN:   rand.IntN,
	}
}

// Resolve expands every placeholder of template and returns the relative path
func (r *Resolver) Resolve(template string) string {
	components := SplitComponents(template)
	for i, component := range components {
		components[i] = r.resolveComponent(component)
	}
	return strings.Join(components, Separator)
}

func (r *Resolver) resolveComponent(component string) string {
	var b strings.Builder
	for _, seg := range Parse(component) {
		if seg.Kind != KindLiteral {
			r.logger.Debug("folder placeholder", "token", seg.Token, "kind", seg.Kind.String())
		}
		b.WriteString(r.expand(seg))
	}
	return b.String()
}

func (r *Resolver) expand(seg Segment) string {
	switch seg.Kind {
	case KindDate:
		layout := DefaultDateFormat
		if f, ok := strings.CutPrefix(seg.Token, "date:"); ok {
			layout = f
		}
		out, err := formatDate(layout, r.now())
		if err != nil {
			r.logger.Warn("invalid date format in folder template, keeping placeholder",
				"placeholder", seg.Text, "error", err)
			return seg.Text
		}
		return out

	case KindTimestamp:
		return strconv.FormatInt(r.now().Unix(), 10)

	case KindRandom:
		return r.randomString(len(seg.Token))

	case KindUnsupported:
		r.logger.Warn("unsupported placeholder in folder template", "placeholder", seg.Text)
		return seg.Text

	default:
		return seg.Text
	}
}

// unpadded maps the verb following "%-" to its value without leading zeros
var unpadded = map[byte]func(t time.Time) int{
	'd': func(t time.Time) int { return t.Day() },
	'm': func(t time.Time) int { return int(t.Month()) },
	'H': func(t time.Time) int { return t.Hour() },
	'I': func(t time.Time) int {
		if h := t.Hour() % 12; h != 0 {
			return h
		}
		return 12
	},
	'M': func(t time.Time) int { return t.Minute() },
	'S': func(t time.Time) int { return t.Second() },
	'j': func(t time.Time) int { return t.YearDay() },
	'y': func(t time.Time) int { return t.Year() % 100 },
}

// formatDate formats t with strftime verbs plus the unpadded "%-" forms
func formatDate(layout string, t time.Time) (string, error) {
	var out, chunk strings.Builder
	flush := func() error {
		if chunk.Len() == 0 {
			return nil
		}
		s, err := strftime.Format(chunk.String(), t)
		if err != nil {
			return err
		}
		out.WriteString(s)
		chunk.Reset()
		return nil
	}

	for i := 0; i < len(layout); i++ {
		if layout[i] != '%' || i+1 >= len(layout) {
			chunk.WriteByte(layout[i])
			continue
		}
		if layout[i+1] == '-' && i+2 < len(layout) {
			if value, ok := unpadded[layout[i+2]]; ok {
				if err := flush(); err != nil {
					return "", err
				}
				out.WriteString(strconv.Itoa(value(t)))
				i += 2
				continue
			}
		}
		chunk.WriteString(layout[i : i+2])
		i++
	}

	if err := flush(); err != nil {
		return "", err
	}
	return out.String(), nil
}

func (r *Resolver) randomString(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphabet[r.intN(len(alphabet))]
	}
	return string(buf)
}

// Classify returns the kind of a placeholder body, in priority order:
// date, timestamp, random, unsupported.
func Classify(token string) Kind {
	switch {
	case strings.HasPrefix(token, "date"):
		return KindDate
	case token == "timestamp":
		return KindTimestamp
	case randomToken.MatchString(token):
		return KindRandom
	default:
		return KindUnsupported
	}
}

// Parse splits a single template component into literal and placeholder
// segments. A placeholder is the shortest "{...}" span with a non-empty body.
func Parse(component string) []Segment {
	var segments []Segment
	literalStart := 0

	for i := 0; i < len(component); {
		end := placeholderEnd(component, i)
		if end < 0 {
			i++
			continue
		}

		if literalStart < i {
			segments = append(segments, Segment{Kind: KindLiteral, Text: component[literalStart:i]})
		}
		token := component[i+1 : end]
		segments = append(segments, Segment{
			Kind:  Classify(token),
			Text:  component[i : end+1],
			Token: token,
		})
		i = end + 1
		literalStart = i
	}

	if literalStart < len(component) {
		segments = append(segments, Segment{Kind: KindLiteral, Text: component[literalStart:]})
	}
	return segments
}

// SplitComponents splits template on the separator, ignoring separators that
// appear inside a placeholder such as {date:%Y/%m}.
func SplitComponents(template string) []string {
	var components []string
	start := 0

	for i := 0; i < len(template); {
		if end := placeholderEnd(template, i); end >= 0 {
			i = end + 1
			continue
		}
		if strings.HasPrefix(template[i:], Separator) {
			components = append(components, template[start:i])
			i += len(Separator)
			start = i
			continue
		}
		i++
	}

	return append(components, template[start:])
}

// Unsupported returns the placeholders of template that Resolve would keep verbatim
func Unsupported(template string) []string {
	var out []string
	for _, component := range SplitComponents(template) {
		for _, seg := range Parse(component) {
			if seg.Kind == KindUnsupported {
				out = append(out, seg.Text)
			}
		}
	}
	return out
}

// placeholderEnd returns the index of the closing brace of a placeholder
// starting at i, or -1 when s[i] does not open one. The body must hold at
// least one byte.
func placeholderEnd(s string, i int) int {
	if s[i] != '{' || i+2 >= len(s) {
		return -1
	}
	j := strings.IndexByte(s[i+2:], '}')
	if j < 0 {
		return -1
	}
	return i + 2 + j
}
