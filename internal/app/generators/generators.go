// Package generators produces example values for pact documents at
// creation time: random data, dates relative to the current clock, and
// values injected from the runtime context such as the mock server URL
// or provider-state parameters.
package generators

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lucasjones/reggen"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/covenant-oss/covenant/internal/app/datetime"
	"github.com/covenant-oss/covenant/internal/app/value"
)

// Kind enumerates the closed set of generator variants.
type Kind int

const (
	RandomInt Kind = iota
	RandomDecimal
	RandomHexadecimal
	RandomString
	Regex
	UUID
	RandomBoolean
	Date
	Time
	DateTime
	ProviderState
	MockServerURL
)

var kindNames = map[Kind]string{
	RandomInt:         "RandomInt",
	RandomDecimal:     "RandomDecimal",
	RandomHexadecimal: "RandomHexadecimal",
	RandomString:      "RandomString",
	Regex:             "Regex",
	UUID:              "Uuid",
	RandomBoolean:     "RandomBoolean",
	Date:              "Date",
	Time:              "Time",
	DateTime:          "DateTime",
	ProviderState:     "ProviderState",
	MockServerURL:     "MockServerURL",
}

func (k Kind) String() string { return kindNames[k] }

// Generator is one generator variant. Only the fields relevant to the
// Kind are set.
type Generator struct {
	Kind       Kind
	Min        int    // RandomInt
	Max        int    // RandomInt
	Digits     int    // RandomDecimal, RandomHexadecimal
	Size       int    // RandomString
	Pattern    string // Regex; MockServerURL
	Format     string // Date, Time, DateTime
	Expression string // ProviderState
	Example    string // MockServerURL
}

// Context carries the runtime inputs generation may need. The random
// source is injectable so tests can pin a seed.
type Context struct {
	Rand          *rand.Rand
	Now           func() time.Time
	BaseURL       string
	ProviderState map[string]interface{}
}

func NewContext(seed int64) *Context {
	return &Context{
		Rand: rand.New(rand.NewSource(seed)),
		Now:  time.Now,
	}
}

const stringAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Generate produces a concrete Value. It never fails: anything that
// cannot be resolved falls back to the placeholder already present in
// the definition.
func (g Generator) Generate(ctx *Context, fallback value.Value) value.Value {
	switch g.Kind {
	case RandomInt:
		min, max := g.Min, g.Max
		if max <= min {
			max = min + 2147483647
		}
		return value.NewInt(int64(min) + int64(ctx.Rand.Intn(max-min+1)))
	case RandomDecimal:
		digits := g.Digits
		if digits <= 0 {
			digits = 6
		}
		return value.NewNumber(randomDecimal(ctx.Rand, digits))
	case RandomHexadecimal:
		digits := g.Digits
		if digits <= 0 {
			digits = 8
		}
		const hex = "0123456789abcdef"
		var b strings.Builder
		for i := 0; i < digits; i++ {
			b.WriteByte(hex[ctx.Rand.Intn(len(hex))])
		}
		return value.NewString(b.String())
	case RandomString:
		size := g.Size
		if size <= 0 {
			size = 20
		}
		var b strings.Builder
		for i := 0; i < size; i++ {
			b.WriteByte(stringAlphabet[ctx.Rand.Intn(len(stringAlphabet))])
		}
		return value.NewString(b.String())
	case Regex:
		gen, err := reggen.NewGenerator(g.Pattern)
		if err != nil {
			log.Warnf("cannot generate from regex '%s': %v", g.Pattern, err)
			return fallback
		}
		gen.SetSeed(ctx.Rand.Int63())
		return value.NewString(gen.Generate(10))
	case UUID:
		return value.NewString(uuid.NewString())
	case RandomBoolean:
		return value.NewBool(ctx.Rand.Intn(2) == 1)
	case Date:
		return value.NewString(datetime.Format(formatOr(g.Format, datetime.DefaultDateFormat), ctx.Now()))
	case Time:
		return value.NewString(datetime.Format(formatOr(g.Format, datetime.DefaultTimeFormat), ctx.Now()))
	case DateTime:
		return value.NewString(datetime.Format(formatOr(g.Format, datetime.DefaultDateTimeFormat), ctx.Now()))
	case ProviderState:
		if resolved, ok := resolveStateExpression(g.Expression, ctx.ProviderState); ok {
			return resolved
		}
		return fallback
	case MockServerURL:
		if ctx.BaseURL == "" {
			return fallback
		}
		return value.NewString(rewriteURL(g.Example, g.Pattern, ctx.BaseURL))
	}
	return fallback
}

func formatOr(format, fallback string) string {
	if format == "" {
		return fallback
	}
	return format
}

func randomDecimal(r *rand.Rand, digits int) string {
	const numerals = "0123456789"
	var b strings.Builder
	for i := 0; i < digits; i++ {
		if i == 0 {
			// no leading zero, the literal must stay a valid number
			b.WriteByte(numerals[1+r.Intn(9)])
		} else {
			b.WriteByte(numerals[r.Intn(10)])
		}
	}
	digitsOnly := b.String()
	if len(digitsOnly) < 2 {
		return digitsOnly
	}
	point := 1 + r.Intn(len(digitsOnly)-1)
	return digitsOnly[:point] + "." + digitsOnly[point:]
}

// resolveStateExpression looks up "${key}" (or a bare key) in the
// provider-state parameters.
func resolveStateExpression(expr string, params map[string]interface{}) (value.Value, bool) {
	key := strings.TrimSpace(expr)
	if strings.HasPrefix(key, "${") && strings.HasSuffix(key, "}") {
		key = key[2 : len(key)-1]
	}
	raw, ok := params[key]
	if !ok {
		return value.NewNull(), false
	}
	return value.FromInterface(raw), true
}

// rewriteURL replaces the base of the example URL with the running
// mock server's URL, keeping the part captured by the regex.
func rewriteURL(example, pattern, base string) string {
	base = strings.TrimSuffix(base, "/")
	if pattern != "" {
		if re, err := regexp.Compile(pattern); err == nil {
			if groups := re.FindStringSubmatch(example); len(groups) > 1 {
				return base + "/" + strings.TrimPrefix(groups[1], "/")
			}
		}
	}
	return base
}

// MarshalJSON writes the pact-file generator form, e.g.
// {"type":"RandomInt","min":0,"max":10}.
func (g Generator) MarshalJSON() ([]byte, error) {
	doc := map[string]interface{}{"type": kindNames[g.Kind]}
	switch g.Kind {
	case RandomInt:
		doc["min"] = g.Min
		doc["max"] = g.Max
	case RandomDecimal, RandomHexadecimal:
		doc["digits"] = g.Digits
	case RandomString:
		doc["size"] = g.Size
	case Regex:
		doc["regex"] = g.Pattern
	case Date, Time, DateTime:
		if g.Format != "" {
			doc["format"] = g.Format
		}
	case ProviderState:
		doc["expression"] = g.Expression
	case MockServerURL:
		doc["example"] = g.Example
		doc["regex"] = g.Pattern
	}
	return json.Marshal(doc)
}

func (g *Generator) UnmarshalJSON(data []byte) error {
	doc := struct {
		Type       string `json:"type"`
		Min        int    `json:"min"`
		Max        int    `json:"max"`
		Digits     int    `json:"digits"`
		Size       int    `json:"size"`
		Regex      string `json:"regex"`
		Format     string `json:"format"`
		Expression string `json:"expression"`
		Example    string `json:"example"`
	}{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, "unable to parse generator")
	}
	for kind, name := range kindNames {
		if name == doc.Type {
			*g = Generator{
				Kind:       kind,
				Min:        doc.Min,
				Max:        doc.Max,
				Digits:     doc.Digits,
				Size:       doc.Size,
				Pattern:    doc.Regex,
				Format:     doc.Format,
				Expression: doc.Expression,
				Example:    doc.Example,
			}
			return nil
		}
	}
	return errors.Errorf("unknown generator type '%s'", doc.Type)
}

func (g Generator) String() string {
	encoded, err := json.Marshal(g)
	if err != nil {
		return fmt.Sprintf("generator(%s)", kindNames[g.Kind])
	}
	return string(encoded)
}
