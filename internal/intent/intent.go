// Package intent classifies a chat message into the action it asks for and
// pulls the structured fields for that action out of the text.
//
// Both steps are driven by tables: Keywords decide the Kind on a first-match
// basis, Rules describe where each field comes from and what it defaults to.
// Classification never fails; a field nothing matched takes its default.
package intent

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

type Kind string

const (
	Task    Kind = "task"
	Expense Kind = "expense"
	Income  Kind = "income"
	Fitness Kind = "fitness"
	Chat    Kind = "chat"
)

// ActionKinds lists the kinds that write a row, in precedence order.
var ActionKinds = []Kind{Task, Expense, Income, Fitness}

// Action reports whether the kind writes a row besides the chat reply.
func (k Kind) Action() bool { return k != Chat && k != "" }

type Field string

const (
	FieldTitle    Field = "title"
	FieldPriority Field = "priority"
	FieldAmount   Field = "amount"
	FieldCategory Field = "category"
	FieldSource   Field = "source"
	FieldExercise Field = "exercise"
	FieldDuration Field = "duration"
)

type Payload struct {
	Title           string  `json:"title,omitempty"`
	Priority        string  `json:"priority,omitempty"`
	Amount          float64 `json:"amount,omitempty"`
	Category        string  `json:"category,omitempty"`
	Source          string  `json:"source,omitempty"`
	Exercise        string  `json:"exercise,omitempty"`
	DurationMinutes int     `json:"duration_minutes,omitempty"`
}

type ActionIntent struct {
	Kind    Kind    `json:"intent"`
	Payload Payload `json:"payload"`
}

// KeywordSet claims a message for Kind when Pattern matches anywhere in it.
type KeywordSet struct {
	Kind    Kind
	Pattern *regexp.Regexp
}

// Rule extracts one field for one kind. Patterns are tried in order and the
// first capture group of the first match is the value; Default applies when
// none match.
type Rule struct {
	Kind     Kind
	Field    Field
	Patterns []*regexp.Regexp
	Default  string
}

type Classifier struct {
	Keywords []KeywordSet
	Rules    []Rule
}

var defaultClassifier = &Classifier{Keywords: DefaultKeywords, Rules: DefaultRules}

// Default returns the classifier built from DefaultKeywords and DefaultRules.
func Default() *Classifier { return defaultClassifier }

// Classify uses the default tables.
func Classify(text string) ActionIntent { return defaultClassifier.Classify(text) }

func (c *Classifier) Classify(text string) ActionIntent {
	kind := c.Kind(text)
	if !kind.Action() {
		return ActionIntent{Kind: Chat}
	}
	return ActionIntent{Kind: kind, Payload: c.extract(kind, text)}
}

// Kind returns the first keyword set that matches, or Chat.
func (c *Classifier) Kind(text string) Kind {
	for _, ks := range c.Keywords {
		if ks.Pattern.MatchString(text) {
			return ks.Kind
		}
	}
	return Chat
}

// Field returns the raw extracted value for one field of kind.
func (c *Classifier) Field(kind Kind, field Field, text string) string {
	for _, r := range c.Rules {
		if r.Kind != kind || r.Field != field {
			continue
		}
		for _, p := range r.Patterns {
			m := p.FindStringSubmatch(text)
			if len(m) < 2 {
				continue
			}
			if v := cleanValue(m[1]); v != "" {
				return v
			}
		}
		return r.Default
	}
	return ""
}

func (c *Classifier) extract(kind Kind, text string) Payload {
	var p Payload
	switch kind {
	case Task:
		p.Title = c.Field(Task, FieldTitle, text)
		p.Priority = normalizePriority(c.Field(Task, FieldPriority, text))
	case Expense:
		p.Amount = parseAmount(c.Field(Expense, FieldAmount, text))
		p.Category = stripMoney(c.Field(Expense, FieldCategory, text), c.ruleDefault(Expense, FieldCategory))
	case Income:
		p.Amount = parseAmount(c.Field(Income, FieldAmount, text))
		p.Source = stripMoney(c.Field(Income, FieldSource, text), c.ruleDefault(Income, FieldSource))
	case Fitness:
		p.Exercise = normalizeExercise(c.Field(Fitness, FieldExercise, text))
		p.DurationMinutes = parseMinutes(c.Field(Fitness, FieldDuration, text))
		if p.DurationMinutes == 0 {
			p.DurationMinutes = parseMinutes(c.ruleDefault(Fitness, FieldDuration))
		}
	}
	return p
}

func (c *Classifier) ruleDefault(kind Kind, field Field) string {
	for _, r := range c.Rules {
		if r.Kind == kind && r.Field == field {
			return r.Default
		}
	}
	return ""
}

var trimSet = " \t\r\n\"'`.,!?;:"

func cleanValue(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), trimSet))
}

func normalizePriority(s string) string {
	switch strings.ToLower(s) {
	case "high", "urgent":
		return "high"
	case "low":
		return "low"
	default:
		return "medium"
	}
}

func parseAmount(s string) float64 {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}

var moneyToken = regexp.MustCompile(`\$\s*\d[\d,]*(?:\.\d+)?|\b\d[\d,]*(?:\.\d+)?\s*(?:dollars|bucks|usd)\b`)

// stripMoney removes amounts that leaked into a free-text capture.
func stripMoney(s, def string) string {
	out := strings.Join(strings.Fields(moneyToken.ReplaceAllString(s, " ")), " ")
	out = cleanValue(out)
	if out == "" {
		return def
	}
	return out
}

var exerciseNames = map[string]string{
	"ran": "running", "run": "running", "running": "running",
	"jog": "jogging", "jogged": "jogging", "jogging": "jogging",
	"cycled": "cycling", "cycling": "cycling", "biked": "cycling", "biking": "cycling",
	"swam": "swimming", "swim": "swimming", "swimming": "swimming",
	"walk": "walking", "walked": "walking", "walking": "walking",
	"lifted": "weightlifting", "lifting": "weightlifting", "weights": "weightlifting",
	"hike": "hiking", "hiked": "hiking", "hiking": "hiking",
}

func normalizeExercise(s string) string {
	if n, ok := exerciseNames[strings.ToLower(s)]; ok {
		return n
	}
	return s
}

// maxWorkoutMinutes bounds a parsed duration to one week.
const maxWorkoutMinutes = 7 * 24 * 60

var durationParts = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*([a-z]+)$`)

func parseMinutes(s string) int {
	m := durationParts.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	if strings.HasPrefix(strings.ToLower(m[2]), "h") {
		n *= 60
	}
	if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 || n > maxWorkoutMinutes {
		return 0
	}
	return int(math.Round(n))
}
