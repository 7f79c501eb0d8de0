package intent

import (
	"regexp"
	"strings"
)

// words builds a case-insensitive whole-word alternation.
func words(ws ...string) *regexp.Regexp {
	quoted := make([]string, len(ws))
	for i, w := range ws {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// DefaultKeywords is evaluated top to bottom. The sets overlap ("payment"
// reads as spending or earning) and the order settles it: task, expense,
// income, fitness.
var DefaultKeywords = []KeywordSet{
	{Task, words(
		"create task", "add task", "new task", "make task",
		"create a task", "add a task", "make a task", "create a new task", "add a new task",
		"task called", "remind me to", "todo", "to-do",
	)},
	{Expense, words(
		"log expense", "expense", "expenses", "spent", "spend", "paid for",
		"bought", "purchased", "payment", "cost me",
	)},
	{Income, words(
		"log income", "income", "earned", "received", "got paid", "salary",
		"paycheck", "payment received", "revenue",
	)},
	{Fitness, words(
		"log workout", "workout", "worked out", "work out", "exercise", "exercised",
		"ran", "run", "jogged", "jog", "gym", "yoga", "lifted", "swam", "cycled", "biked", "walked",
	)},
}

const prioritySuffix = `(?:\s*,?\s*(?:with\s+)?(?:a\s+)?(?:high|medium|low|urgent)\s+priority|\s*,?\s*priority\s*(?:is|of|:)?\s*(?:high|medium|low))?\s*[.!]*$`

const money = `(\d[\d,]*(?:\.\d+)?)`

// DefaultRules is the extraction policy.
var DefaultRules = []Rule{
	{Task, FieldTitle, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:create|add|new|make)\s+(?:a\s+)?(?:new\s+)?task\s+(?:called|named|titled)\s+(.+?)` + prioritySuffix),
		regexp.MustCompile(`(?i)\b(?:create|add|new|make)\s+(?:a\s+)?(?:new\s+)?task\s*:?\s+(?:to\s+|for\s+)?(.+?)` + prioritySuffix),
		regexp.MustCompile(`(?i)\bremind me to\s+(.+?)` + prioritySuffix),
		regexp.MustCompile(`(?i)\bto-?do\s*:?\s+(.+?)` + prioritySuffix),
		regexp.MustCompile(`(?i)\btask\s+(?:called|named|titled)\s+(.+?)` + prioritySuffix),
	}, "New Task"},
	{Task, FieldPriority, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(high|medium|low|urgent)\s+priority\b`),
		regexp.MustCompile(`(?i)\bpriority\s*(?:is|of|:)?\s*(high|medium|low)\b`),
		regexp.MustCompile(`(?i)\b(urgent)\b`),
	}, "medium"},

	{Expense, FieldAmount, []*regexp.Regexp{
		regexp.MustCompile(`\$\s*` + money),
		regexp.MustCompile(`(?i)` + money + `\s*(?:dollars|bucks|usd)\b`),
		regexp.MustCompile(`(?i)\b(?:spent|spend|paid|cost(?:\s+me)?)\s+` + money),
	}, "0"},
	{Expense, FieldCategory, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bcategory\s*:?\s*(.+?)\s*[.!]*$`),
		regexp.MustCompile(`(?i)\bon\s+(.+?)\s*[.!]*$`),
		regexp.MustCompile(`(?i)\bfor\s+(.+?)\s*[.!]*$`),
	}, "Other"},

	{Income, FieldAmount, []*regexp.Regexp{
		regexp.MustCompile(`\$\s*` + money),
		regexp.MustCompile(`(?i)` + money + `\s*(?:dollars|bucks|usd)\b`),
		regexp.MustCompile(`(?i)\b(?:earned|received|made|got paid)\s+` + money),
	}, "0"},
	{Income, FieldSource, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bfrom\s+(.+?)\s*[.!]*$`),
		regexp.MustCompile(`(?i)\b(salary|paycheck|freelance|bonus|dividends?)\b`),
	}, "Other"},

	{Fitness, FieldExercise, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(running|ran|run|jogging|jogged|jog|cycling|cycled|biked|biking|swimming|swam|swim|yoga|pilates|walking|walked|walk|lifting|lifted|weights|hiit|rowing|hiking|hiked|hike)\b`),
		regexp.MustCompile(`(?i)\bdid\s+(?:a\s+|some\s+)?(.+?)\s+(?:for\s+)?\d`),
	}, "Workout"},
	{Fitness, FieldDuration, []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+(?:\.\d+)?\s*(?:hours?|hrs?|h|minutes?|mins?|min|m))\b`),
	}, "30 minutes"},
}
