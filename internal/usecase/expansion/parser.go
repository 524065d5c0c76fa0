package expansion

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// Outcome is the result of parsing untrusted model output: Parsed or Failure.
type Outcome interface {
	outcome()
}

// Parsed holds the non-empty phrases found in the output, in order.
type Parsed struct {
	Items []string
}

// Failure explains why nothing usable was found.
type Failure struct {
	Reason string
}

func (Parsed) outcome()  {}
func (Failure) outcome() {}

// Keys tried, in order, when the model wraps phrases in objects.
var itemKeys = []string{"extension", "text", "phrase", "value", "description", "term", "answer"}

// Parse extracts a list of phrases from model output. It accepts a string
// array, an array of objects, or an object holding an array or strings,
// optionally inside a code fence, and retries once after a lexical repair.
func Parse(raw string) Outcome {
	text := stripFences(raw)
	if text == "" {
		return Failure{Reason: "empty output"}
	}

	if items, ok := decode(text); ok {
		return Parsed{Items: items}
	}
	if items, ok := decode(repairJSON(text)); ok {
		return Parsed{Items: items}
	}
	return Failure{Reason: "no json array or object"}
}

func decode(text string) ([]string, bool) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, false
	}
	items := collect(v, 0)
	return items, len(items) > 0
}

func collect(v any, depth int) []string {
	if depth > 2 {
		return nil
	}
	switch t := v.(type) {
	case string:
		if s := clean(t); s != "" {
			return []string{s}
		}
	case []any:
		var out []string
		for _, el := range t {
			out = append(out, collect(el, depth+1)...)
		}
		return out
	case map[string]any:
		for _, k := range itemKeys {
			if el, ok := t[k]; ok {
				if got := collect(el, depth+1); len(got) > 0 {
					return got
				}
			}
		}
		// Fall back to every string or array field in key order.
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []string
		for _, k := range keys {
			out = append(out, collect(t[k], depth+1)...)
		}
		return out
	}
	return nil
}

func clean(s string) string {
	return strings.Join(strings.Fields(strings.Trim(s, " \t\n\"'`.")), " ")
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "[{") {
		s = s[nl+1:] // language tag
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var (
	trailingComma = regexp.MustCompile(`,\s*([\]}])`)
	bareKey       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)"?\s*:`)
)

// repairJSON fixes the usual model slips: prose around the payload, single
// quotes, trailing commas, unquoted keys and a missing closing bracket.
func repairJSON(s string) string {
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return s
	}
	s = s[start:]
	if end := strings.LastIndexAny(s, "]}"); end >= 0 {
		s = s[:end+1]
	}
	if !strings.Contains(s, `"`) {
		s = strings.ReplaceAll(s, "'", `"`)
	}
	s = bareKey.ReplaceAllString(s, `$1"$2":`)
	s = trailingComma.ReplaceAllString(s, "$1")

	if strings.HasPrefix(s, "[") && strings.Count(s, "[") > strings.Count(s, "]") {
		s += "]"
	}
	if strings.HasPrefix(s, "{") && strings.Count(s, "{") > strings.Count(s, "}") {
		s += "}"
	}
	return s
}
