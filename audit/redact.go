package audit

import "regexp"

const mask = "[REDACTED]"

// secretPatterns covers the credential shapes most likely to leak through
// tool arguments and results: API keys, bearer tokens, and KEY=value
// assignments for well-known secret variable names.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{16,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]{16,}`),
	regexp.MustCompile(`(?i)\b(api[_-]?key|secret|token|password)\b\s*[:=]\s*\S+`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
}

func redactString(s string) string {
	for _, re := range secretPatterns {
		s = re.ReplaceAllString(s, mask)
	}
	return s
}

func redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return redactString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = redactValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = redactValue(inner)
		}
		return out
	default:
		return v
	}
}

func redactRecord(rec Record) Record {
	rec.Result = redactString(rec.Result)
	rec.Error = redactString(rec.Error)
	if rec.Args != nil {
		rec.Args = redactValue(rec.Args).(map[string]any)
	}
	return rec
}
