package prompt

import (
	"regexp"
	"strings"
)

const (
	ifOpen  = "{{#IF"
	ifClose = "{{/IF}}"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Values maps template keys to their rendered text.
type Values map[string]string

// Clone returns a shallow copy of v.
func (v Values) Clone() Values {
	out := make(Values, len(v)+8)
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Set stores val under key when val is non-empty after trimming and removes
// the key otherwise, so optional context never renders as blank text.
func (v Values) Set(key, val string) {
	if strings.TrimSpace(val) == "" {
		delete(v, key)
		return
	}
	v[key] = val
}

// SetBool stores "true" for true and removes the key for false.
func (v Values) SetBool(key string, on bool) {
	if on {
		v[key] = "true"
		return
	}
	delete(v, key)
}

// Truthy reports whether key is present, non-empty, and not "false" or "0".
func (v Values) Truthy(key string) bool {
	val, ok := v[key]
	if !ok {
		return false
	}
	val = strings.TrimSpace(val)
	return val != "" && !strings.EqualFold(val, "false") && val != "0"
}

// Render resolves conditional blocks and then substitutes placeholders.
func Render(tpl string, values Values) string {
	out := resolveConditionals(tpl, values)
	return placeholderRe.ReplaceAllStringFunc(out, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		if val, ok := values[key]; ok {
			return val
		}
		return "[" + key + " not set]"
	})
}

// resolveConditionals repeatedly takes the last opening tag, which has no
// nested block after it, and pairs it with the first closing tag that
// follows.
func resolveConditionals(tpl string, values Values) string {
	for {
		open := strings.LastIndex(tpl, ifOpen)
		if open < 0 {
			return tpl
		}
		headerEnd := strings.Index(tpl[open:], "}}")
		if headerEnd < 0 {
			return tpl[:open]
		}
		headerEnd += open
		header := tpl[open+len(ifOpen) : headerEnd]
		bodyStart := headerEnd + len("}}")

		closeAt := strings.Index(tpl[bodyStart:], ifClose)
		if closeAt < 0 {
			// Unterminated block: drop the header and keep the text.
			tpl = tpl[:open] + tpl[bodyStart:]
			continue
		}
		closeAt += bodyStart

		keep := ""
		if evalCondition(header, values) {
			keep = tpl[bodyStart:closeAt]
		}
		tpl = tpl[:open] + keep + tpl[closeAt+len(ifClose):]
	}
}

func evalCondition(header string, values Values) bool {
	header = strings.TrimSpace(header)
	key, want, isEq := strings.Cut(header, "==")
	key = strings.TrimSpace(key)
	if !isEq {
		return values.Truthy(key)
	}
	want = strings.Trim(strings.TrimSpace(want), `'"`)
	return strings.TrimSpace(values[key]) == want
}
