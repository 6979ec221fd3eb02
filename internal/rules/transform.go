package rules

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// TransformKind is the closed set of transform rule types.
type TransformKind string

const (
	TransformText     TransformKind = "text"
	TransformRegex    TransformKind = "regex"
	TransformEmoji    TransformKind = "emoji"
	TransformMedia    TransformKind = "media"
	TransformTemplate TransformKind = "template"
)

// Transform is one rewrite rule. Which payload fields are meaningful depends
// on Kind: text/emoji use Find/Replace, regex uses Pattern/Flags/Replace,
// template uses Replace as the template body, media uses AssetPath.
type Transform struct {
	ID        uint
	Kind      TransformKind
	Enabled   bool
	Priority  int
	Scope     string // comma-separated media types the rule applies to; empty means all
	Find      string
	Replace   string
	Pattern   string
	Flags     string // letter set from {i,m,s}
	AssetPath string
}

var templateTokenRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// SortTransforms orders rules by priority ascending, ties broken by id.
func SortTransforms(transforms []Transform) {
	sort.SliceStable(transforms, func(i, j int) bool {
		if transforms[i].Priority != transforms[j].Priority {
			return transforms[i].Priority < transforms[j].Priority
		}
		return transforms[i].ID < transforms[j].ID
	})
}

// appliesToMediaType checks a rule's media-type scope. An empty scope applies
// to everything, as does a scope containing any/all/*.
func appliesToMediaType(scope string, mediaType MediaType) bool {
	allowed := parseTypeSet(scope)
	if len(allowed) == 0 {
		return true
	}
	if _, ok := allowed[string(mediaType)]; ok {
		return true
	}
	for _, wildcard := range []string{"any", "all", "*"} {
		if _, ok := allowed[wildcard]; ok {
			return true
		}
	}
	return false
}

// regexFlagPrefix converts a flag letter set into a Go inline flag group.
// i=case-insensitive, m=multiline, s=dot matches newline.
func regexFlagPrefix(flags string) string {
	var b strings.Builder
	lower := strings.ToLower(flags)
	for _, f := range []string{"i", "m", "s"} {
		if strings.Contains(lower, f) {
			b.WriteString(f)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "(?" + b.String() + ")"
}

// ApplyTransforms runs the text-producing rules over the body in order.
// Disabled rules, media-kind rules, and rules scoped to other media types are
// skipped. A malformed regex skips that single rule with a warning; it never
// aborts the chain. Template rules substitute {{identifier}} tokens against
// the context plus the running text value, so templates can chain after
// earlier rewrites; missing keys render as empty strings.
func ApplyTransforms(body string, transforms []Transform, context map[string]string, mediaType MediaType) string {
	output := body
	for _, rule := range transforms {
		if !rule.Enabled || rule.Kind == TransformMedia {
			continue
		}
		if !appliesToMediaType(rule.Scope, mediaType) {
			continue
		}
		switch rule.Kind {
		case TransformText, TransformEmoji:
			if rule.Find != "" {
				output = strings.ReplaceAll(output, rule.Find, rule.Replace)
			}
		case TransformRegex:
			if rule.Pattern == "" {
				continue
			}
			re, err := regexp.Compile(regexFlagPrefix(rule.Flags) + rule.Pattern)
			if err != nil {
				logrus.Warnf("Invalid regex transform skipped: rule_id=%d pattern=%q: %v", rule.ID, rule.Pattern, err)
				continue
			}
			output = re.ReplaceAllString(output, rule.Replace)
		case TransformTemplate:
			templateContext := make(map[string]string, len(context)+1)
			for k, v := range context {
				templateContext[k] = v
			}
			templateContext["text"] = output
			output = renderTemplate(rule.Replace, templateContext)
		}
	}
	return output
}

// renderTemplate substitutes {{identifier}} tokens from the context. Unknown
// identifiers become empty strings.
func renderTemplate(template string, context map[string]string) string {
	return templateTokenRe.ReplaceAllStringFunc(template, func(token string) string {
		key := templateTokenRe.FindStringSubmatch(token)[1]
		return context[key]
	})
}

// PickMediaReplacement returns the asset path of the first enabled media-kind
// rule whose scope matches the incoming media's type. Only messages that
// carry displayable media (not a link preview) are considered; everything
// else keeps its original media.
func PickMediaReplacement(media Media, body string, transforms []Transform) (string, bool) {
	if !media.Present || media.WebPreview {
		return "", false
	}
	mediaType := Classify(media, body)
	for _, rule := range transforms {
		if !rule.Enabled || rule.Kind != TransformMedia {
			continue
		}
		if !appliesToMediaType(rule.Scope, mediaType) {
			continue
		}
		if rule.AssetPath != "" {
			return rule.AssetPath, true
		}
	}
	return "", false
}
