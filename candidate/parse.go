// Package candidate turns the raw text of a request into the list of
// people who may receive it.
package candidate

import (
	"regexp"
	"strings"
)

var (
	userPattern  = regexp.MustCompile(`<@([^|>]+)(?:\|[^>]*)?>`)
	groupPattern = regexp.MustCompile(`<!subteam\^([^|>]+)(?:\|[^>]*)?>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// Mentions is the result of parsing a request's raw text.
type Mentions struct {
	// Users holds explicitly mentioned user IDs, first mention first.
	Users []string
	// Groups holds mentioned user group IDs, first mention first.
	Groups []string
	// Text is the raw text with every mention removed and whitespace
	// collapsed.
	Text string
}

// Parse extracts user and group mentions from chat markup such as
// "<@U123|alice>" and "<!subteam^S456|@oncall>".
func Parse(raw string) Mentions {
	m := Mentions{
		Users:  submatches(userPattern, raw),
		Groups: submatches(groupPattern, raw),
	}

	text := userPattern.ReplaceAllString(raw, "")
	text = groupPattern.ReplaceAllString(text, "")
	m.Text = strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
	return m
}

func submatches(re *regexp.Regexp, s string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, match := range re.FindAllStringSubmatch(s, -1) {
		v := match[1]
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
