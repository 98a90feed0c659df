package agent

import (
	"strings"

	rherrors "github.com/corvid-labs/httpagent/pkg/errors"
)

// parseChallenges parses the Www-Authenticate header values of a 401
// response into the Agent's auth loop input. Each header value is one
// challenge: a scheme name followed by comma-separated auth-params.
func parseChallenges(values []string) []rherrors.Challenge {
	challenges := make([]rherrors.Challenge, 0, len(values))
	for _, v := range values {
		if c, ok := parseChallenge(v); ok {
			challenges = append(challenges, c)
		}
	}
	return challenges
}

func parseChallenge(value string) (rherrors.Challenge, bool) {
	value = strings.TrimSpace(value)
	scheme, rest, found := strings.Cut(value, " ")
	if !found {
		return rherrors.Challenge{Scheme: value, Params: map[string]string{}}, value != ""
	}

	params := map[string]string{}
	for _, part := range splitParams(rest) {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		v = strings.Trim(v, `"`)
		params[k] = v
	}
	return rherrors.Challenge{Scheme: scheme, Params: params}, true
}

// splitParams splits a comma-separated auth-param list, ignoring commas
// that fall inside a quoted value (a realm or nonce may legitimately
// contain one).
func splitParams(s string) []string {
	var parts []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}
