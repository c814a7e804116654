package timer

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultDuration is used when the start input carries no duration token.
const DefaultDuration = 25 * time.Minute

var durationToken = regexp.MustCompile(`^(\d+)([hms])$`)

// Request is the parsed form of a start-timer input.
type Request struct {
	Duration time.Duration
	Label    string
}

// ParseRequest parses free-text input of the form "<number><unit> <label>"
// where unit is one of h, m, s. A missing or malformed duration token falls
// back to def (or DefaultDuration when def is zero) and the whole input
// becomes the label; a missing label falls back to "<username>'s timer".
func ParseRequest(input, username string, def time.Duration) Request {
	if def <= 0 {
		def = DefaultDuration
	}
	req := Request{Duration: def}

	text := strings.TrimSpace(input)
	if text != "" {
		token, rest := text, ""
		if idx := strings.IndexAny(text, " \t"); idx >= 0 {
			token = text[:idx]
			rest = strings.TrimSpace(text[idx:])
		}
		if m := durationToken.FindStringSubmatch(strings.ToLower(token)); m != nil {
			n, err := strconv.ParseInt(m[1], 10, 64)
			if err == nil && n > 0 {
				switch m[2] {
				case "h":
					req.Duration = time.Duration(n) * time.Hour
				case "m":
					req.Duration = time.Duration(n) * time.Minute
				case "s":
					req.Duration = time.Duration(n) * time.Second
				}
				req.Label = rest
			} else {
				req.Label = text
			}
		} else {
			req.Label = text
		}
	}

	if strings.TrimSpace(req.Label) == "" {
		req.Label = defaultLabel(username)
	}
	req.Label = strings.TrimSpace(req.Label)
	return req
}

func defaultLabel(username string) string {
	name := strings.TrimSpace(username)
	if name == "" {
		return "focus timer"
	}
	return name + "'s timer"
}
