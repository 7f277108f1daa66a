package decode

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// parenRe matches trailing timezone-name annotations like "(UTC)" or
// "(Coordinated Universal Time)" that break strict date parsers.
var parenRe = regexp.MustCompile(`\s*\([^)]*\)`)

// isoLayouts are tried before mail-style parsing; some providers hand back
// ISO timestamps instead of RFC 2822 dates.
var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate resolves a free-text date header to a valid time. The ladder is
// strip parentheticals, strict ISO-8601, RFC 2822, then "now": a message
// never carries an unparsed raw string as its timestamp.
func (d *Decoder) ParseDate(raw string) time.Time {
	if strings.TrimSpace(raw) == "" {
		return time.Now()
	}

	cleaned := strings.TrimSpace(parenRe.ReplaceAllString(raw, ""))

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t
		}
	}

	if t, err := mail.ParseDate(cleaned); err == nil {
		return t
	}

	d.logger.Debug("Unparseable date header, falling back to now", zap.String("raw", raw))
	return time.Now()
}
