package utils

import (
	"net/url"
	"regexp"
)

var (
	dsnPasswordRegex = regexp.MustCompile(`(:)([^:@]+)(@)`)
	escapedMask      = regexp.MustCompile(`%2A%2A%2A@`)
)

// MaskDSN hides the password in a connection URL (postgres, redis, amqp,
// nats) so it can be logged. URLs that do not parse fall back to masking the
// first ":secret@" span.
func MaskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsnPasswordRegex.ReplaceAllString(dsn, ":***@")
	}
	if _, ok := u.User.Password(); !ok {
		return dsn
	}
	u.User = url.UserPassword(u.User.Username(), "***")
	// url.String escapes the placeholder
	return escapedMask.ReplaceAllString(u.String(), "***@")
}
