package log

import (
	"log/slog"
	"net/url"
)

// ScrubbedURL renders rawURL as an slog.Attr with any userinfo masked,
// so remote-backend base URLs (which may embed basic-auth credentials)
// are safe to log.
func ScrubbedURL(name string, rawURL string) slog.Attr {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return slog.String(name, rawURL)
	}

	scrubbed := *u
	scrubbed.User = url.UserPassword("xxx", "xxx")
	return slog.String(name, scrubbed.String())
}
