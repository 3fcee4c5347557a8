package webdavfront

import (
	"log/slog"
	"net/http"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	sloghttp "github.com/samber/slog-http"
	"github.com/zhangzqs/govfs/internal/frontend"
	"github.com/zhangzqs/govfs/internal/ratelimit"
	"github.com/zhangzqs/govfs/pkg/blueprint"
	"golang.org/x/time/rate"
)

// BlueprintType is the component type name used in blueprint
// configurations, per the frontend.webdav {backend, address, port,
// authConfig} schema.
const BlueprintType = "frontend.webdav"

func init() {
	blueprint.RegisterProvider(BlueprintType, CreateServerFromOptions)
}

type UserOptions struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type AuthOptions struct {
	// Scheme is "basic" (default) or "digest".
	Scheme string        `mapstructure:"scheme"`
	Realm  string        `mapstructure:"realm"`
	Users  []UserOptions `mapstructure:"users"`
}

type Options struct {
	Backend    string      `mapstructure:"backend"`
	Address    string      `mapstructure:"address"`
	Port       int         `mapstructure:"port"`
	AuthConfig AuthOptions `mapstructure:"authConfig"`
	// RateLimit is requests per second per remote host; 0 disables the
	// limiter.
	RateLimit float64 `mapstructure:"rateLimit"`
	RateBurst int     `mapstructure:"rateBurst"`
}

func CreateServerFromOptions(config any) (blueprint.Component, error) {
	opts := Options{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &opts,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not create '%s' options decoder", BlueprintType)
	}
	if err := decoder.Decode(config); err != nil {
		return nil, errors.Wrapf(err, "could not parse '%s' options", BlueprintType)
	}

	fs, err := blueprint.CurrentFileSystem(opts.Backend)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve backend component '%s'", opts.Backend)
	}

	logger := slog.Default()

	credentials := Credentials{}
	for _, user := range opts.AuthConfig.Users {
		credentials[user.Username] = user.Password
	}
	authenticator := NewAuthenticator(opts.AuthConfig.Realm, opts.AuthConfig.Scheme, credentials)

	var handler http.Handler = NewHandler(fs, logger)
	handler = frontend.WithRequestContext(logger)(handler)
	handler = authenticator.Middleware(handler)
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = int(opts.RateLimit) * 2
		}
		limiter := ratelimit.New(rate.Limit(opts.RateLimit), burst)
		handler = limiter.Middleware(ratelimit.ByRemoteHost)(handler)
	}
	handler = WithCORS(handler)
	handler = sloghttp.New(logger)(handler)

	return frontend.NewServer(BlueprintType, opts.Address, opts.Port, handler, logger), nil
}
