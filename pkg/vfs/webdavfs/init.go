package webdavfs

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/pkg/blueprint"
	"github.com/zhangzqs/govfs/pkg/log"
	"github.com/zhangzqs/govfs/pkg/vfs"
)

const Type vfs.Type = "webdav"

// BlueprintType is the component type name used in blueprint
// configurations, per the backend.webdav schema.
const BlueprintType = "backend.webdav"

func init() {
	vfs.Register(Type, CreateFileSystemFromOptions)
	blueprint.RegisterProvider(BlueprintType, blueprint.FileSystemProvider(CreateFileSystemFromOptions))
}

type HTTPOptions struct {
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
	ReceiveTimeout time.Duration `mapstructure:"receiveTimeout"`
	SendTimeout    time.Duration `mapstructure:"sendTimeout"`
}

type Options struct {
	BaseURL     string      `mapstructure:"baseUrl"`
	Username    string      `mapstructure:"username"`
	Password    string      `mapstructure:"password"`
	BearerToken string      `mapstructure:"bearerToken"`
	// AuthScheme selects "basic" (the default) or "digest" when
	// credentials are set.
	AuthScheme  string      `mapstructure:"authScheme"`
	HTTPOptions HTTPOptions `mapstructure:"httpOptions"`
}

func CreateFileSystemFromOptions(options any) (vfs.FileSystem, error) {
	opts := Options{}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &opts,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not create '%s' filesystem options decoder", Type)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, errors.Wrapf(err, "could not parse '%s' filesystem options", Type)
	}

	baseURL, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid baseUrl '%s'", opts.BaseURL)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, errors.Errorf("baseUrl '%s' must use http or https", opts.BaseURL)
	}

	httpOpts := opts.HTTPOptions
	if httpOpts.ConnectTimeout <= 0 {
		httpOpts.ConnectTimeout = 10 * time.Second
	}
	if httpOpts.ReceiveTimeout <= 0 {
		httpOpts.ReceiveTimeout = 30 * time.Second
	}
	if httpOpts.SendTimeout <= 0 {
		httpOpts.SendTimeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: httpOpts.ConnectTimeout,
			}).DialContext,
			ResponseHeaderTimeout: httpOpts.ReceiveTimeout,
			ExpectContinueTimeout: httpOpts.SendTimeout,
		},
	}

	var auth authenticator
	switch {
	case opts.BearerToken != "":
		auth = &bearerAuth{token: opts.BearerToken}
	case opts.Username != "" && opts.AuthScheme == "digest":
		auth = newDigestAuth(opts.Username, opts.Password)
	case opts.Username != "":
		auth = &basicAuth{username: opts.Username, password: opts.Password}
	}

	// The configured base URL may carry credentials; scrub before it
	// reaches the logs.
	slog.Debug("webdav filesystem configured",
		log.ScrubbedURL("baseUrl", opts.BaseURL),
		slog.String("authScheme", opts.AuthScheme),
	)

	return NewFileSystem(baseURL, httpClient, auth), nil
}
