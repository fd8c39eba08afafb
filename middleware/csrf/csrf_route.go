package csrf

import "github.com/goliatone/go-router"

// RouteConfig controls the token bootstrap endpoint
type RouteConfig struct {
	Path       string
	ContextKey string
	RouteName  string
}

const (
	defaultRoutePath = "/account/csrf"
	defaultRouteName = "account.csrf"
)

// RegisterRoutes registers a GET endpoint that returns the token issued by
// the middleware. Clients call it again after signing in since tokens are
// bound to the session cookie.
func RegisterRoutes[T any](app router.Router[T], cfg ...RouteConfig) {
	conf := routeConfigDefault(cfg...)
	app.Get(conf.Path, tokenHandler(conf)).SetName(conf.RouteName)
}

func routeConfigDefault(cfg ...RouteConfig) RouteConfig {
	conf := RouteConfig{
		Path:       defaultRoutePath,
		ContextKey: DefaultContextKey,
		RouteName:  defaultRouteName,
	}
	if len(cfg) == 0 {
		return conf
	}

	c := cfg[0]
	if c.Path != "" {
		conf.Path = c.Path
	}
	if c.ContextKey != "" {
		conf.ContextKey = c.ContextKey
	}
	if c.RouteName != "" {
		conf.RouteName = c.RouteName
	}
	return conf
}

func tokenHandler(cfg RouteConfig) router.HandlerFunc {
	return func(ctx router.Context) error {
		token, _ := ctx.Locals(cfg.ContextKey).(string)
		if token == "" {
			return defaultErrorHandler(ctx, ErrTokenMissing)
		}

		ctx.SetHeader("Cache-Control", "no-store, max-age=0")

		return ctx.JSON(router.StatusOK, map[string]string{
			"token":       token,
			"field_name":  DefaultFormFieldName,
			"header_name": DefaultHeaderName,
		})
	}
}
