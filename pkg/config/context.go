package config

import "context"

type ContextKey string

const configCtxKey ContextKey = "config"

func ContextWithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configCtxKey, cfg)
}

// FromContext returns the configuration stored in ctx, or the defaults when
// none was attached.
func FromContext(ctx context.Context) *Config {
	if ctx != nil {
		if cfg, ok := ctx.Value(configCtxKey).(*Config); ok && cfg != nil {
			return cfg
		}
	}
	return Default()
}

const serviceCtxKey ContextKey = "config_service"

// ContextWithService keeps the loader that produced the config, so commands
// can report where each value came from.
func ContextWithService(ctx context.Context, svc Service) context.Context {
	return context.WithValue(ctx, serviceCtxKey, svc)
}

func ServiceFromContext(ctx context.Context) Service {
	if ctx != nil {
		if svc, ok := ctx.Value(serviceCtxKey).(Service); ok && svc != nil {
			return svc
		}
	}
	return NewService()
}
