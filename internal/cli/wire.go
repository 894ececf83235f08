package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"grievance-chat/internal/api"
	"grievance-chat/internal/config"
	"grievance-chat/internal/metrics"
	"grievance-chat/internal/observability"
	"grievance-chat/internal/session"
)

var errNotLoggedIn = errors.New("not logged in; run `grievance-chat login` first")

type app struct {
	cfg     config.Config
	sess    *session.Session
	client  *api.Client
	dialer  *websocket.Dialer
	now     func() time.Time
	closers []func() error
}

func (a *app) wire(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	observability.SetLevel(cfg.LogLevel)

	store, err := a.openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("wire session store: %w", err)
	}
	sess := session.New(store)
	if _, err := sess.Restore(ctx); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	client, err := api.New(cfg.APIURL, sess, api.Options{Logger: observability.Logger()})
	if err != nil {
		return fmt.Errorf("wire api client: %w", err)
	}

	if cfg.MetricsAddr != "" {
		if err := a.serveMetrics(cfg.MetricsAddr); err != nil {
			return err
		}
	}

	a.cfg = cfg
	a.sess = sess
	a.client = client
	a.dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment}
	a.now = time.Now
	return nil
}

func (a *app) openStore(ctx context.Context, cfg config.Config) (session.Store, error) {
	switch cfg.SessionBackend {
	case config.BackendMemory:
		return session.NewMemoryStore(), nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
		}
		a.closers = append(a.closers, rdb.Close)
		return session.NewRedisStore(rdb, cfg.Profile), nil
	default:
		path := cfg.SessionFile
		if path == "" {
			var err error
			if path, err = session.DefaultFilePath(cfg.Profile); err != nil {
				return nil, err
			}
		}
		return session.NewFileStore(path), nil
	}
}

func (a *app) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen for metrics on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			observability.Logger().Warn("metrics server stopped", "err", err)
		}
	}()
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	return nil
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// authorize requires a session and swaps an expired access token for a fresh
// one when a refresh token is available.
func (a *app) authorize(ctx context.Context) error {
	if !a.sess.Authenticated() {
		return errNotLoggedIn
	}
	if !a.sess.Expired(a.now()) {
		return nil
	}
	refresh := a.sess.RefreshToken()
	if refresh == "" {
		return fmt.Errorf("session expired: %w", errNotLoggedIn)
	}
	pair, err := a.client.Refresh(ctx, refresh)
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	_, err = a.sess.Login(ctx, session.Tokens{Access: pair.Access, Refresh: pair.Refresh})
	return err
}
