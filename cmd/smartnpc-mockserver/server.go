package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/smartnpc/smartnpc-go/pkg/audioclip"
	"github.com/smartnpc/smartnpc-go/pkg/history"
	"github.com/smartnpc/smartnpc-go/pkg/mockserver"
)

var defaultCORSConfig = middleware.CORSConfig{
	AllowOrigins: []string{"*"},
	AllowMethods: []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodDelete,
		http.MethodOptions,
	},
	AllowHeaders: []string{
		"Accept",
		"Content-Type",
		"X-Requested-With",
	},
	MaxAge: 86400,
}

func ProvideLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func ProvideHistory(lc fx.Lifecycle, cfg *Config, logger *slog.Logger) (history.Store, error) {
	var (
		store history.Store
		err   error
	)
	switch {
	case cfg.RedisAddr != "":
		store = history.NewRedis(redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}), "smartnpc-mock:")
		logger.Info("history in redis", "addr", cfg.RedisAddr)
	case cfg.HistoryDir != "":
		store, err = history.NewBadger(history.BadgerOptions{Dir: cfg.HistoryDir})
		if err != nil {
			return nil, err
		}
		logger.Info("history in badger", "dir", cfg.HistoryDir)
	default:
		store = history.NewMemory()
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

func ProvideMockServer(lc fx.Lifecycle, cfg *Config, store history.Store, logger *slog.Logger) (*mockserver.Server, error) {
	mc := mockserver.Config{
		Keys:       cfg.Keys,
		History:    store,
		WordDelay:  cfg.WordDelay,
		Transcript: cfg.Transcript,
		SpeechIdle: cfg.SpeechIdle,
		Logger:     logger,
	}
	if cfg.CharactersFile != "" {
		chars, err := loadCharacters(cfg.CharactersFile)
		if err != nil {
			return nil, err
		}
		mc.Characters = chars
	}
	if cfg.Voice == "tone" {
		mc.Voice = mockserver.ToneWAV(440, 120*time.Millisecond, audioclip.Format{SampleRate: 24000})
	}
	s := mockserver.New(mc)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return s.Close()
		},
	})
	return s, nil
}

func NewEchoServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(defaultCORSConfig))
	return e
}

func RegisterRoutes(e *echo.Echo, s *mockserver.Server) {
	s.RegisterRoutes(e)
}

func StartServer(lc fx.Lifecycle, e *echo.Echo, cfg *Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("mock server listening", "addr", cfg.ServerAddr)
			go func() {
				if err := e.Start(cfg.ServerAddr); err != nil && err != http.ErrServerClosed {
					e.Logger.Fatal(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}

var ServerModule = fx.Options(
	fx.Provide(
		ProvideLogger,
		ProvideHistory,
		ProvideMockServer,
		NewEchoServer,
	),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(StartServer),
)
