package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	app "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/internal/config"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

func clearEnv() {
	for _, k := range []string{"PITWALL_ADDR", "PITWALL_JOB_QUEUE_SIZE", "PITWALL_WORKER_COUNT", "PITWALL_RATE_LIMIT_RPS", "PITWALL_RATE_LIMIT_BURST", "PITWALL_MAX_BODY_BYTES", "PITWALL_CONFIG"} {
		_ = os.Unsetenv(k)
	}
}

func startedService(t *testing.T, cfg *config.Config) *app.Service {
	t.Helper()
	svc := newService(cfg, logger.Nop())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Stop(ctx)
	})
	return svc
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		clearEnv()
		defer clearEnv()

		convey.Convey("When configuration comes from the environment", func() {
			_ = os.Setenv("PITWALL_ADDR", ":8080")
			_ = os.Setenv("PITWALL_JOB_QUEUE_SIZE", "64")
			_ = os.Setenv("PITWALL_WORKER_COUNT", "3")

			convey.Convey("Then it is mapped onto the service", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")

				stats := newService(cfg, logger.Nop()).GetStats()
				convey.So(stats["queueSize"], convey.ShouldEqual, 64)
				convey.So(stats["workerCount"], convey.ShouldEqual, 3)
				convey.So(stats["store"], convey.ShouldEqual, "memory")
			})
		})

		convey.Convey("When the configuration is invalid", func() {
			_ = os.Setenv("PITWALL_ADDR", " ")

			convey.Convey("Then loading fails", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestHandler(t *testing.T) {
	convey.Convey("Given the composed HTTP handler", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		cfg.RateLimitRPS = 0
		svc := startedService(t, cfg)
		handler, closeHandler := newHandler(ctx, cfg, svc)
		defer closeHandler()

		fixture, err := os.ReadFile("../testdata/cota_fp2.json")
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When a session is stored and optimized", func() {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(fixture)))
			convey.So(rec.Code, convey.ShouldEqual, http.StatusCreated)

			var created struct {
				SessionID string `json:"session_id"`
			}
			convey.So(json.Unmarshal(rec.Body.Bytes(), &created), convey.ShouldBeNil)

			rec = httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sessions/"+created.SessionID+"/optimize", nil))

			convey.Convey("Then the result carries the optimized setup", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, `"optimized_setup"`)
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, `"per_turn_weights"`)
			})
		})

		convey.Convey("When the docs and health routes are requested", func() {
			for _, path := range []string{"/healthz", "/stats", "/metrics", "/openapi.yaml", "/api-docs"} {
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			}
		})
	})

	convey.Convey("Given a handler with a small body limit and a strict rate limit", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		cfg.MaxBodyBytes = 64
		cfg.RateLimitRPS = 1
		cfg.RateLimitBurst = 1
		svc := startedService(t, cfg)
		handler, closeHandler := newHandler(ctx, cfg, svc)
		defer closeHandler()

		convey.Convey("When a large body is posted", func() {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(bytes.Repeat([]byte("x"), 1024))))

			convey.Convey("Then it is rejected as too large", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusRequestEntityTooLarge)
			})

			convey.Convey("Then the next request from the same client is rate limited", func() {
				again := httptest.NewRecorder()
				handler.ServeHTTP(again, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
				convey.So(again.Code, convey.ShouldEqual, http.StatusTooManyRequests)
			})
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When the metrics updaters run until their context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			svc := app.New(app.WithLogger(logger.Nop()))

			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
			convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("When metrics are refreshed directly", func() {
			svc := app.New(app.WithLogger(logger.Nop()))

			convey.Convey("Then nothing panics, started or not", func() {
				convey.So(updateSystemMetrics, convey.ShouldNotPanic)
				convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When a metrics manager is created on its own registry", func() {
			manager := metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))
			convey.So(manager, convey.ShouldNotBeNil)
		})
	})
}
