package config_test

import (
	"context"
	"errors"
	"os"
	"runtime"
	"testing"

	"github.com/okian/pitwall/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, "memory")
			convey.So(cfg.JobQueueSize, convey.ShouldEqual, 1_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.TurnParallelism, convey.ShouldEqual, 4)
			convey.So(cfg.TrustedProxies, convey.ShouldBeEmpty)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
				convey.So(cfg.IdempotencySize, convey.ShouldEqual, 10_000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("PITWALL_ADDR", ":8080")
			_ = os.Setenv("PITWALL_WORKER_COUNT", "16")
			_ = os.Setenv("PITWALL_TURN_PARALLELISM", "1")
			_ = os.Setenv("PITWALL_RATE_LIMIT_RPS", "2.5")
			_ = os.Setenv("PITWALL_STORE_DRIVER", "sqlite")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.TurnParallelism, convey.ShouldEqual, 1)
				convey.So(cfg.RateLimitRPS, convey.ShouldEqual, 2.5)
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "pitwall.db")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(`
# session service
addr: ":9090"
job_queue_size: 50
worker_count: 24
inbox_dir: "/var/lib/pitwall/inbox"
log_format: json
`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("PITWALL_CONFIG", tmpFile)
			_ = os.Setenv("PITWALL_WORKER_COUNT", "32")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.JobQueueSize, convey.ShouldEqual, 50)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 32)
				convey.So(cfg.InboxDir, convey.ShouldEqual, "/var/lib/pitwall/inbox")
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("PITWALL_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("PITWALL_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("PITWALL_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an unknown store driver", func() {
			_ = os.Setenv("PITWALL_STORE_DRIVER", "postgres")

			_, err := config.Load(ctx)

			convey.Convey("Then validation rejects it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "store_driver")
			})
		})

		convey.Convey("When the file lists trusted proxies", func() {
			tmpFile := createTempConfigFile(`
trusted_proxies:
  - 10.1.0.0/16
  - 192.168.7.7
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("PITWALL_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then they are loaded", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.TrustedProxies, convey.ShouldResemble, []string{"10.1.0.0/16", "192.168.7.7"})
			})
		})

		convey.Convey("When a trusted proxy entry is not an address", func() {
			tmpFile := createTempConfigFile(`trusted_proxies: ["lb.internal"]`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("PITWALL_CONFIG", tmpFile)

			_, err := config.Load(ctx)

			convey.Convey("Then validation rejects it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "trusted_proxies")
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("PITWALL_WORKER_COUNT", "not_a_number")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, envVar := range []string{
		"PITWALL_CONFIG",
		"PITWALL_ADDR",
		"PITWALL_WORKER_COUNT",
		"PITWALL_TURN_PARALLELISM",
		"PITWALL_RATE_LIMIT_RPS",
		"PITWALL_STORE_DRIVER",
	} {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "pitwall-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
