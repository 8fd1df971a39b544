package service_test

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/okian/pitwall/internal/adapters/repository"
	service "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/internal/domain/preferences"
	"github.com/okian/pitwall/internal/domain/recovery"
	"github.com/okian/pitwall/internal/domain/session"
	"github.com/okian/pitwall/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

const yamlSession = `
metadata: {track: COTA, session: FP3}
targets:
  balance_goal: {entry_oversteer_index: 0, mid_oversteer_index: 0, exit_oversteer_index: 0}
  stability_goal: {brake_locking_risk_front: 0, brake_locking_risk_rear: 0, traction_loss_index: 0, porpoising_amplitude_mm: 0}
  tyre_goal: {surface_temp_target_c: 100}
turns:
  - turn_id: t1
initial_setup:
  brakes: {brake_bias_percent_front: 55.6}
`

func fixture(t *testing.T) []byte {
	t.Helper()
	raw, err := os.ReadFile("../../testdata/cota_fp2.json")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return raw
}

func started(t *testing.T, opts ...service.Option) *service.Service {
	t.Helper()
	opts = append([]service.Option{service.WithLogger(logger.Nop())}, opts...)
	svc := service.New(opts...)
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

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it reports defaults before starting", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["store"], ShouldEqual, "memory")
			So(stats["queueSize"], ShouldEqual, 1_000)
			So(stats["turnParallelism"], ShouldEqual, 4)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(8),
			service.WithQueueSize(50),
			service.WithIdempotencySize(25),
			service.WithTurnParallelism(1),
			service.WithStoreDriver("sqlite", "x.db"),
			service.WithInboxDir("/tmp/inbox"),
		)

		Convey("Then the options are applied", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 8)
			So(stats["queueSize"], ShouldEqual, 50)
			So(stats["idempotencySize"], ShouldEqual, 25)
			So(stats["turnParallelism"], ShouldEqual, 1)
			So(stats["store"], ShouldEqual, "sqlite")
			So(stats["inboxDir"], ShouldEqual, "/tmp/inbox")
		})

		Convey("Then non-positive sizes keep the defaults", func() {
			stats := service.New(service.WithQueueSize(0), service.WithWorkerCount(-1)).GetStats()
			So(stats["queueSize"], ShouldEqual, 1_000)
			So(stats["workerCount"], ShouldEqual, 4)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithLogger(logger.Nop()), service.WithWorkerCount(2))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Convey("When it is used before Start", func() {
			_, err := svc.ListSessions(ctx)

			Convey("Then store-backed operations fail", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})

			Convey("Then inline optimization still works", func() {
				res, err := svc.Optimize(ctx, fixture(t), false, nil)
				So(err, ShouldBeNil)
				So(res.OptimizedSetup, ShouldNotBeNil)
			})
		})

		Convey("When starting and stopping the service", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["workers"], ShouldEqual, 2)
			So(stats["sessions"], ShouldEqual, 0)

			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then it is marked as stopped and Stop is idempotent", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(svc.Stop(ctx), ShouldBeNil)
			})
		})

		Convey("When the store driver is unknown", func() {
			bad := service.New(service.WithLogger(logger.Nop()), service.WithStoreDriver("postgres", ""))
			err := bad.Start(ctx)

			Convey("Then Start fails", func() {
				So(errors.Is(err, repository.ErrUnknownDriver), ShouldBeTrue)
				So(bad.GetStats()["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_Optimize(t *testing.T) {
	Convey("Given a service", t, func() {
		svc := started(t)
		ctx := context.Background()

		Convey("When optimizing the reference session", func() {
			res, err := svc.Optimize(ctx, fixture(t), false, nil)

			Convey("Then preferences come from the document", func() {
				So(err, ShouldBeNil)
				So(res.Diagnostics.Preferences.StabilityBias, ShouldEqual, 0.8)
				So(res.Diagnostics.PerTurnWeights, ShouldNotBeEmpty)
			})

			Convey("Then brake bias stays inside its absolute limit", func() {
				So(err, ShouldBeNil)
				bias := res.OptimizedSetup.Number("brakes", "brake_bias_percent_front")
				So(bias.Valid, ShouldBeTrue)
				So(bias.Float64, ShouldBeBetweenOrEqual, 53.0, 58.5)
			})
		})

		Convey("When inline preferences are supplied", func() {
			res, err := svc.Optimize(ctx, fixture(t), false, []byte(`{"stability_bias": 0.3}`))

			Convey("Then they overlay the document defaults", func() {
				So(err, ShouldBeNil)
				So(res.Diagnostics.Preferences.StabilityBias, ShouldEqual, 0.3)
				So(res.Diagnostics.Preferences.Aggression, ShouldAlmostEqual, 0.29, 1e-9)
			})
		})

		Convey("When the preferences are not JSON", func() {
			_, err := svc.Optimize(ctx, fixture(t), false, []byte(`nope`))

			Convey("Then the submission is rejected", func() {
				So(errors.Is(err, preferences.ErrInvalidSubmission), ShouldBeTrue)
			})
		})

		Convey("When the document has no targets", func() {
			_, err := svc.Optimize(ctx, []byte(`{"metadata": {}, "turns": [{}], "initial_setup": {}}`), false, nil)

			Convey("Then a schema error is returned", func() {
				So(errors.Is(err, session.ErrSchema), ShouldBeTrue)
			})
		})
	})
}

func TestService_Sessions(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := started(t)
		ctx := context.Background()

		Convey("When a JSON session is created", func() {
			sum, err := svc.CreateSession(ctx, fixture(t), false)
			So(err, ShouldBeNil)

			Convey("Then it is listed with its metadata", func() {
				So(sum.ID, ShouldNotBeEmpty)
				So(sum.Track, ShouldEqual, "austin_cota")
				So(sum.Session, ShouldEqual, "fp2")
				list, err := svc.ListSessions(ctx)
				So(err, ShouldBeNil)
				So(list, ShouldHaveLength, 1)
				So(list[0].ID, ShouldEqual, sum.ID)
			})

			Convey("Then stored preferences drive later optimizations", func() {
				receipt, err := svc.SubmitPreferences(ctx, sum.ID, []byte(`{"stability_bias": 0.2, "sensitivities": {"diff": 1.5}}`))
				So(err, ShouldBeNil)
				So(receipt.ID, ShouldNotBeEmpty)
				So(receipt.SessionID, ShouldEqual, sum.ID)
				So(receipt.Preferences.DiffSensitivity, ShouldEqual, 1.5)

				res, err := svc.OptimizeSession(ctx, sum.ID)
				So(err, ShouldBeNil)
				So(res.Diagnostics.Preferences.StabilityBias, ShouldEqual, 0.2)
				So(res.Diagnostics.Preferences.DiffSensitivity, ShouldEqual, 1.5)
			})

			Convey("Then the session optimizes with document preferences when none were submitted", func() {
				res, err := svc.OptimizeSession(ctx, sum.ID)
				So(err, ShouldBeNil)
				So(res.Diagnostics.Preferences.StabilityBias, ShouldEqual, 0.8)
			})
		})

		Convey("When a YAML session is created", func() {
			sum, err := svc.CreateSession(ctx, []byte(yamlSession), true)
			So(err, ShouldBeNil)

			Convey("Then it is stored as JSON", func() {
				rec, err := svc.GetSession(ctx, sum.ID)
				So(err, ShouldBeNil)
				_, err = session.Decode(rec.Document)
				So(err, ShouldBeNil)
				So(rec.Track, ShouldEqual, "COTA")
			})

			Convey("Then optimizing it reports the turn without telemetry", func() {
				_, err := svc.OptimizeSession(ctx, sum.ID)
				So(errors.Is(err, session.ErrMalformedTurn), ShouldBeTrue)
			})
		})

		Convey("When an invalid session is created", func() {
			_, err := svc.CreateSession(ctx, []byte(`{"metadata": {}}`), false)

			Convey("Then nothing is stored", func() {
				So(errors.Is(err, session.ErrSchema), ShouldBeTrue)
				list, _ := svc.ListSessions(ctx)
				So(list, ShouldBeEmpty)
			})
		})

		Convey("When unknown sessions are used", func() {
			_, errGet := svc.GetSession(ctx, "ghost")
			_, errPrefs := svc.SubmitPreferences(ctx, "ghost", []byte(`{}`))
			_, errOpt := svc.OptimizeSession(ctx, "ghost")
			_, errJob := svc.SubmitJob(ctx, "ghost", "")

			Convey("Then every call reports not found", func() {
				So(errors.Is(errGet, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(errPrefs, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(errOpt, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(errJob, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a session is imported twice under one id", func() {
			So(svc.ImportSession(ctx, "cota", fixture(t), false), ShouldBeNil)
			So(svc.ImportSession(ctx, "cota", []byte(yamlSession), true), ShouldBeNil)

			Convey("Then the later document replaces the first", func() {
				rec, err := svc.GetSession(ctx, "cota")
				So(err, ShouldBeNil)
				So(rec.Session, ShouldEqual, "FP3")
			})
		})
	})
}

func TestService_RecoveryReport(t *testing.T) {
	Convey("Given a service", t, func() {
		svc := service.New(service.WithLogger(logger.Nop()))
		ctx := context.Background()

		Convey("When a hot race is reported", func() {
			report, err := svc.RecoveryReport(ctx, []byte(`{
				"driver_id": "d1",
				"cockpit_temp_c": 55,
				"hpc_race_summary_estimates": {"estimated_total_fluid_loss_l": 3.0}
			}`))

			Convey("Then dehydration is the first finding", func() {
				So(err, ShouldBeNil)
				So(report.DriverID, ShouldEqual, "d1")
				So(report.PriorityRecoveryPlan[0].Severity, ShouldEqual, recovery.SeverityHigh)
			})
		})

		Convey("When the race data is malformed", func() {
			_, err := svc.RecoveryReport(ctx, []byte(`[1, 2]`))

			Convey("Then it is rejected", func() {
				So(errors.Is(err, recovery.ErrInvalidRaceData), ShouldBeTrue)
			})
		})
	})
}
