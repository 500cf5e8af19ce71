// 程序入口：读取配置、加载区域与候选点、驱动解聚引擎并把出行写入各输出端
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"odjitter/internal/config"
	"odjitter/internal/jitter"
	"odjitter/internal/logger"
	"odjitter/internal/metrics"
	"odjitter/internal/migrate"
	"odjitter/internal/odtable"
	"odjitter/internal/sample"
	"odjitter/internal/sink"
	"odjitter/internal/store"
	"odjitter/internal/utils"
	"odjitter/internal/zones"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const usage = `usage: odjitter <jitter|disaggregate> [flags]

  jitter        split each OD row into trips of at most -disaggregation-threshold
  disaggregate  one trip per unit of each -modes column

run "odjitter <command> -h" for the flag list`

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	cmd := os.Args[1]
	if cmd != "jitter" && cmd != "disaggregate" {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	cfg, err := config.Load(cmd, os.Args[2:], os.Getenv)
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(2)
	}
	l = logger.Configure(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(cmd == "disaggregate"); err != nil {
		l.Error("config_error", "err", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", logger.AccessMiddleware(l)(metrics.Handler()))
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.Error("metrics_listen_error", "err", err)
			}
		}()
		defer srv.Close()
		l.Info("metrics_listen", "addr", cfg.MetricsAddr)
	}

	if err := run(ctx, cmd, cfg); err != nil {
		l.Error("run_error", "cmd", cmd, "err", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, cfg config.Config) error {
	l := logger.L()
	runID := uuid.NewString()
	l = l.With("run_id", runID)

	reg, err := zones.LoadZones(cfg.Zones, cfg.ZoneNameKey)
	if err != nil {
		return err
	}
	origin, destination, err := strategies(cfg)
	if err != nil {
		return err
	}
	eng, err := jitter.NewEngine(reg, cfg.EngineOptions(origin, destination))
	if err != nil {
		return err
	}
	rows, err := odtable.Open(cfg.ODCSV)
	if err != nil {
		return err
	}
	defer rows.Close()
	l.Debug("od_table_open", "path", cfg.ODCSV, "columns", rows.Header())

	out, err := sink.Create(cfg.Output)
	if err != nil {
		return err
	}
	sinks := []jitter.Sink{sink.Instrument("geojson", out)}
	if cfg.Postgres {
		db, err := utils.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			out.Close()
			return fmt.Errorf("postgres: %w", err)
		}
		st := store.AttachDB(db)
		defer st.Close()
		if err := migrate.EnsureSchema(db); err != nil {
			out.Close()
			return fmt.Errorf("postgres schema: %w", err)
		}
		if err := st.BeginRun(ctx, runID, cfg.Summary()); err != nil {
			out.Close()
			return fmt.Errorf("postgres run: %w", err)
		}
		l.Info("postgres_sink_ready", "batch", cfg.PostgresBatch)
		sinks = append(sinks, sink.Instrument("postgres", sink.NewPostgres(st, runID, cfg.PostgresBatch)))
	}
	if cfg.RedisStream != "" {
		rc := utils.OpenRedisFromEnv()
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			out.Close()
			return fmt.Errorf("redis: %w", err)
		}
		l.Info("redis_sink_ready", "stream", cfg.RedisStream)
		sinks = append(sinks, sink.Instrument("redis", sink.NewRedisStream(rc, cfg.RedisStream, runID, cfg.RedisMaxLen)))
	}
	tee := sink.NewTee(sinks...)

	rng := newRand(cfg.RNGSeed)
	l.Info("run_begin", "cmd", cmd, "zones", reg.Len(), "output", cfg.Output)
	start := time.Now()
	var st jitter.Stats
	if cmd == "disaggregate" {
		st, err = eng.Disaggregate(ctx, rows, rng, cfg.Modes, tee)
	} else {
		st, err = eng.Jitter(ctx, rows, rng, tee)
	}
	if err != nil {
		tee.Abort(err)
	}
	if cerr := tee.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	l.Info("run_done", "trips", st.Trips, "ms", time.Since(start).Milliseconds())
	return nil
}

// 文档注释：两端取点策略
// 约束：同一文件只加载一次，两端共用时引擎只建一份索引。
func strategies(cfg config.Config) (sample.Strategy, sample.Strategy, error) {
	oKind, dKind, err := cfg.SubsampleKinds()
	if err != nil {
		return sample.Strategy{}, sample.Strategy{}, err
	}
	op, dp := cfg.SubpointPaths()
	loaded := map[string][]zones.CandidatePoint{}
	build := func(kind sample.Kind, path string) (sample.Strategy, error) {
		if kind == sample.Random {
			return sample.Strategy{Kind: sample.Random}, nil
		}
		pts, hit := loaded[path]
		if !hit {
			var err error
			if pts, err = zones.ScrapePoints(path, cfg.WeightKey); err != nil {
				return sample.Strategy{}, err
			}
			loaded[path] = pts
		}
		return sample.Strategy{Kind: sample.Weighted, Points: pts}, nil
	}
	o, err := build(oKind, op)
	if err != nil {
		return o, o, err
	}
	d, err := build(dKind, dp)
	if err != nil {
		return o, d, err
	}
	logger.L().Info("subsample_strategy", "origin", oKind.String(), "destination", dKind.String())
	return o, d, nil
}

// newRand：给定种子时输出可复现，否则取随机种子
func newRand(seed *uint64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewPCG(*seed, *seed))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
