// 包 config：运行参数；优先级 默认值 < YAML 文件 < 环境变量 < 显式命令行参数
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"odjitter/internal/jitter"
	"odjitter/internal/sample"

	"github.com/goccy/go-yaml"
)

type Config struct {
	ODCSV                   string   `yaml:"od_csv" json:"od_csv"`
	Zones                   string   `yaml:"zones" json:"zones"`
	ZoneNameKey             string   `yaml:"zone_name_key" json:"zone_name_key"`
	Subpoints               string   `yaml:"subpoints" json:"subpoints,omitempty"`
	SubpointsOrigins        string   `yaml:"subpoints_origins" json:"subpoints_origins,omitempty"`
	SubpointsDestinations   string   `yaml:"subpoints_destinations" json:"subpoints_destinations,omitempty"`
	WeightKey               string   `yaml:"weight_key" json:"weight_key,omitempty"`
	SubsampleOrigin         string   `yaml:"subsample_origin" json:"subsample_origin,omitempty"`
	SubsampleDestination    string   `yaml:"subsample_destination" json:"subsample_destination,omitempty"`
	Output                  string   `yaml:"output" json:"output"`
	DisaggregationThreshold int      `yaml:"disaggregation_threshold" json:"disaggregation_threshold"`
	DisaggregationKey       string   `yaml:"disaggregation_key" json:"disaggregation_key"`
	OriginKey               string   `yaml:"origin_key" json:"origin_key"`
	DestinationKey          string   `yaml:"destination_key" json:"destination_key"`
	MinDistanceMeters       float64  `yaml:"min_distance_meters" json:"min_distance_meters"`
	DeduplicatePairs        bool     `yaml:"deduplicate_pairs" json:"deduplicate_pairs"`
	DedupScope              string   `yaml:"dedup_scope" json:"dedup_scope"`
	MaxSamplingAttempts     int      `yaml:"max_sampling_attempts" json:"max_sampling_attempts"`
	SubsamplerCacheSize     int      `yaml:"subsampler_cache_size" json:"-"`
	RNGSeed                 *uint64  `yaml:"rng_seed" json:"rng_seed,omitempty"`
	Modes                   []string `yaml:"modes" json:"modes,omitempty"`
	Postgres                bool     `yaml:"postgres" json:"-"`
	PostgresDSN             string   `yaml:"postgres_dsn" json:"-"`
	PostgresBatch           int      `yaml:"postgres_batch" json:"-"`
	RedisStream             string   `yaml:"redis_stream" json:"-"`
	RedisMaxLen             int64    `yaml:"redis_max_len" json:"-"`
	MetricsAddr             string   `yaml:"metrics_addr" json:"-"`
	LogLevel                string   `yaml:"log_level" json:"-"`
	LogFormat               string   `yaml:"log_format" json:"-"`
}

// Default：与原命令行工具一致的默认值
func Default() Config {
	return Config{
		ZoneNameKey:         "InterZone",
		Output:              "-",
		DisaggregationKey:   "all",
		OriginKey:           "geo_code1",
		DestinationKey:      "geo_code2",
		MinDistanceMeters:   1.0,
		DedupScope:          string(jitter.DedupRun),
		MaxSamplingAttempts: 10000,
		SubsamplerCacheSize: 4096,
		PostgresBatch:       5000,
		RedisMaxLen:         1000000,
	}
}

// LoadFile：把 YAML 文件覆盖到 c 上；未知字段报错
func LoadFile(path string, c *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.UnmarshalWithOptions(b, c, yaml.DisallowUnknownField()); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// 文档注释：环境变量覆盖
// 约束：解聚参数使用 ODJ_ 前缀；METRICS_ADDR / LOG_LEVEL / LOG_FORMAT 沿用进程级名称；数值解析失败返回错误。
func ApplyEnv(c *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, set func(string) error) {
		if v := getenv(key); v != "" {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: %w", key, v, err))
			}
		}
	}
	str("ODJ_OD_CSV", &c.ODCSV)
	str("ODJ_ZONES", &c.Zones)
	str("ODJ_ZONE_NAME_KEY", &c.ZoneNameKey)
	str("ODJ_SUBPOINTS", &c.Subpoints)
	str("ODJ_WEIGHT_KEY", &c.WeightKey)
	str("ODJ_SUBSAMPLE_ORIGIN", &c.SubsampleOrigin)
	str("ODJ_SUBSAMPLE_DESTINATION", &c.SubsampleDestination)
	str("ODJ_OUTPUT", &c.Output)
	str("ODJ_DISAGGREGATION_KEY", &c.DisaggregationKey)
	str("ODJ_ORIGIN_KEY", &c.OriginKey)
	str("ODJ_DESTINATION_KEY", &c.DestinationKey)
	str("ODJ_DEDUP_SCOPE", &c.DedupScope)
	str("ODJ_REDIS_STREAM", &c.RedisStream)
	str("METRICS_ADDR", &c.MetricsAddr)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	num("ODJ_DISAGGREGATION_THRESHOLD", func(v string) (err error) {
		c.DisaggregationThreshold, err = strconv.Atoi(v)
		return
	})
	num("ODJ_MIN_DISTANCE_METERS", func(v string) (err error) {
		c.MinDistanceMeters, err = strconv.ParseFloat(v, 64)
		return
	})
	num("ODJ_DEDUPLICATE_PAIRS", func(v string) (err error) {
		c.DeduplicatePairs, err = strconv.ParseBool(v)
		return
	})
	num("ODJ_MAX_SAMPLING_ATTEMPTS", func(v string) (err error) {
		c.MaxSamplingAttempts, err = strconv.Atoi(v)
		return
	})
	num("ODJ_RNG_SEED", func(v string) error { return c.setSeed(v) })
	num("ODJ_POSTGRES", func(v string) (err error) {
		c.Postgres, err = strconv.ParseBool(v)
		return
	})
	return errors.Join(errs...)
}

func (c *Config) setSeed(v string) error {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return err
	}
	c.RNGSeed = &n
	return nil
}

// RegisterFlags：以当前值为默认值注册命令行参数，解析后即覆盖
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ODCSV, "od-csv", c.ODCSV, "path to a CSV file with aggregated origin/destination data")
	fs.StringVar(&c.Zones, "zones", c.Zones, "path to a GeoJSON file with named zones")
	fs.StringVar(&c.ZoneNameKey, "zone-name-key", c.ZoneNameKey, "zone property holding the zone name")
	fs.StringVar(&c.Subpoints, "subpoints", c.Subpoints, "GeoJSON file with candidate points for both origins and destinations")
	fs.StringVar(&c.SubpointsOrigins, "subpoints-origins", c.SubpointsOrigins, "GeoJSON file with candidate points for origins only")
	fs.StringVar(&c.SubpointsDestinations, "subpoints-destinations", c.SubpointsDestinations, "GeoJSON file with candidate points for destinations only")
	fs.StringVar(&c.WeightKey, "weight-key", c.WeightKey, "numeric subpoint property used as sampling weight")
	fs.StringVar(&c.SubsampleOrigin, "subsample-origin", c.SubsampleOrigin, "origin sampling: random_in_polygon or weighted_pool (default: weighted_pool when origin subpoints are given)")
	fs.StringVar(&c.SubsampleDestination, "subsample-destination", c.SubsampleDestination, "destination sampling: random_in_polygon or weighted_pool (default: weighted_pool when destination subpoints are given)")
	fs.StringVar(&c.Output, "output", c.Output, "output path (.geojson, .geojsonl, or - for stdout)")
	fs.IntVar(&c.DisaggregationThreshold, "disaggregation-threshold", c.DisaggregationThreshold, "maximum demand per output trip")
	fs.StringVar(&c.DisaggregationKey, "disaggregation-key", c.DisaggregationKey, "column holding the total demand")
	fs.StringVar(&c.OriginKey, "origin-key", c.OriginKey, "column holding the origin zone")
	fs.StringVar(&c.DestinationKey, "destination-key", c.DestinationKey, "column holding the destination zone")
	fs.Float64Var(&c.MinDistanceMeters, "min-distance-meters", c.MinDistanceMeters, "minimum great-circle distance between trip ends")
	fs.BoolVar(&c.DeduplicatePairs, "deduplicate-pairs", c.DeduplicatePairs, "never emit the same origin/destination coordinate pair twice")
	fs.StringVar(&c.DedupScope, "dedup-scope", c.DedupScope, "uniqueness scope: row or run")
	fs.IntVar(&c.MaxSamplingAttempts, "max-sampling-attempts", c.MaxSamplingAttempts, "pair draws per trip before failing (0 = unbounded)")
	fs.Func("rng-seed", "seed for deterministic output (default: random)", c.setSeed)
	fs.Func("modes", "comma-separated mode columns for full disaggregation", func(v string) error {
		c.Modes = splitList(v)
		return nil
	})
	fs.BoolVar(&c.Postgres, "postgres", c.Postgres, "also write trips to PostgreSQL (PG_* environment)")
	fs.StringVar(&c.RedisStream, "redis-stream", c.RedisStream, "also append trips to this Redis stream (REDIS_* environment)")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "serve Prometheus metrics on this address")
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// 文档注释：解析一个子命令的完整配置
// 约束：-config 需先于其它参数生效，因此单独预扫描；其余参数在文件与环境变量之后解析。
func Load(name string, args []string, getenv func(string) string) (Config, error) {
	c := Default()
	if path := findConfigArg(args); path != "" {
		if err := LoadFile(path, &c); err != nil {
			return c, err
		}
	}
	if err := ApplyEnv(&c, getenv); err != nil {
		return c, err
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.String("config", "", "YAML configuration file")
	c.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	return c, nil
}

func findConfigArg(args []string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		for _, p := range []string{"-config", "--config"} {
			if a == p && i+1 < len(args) {
				return args[i+1]
			}
			if strings.HasPrefix(a, p+"=") {
				return strings.TrimPrefix(a, p+"=")
			}
		}
	}
	return ""
}

// Validate：检查必需输入与取值范围；modes 仅在完全解聚时需要
func (c Config) Validate(needModes bool) error {
	var errs []error
	if c.ODCSV == "" {
		errs = append(errs, errors.New("od-csv is required"))
	}
	if c.Zones == "" {
		errs = append(errs, errors.New("zones is required"))
	}
	if !needModes && c.DisaggregationThreshold < 1 {
		errs = append(errs, fmt.Errorf("disaggregation-threshold must be >= 1, got %d", c.DisaggregationThreshold))
	}
	if needModes && len(c.Modes) == 0 {
		errs = append(errs, errors.New("modes is required for disaggregate"))
	}
	if !(c.MinDistanceMeters >= 0) {
		errs = append(errs, fmt.Errorf("min-distance-meters must be >= 0, got %v", c.MinDistanceMeters))
	}
	if c.MaxSamplingAttempts < 0 {
		errs = append(errs, fmt.Errorf("max-sampling-attempts must be >= 0, got %d", c.MaxSamplingAttempts))
	}
	if c.DedupScope != string(jitter.DedupRow) && c.DedupScope != string(jitter.DedupRun) {
		errs = append(errs, fmt.Errorf("dedup-scope must be row or run, got %q", c.DedupScope))
	}
	if c.Subpoints != "" && (c.SubpointsOrigins != "" || c.SubpointsDestinations != "") {
		errs = append(errs, errors.New("subpoints cannot be combined with subpoints-origins/subpoints-destinations"))
	}
	if _, _, err := c.SubsampleKinds(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SubpointPaths：两端候选点文件；-subpoints 同时作用于两端
func (c Config) SubpointPaths() (origin, destination string) {
	if c.Subpoints != "" {
		return c.Subpoints, c.Subpoints
	}
	return c.SubpointsOrigins, c.SubpointsDestinations
}

// 文档注释：两端取点方式
// 约束：未显式指定时，有候选点文件的一端为加权候选池，否则为多边形内随机；显式要求加权池而没有候选点文件时报错。
func (c Config) SubsampleKinds() (origin, destination sample.Kind, err error) {
	op, dp := c.SubpointPaths()
	if origin, err = subsampleKind("subsample-origin", c.SubsampleOrigin, op); err != nil {
		return
	}
	destination, err = subsampleKind("subsample-destination", c.SubsampleDestination, dp)
	return
}

func subsampleKind(flagName, name, path string) (sample.Kind, error) {
	if name == "" {
		if path == "" {
			return sample.Random, nil
		}
		return sample.Weighted, nil
	}
	k, err := sample.ParseKind(name)
	if err != nil {
		return k, fmt.Errorf("%s: %w", flagName, err)
	}
	if k == sample.Weighted && path == "" {
		return k, fmt.Errorf("%s=%s needs a subpoints file", flagName, name)
	}
	return k, nil
}

// EngineOptions：把配置与两端取点策略组装为引擎参数
func (c Config) EngineOptions(origin, destination sample.Strategy) jitter.Options {
	threshold := c.DisaggregationThreshold
	if threshold < 1 {
		threshold = 1
	}
	return jitter.Options{
		DisaggregationThreshold: threshold,
		DisaggregationKey:       c.DisaggregationKey,
		OriginKey:               c.OriginKey,
		DestinationKey:          c.DestinationKey,
		SubsampleOrigin:         origin,
		SubsampleDestination:    destination,
		MinDistanceMeters:       c.MinDistanceMeters,
		DeduplicatePairs:        c.DeduplicatePairs,
		DedupScope:              jitter.DedupScope(c.DedupScope),
		MaxSamplingAttempts:     c.MaxSamplingAttempts,
		SubsamplerCacheSize:     c.SubsamplerCacheSize,
	}
}

// Summary：登记到运行表的参数摘要（不含连接信息）
func (c Config) Summary() []byte {
	b, _ := json.Marshal(c)
	return b
}
