package migrate

import (
	"database/sql"

	"odjitter/internal/logger"
)

// 背景：首次运行自动创建运行登记表与出行表
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构
func EnsureSchema(db *sql.DB) error {
	for i, s := range Statements() {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}

func Statements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS _od_runs (
            run_id UUID PRIMARY KEY,
            started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            finished_at TIMESTAMPTZ,
            options JSONB NOT NULL DEFAULT '{}'::jsonb,
            trips BIGINT NOT NULL DEFAULT 0
        )`,
		`ALTER TABLE _od_runs ADD COLUMN IF NOT EXISTS status TEXT NOT NULL DEFAULT 'running'`,
		`ALTER TABLE _od_runs ADD COLUMN IF NOT EXISTS error TEXT`,
		`CREATE TABLE IF NOT EXISTS _od_trips (
            run_id UUID NOT NULL REFERENCES _od_runs(run_id) ON DELETE CASCADE,
            seq BIGINT NOT NULL,
            mode TEXT NOT NULL DEFAULT '',
            origin_lon DOUBLE PRECISION NOT NULL,
            origin_lat DOUBLE PRECISION NOT NULL,
            dest_lon DOUBLE PRECISION NOT NULL,
            dest_lat DOUBLE PRECISION NOT NULL,
            properties JSONB NOT NULL,
            PRIMARY KEY (run_id, seq)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_od_trips_mode ON _od_trips(run_id, mode)`,
	}
}
