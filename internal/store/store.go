// 包 store: 出行记录在 PostgreSQL 中的持久化，包含运行登记与批量写入
package store

import (
	"context"
	"database/sql"

	"odjitter/internal/logger"

	_ "github.com/lib/pq"
)

// Store: 数据库访问入口，持有连接池
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

// TripRow: 一条待写入的出行；Properties 为 JSON 文本
type TripRow struct {
	Seq        int64
	Mode       string
	OriginLon  float64
	OriginLat  float64
	DestLon    float64
	DestLat    float64
	Properties []byte
}

// BeginRun: 登记一次运行及其参数摘要
func (s *Store) BeginRun(ctx context.Context, runID string, options []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO _od_runs(run_id, options) VALUES($1, $2::jsonb)`, runID, string(options))
	if err == nil {
		logger.L().Debug("db_run_begin", "run_id", runID)
	}
	return err
}

// 文档注释：批量写入出行
// 背景：单事务 + 预编译语句写入一批记录，降低逐条提交的往返与 WAL 压力。
// 异常：任一行失败整批回滚并返回错误，不做重试。
func (s *Store) InsertTrips(ctx context.Context, runID string, rows []TripRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO _od_trips(run_id, seq, mode, origin_lon, origin_lat, dest_lon, dest_lat, properties)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8::jsonb)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, runID, r.Seq, r.Mode, r.OriginLon, r.OriginLat, r.DestLon, r.DestLat, string(r.Properties)); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.L().Debug("db_trips_insert", "run_id", runID, "count", len(rows), "last_seq", rows[len(rows)-1].Seq)
	return nil
}

// FinishRun: 写入完成时间与出行总数
func (s *Store) FinishRun(ctx context.Context, runID string, trips int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE _od_runs SET finished_at=now(), trips=$2, status='finished' WHERE run_id=$1`, runID, trips)
	if err == nil {
		logger.L().Info("db_run_finish", "run_id", runID, "trips", trips)
	}
	return err
}

// FailRun: 运行中止；记录已落库的出行数与失败原因，finished_at 保持为空
func (s *Store) FailRun(ctx context.Context, runID string, trips int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE _od_runs SET trips=$2, status='failed', error=$3 WHERE run_id=$1`, runID, trips, reason)
	if err == nil {
		logger.L().Warn("db_run_failed", "run_id", runID, "trips", trips)
	}
	return err
}

// RunStatus: 查询运行状态（running / finished / failed）
func (s *Store) RunStatus(ctx context.Context, runID string) (string, error) {
	var st string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM _od_runs WHERE run_id=$1`, runID).Scan(&st)
	return st, err
}

// CountTrips: 统计某次运行已落库的出行数
func (s *Store) CountTrips(ctx context.Context, runID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM _od_trips WHERE run_id=$1`, runID).Scan(&n)
	return n, err
}
