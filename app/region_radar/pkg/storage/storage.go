// Package storage 记录每次运行以及各任务阶段的执行结果，支持 PostgreSQL 与 SQLite。
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/iWorld-y/region_radar/app/region_radar/pkg/config"
)

// PhaseRecord 一个任务阶段的执行结果
type PhaseRecord struct {
	RunID     string
	TaskHash  string
	TaskName  string
	Metadata  map[string]string
	Phase     string
	Skipped   bool
	Records   int
	Error     string
	CreatedAt time.Time
}

// RunSummary 一次运行的汇总
type RunSummary struct {
	Tasks   int
	Skipped int
	Failed  int
}

// Storage 运行台账
type Storage struct {
	db     *sql.DB
	driver string
}

// NewStorage 打开数据库并初始化表结构
func NewStorage(cfg config.DBConfig) (*Storage, error) {
	var dsn string
	switch cfg.Driver {
	case "postgres":
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)
	case "sqlite3":
		if cfg.Path == "" {
			return nil, fmt.Errorf("db.path is required for sqlite3")
		}
		dsn = cfg.Path + "?_foreign_keys=on"
	default:
		return nil, fmt.Errorf("unsupported db driver: %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if cfg.Driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{db: db, driver: cfg.Driver}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close 关闭数据库连接
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS radar_runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			tasks INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS radar_task_phases (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES radar_runs(id),
			seq INTEGER NOT NULL,
			task_hash TEXT NOT NULL,
			task_name TEXT,
			metadata TEXT,
			phase TEXT NOT NULL,
			skipped BOOLEAN NOT NULL,
			records INTEGER NOT NULL,
			error TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_radar_task_phases_run ON radar_task_phases (run_id)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}
	return nil
}

var placeholder = regexp.MustCompile(`\$\d+`)

// rebind 将 $N 占位符转换为当前驱动的写法
func (s *Storage) rebind(query string) string {
	if s.driver == "sqlite3" {
		return placeholder.ReplaceAllString(query, "?")
	}
	return query
}

// CreateRun 创建运行记录并返回运行 ID
func (s *Storage) CreateRun(name string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(s.rebind(`INSERT INTO radar_runs (id, name, started_at) VALUES ($1, $2, $3)`),
		id, name, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// SavePhase 保存一个阶段的执行结果
func (s *Storage) SavePhase(rec PhaseRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int
	if err := tx.QueryRow(s.rebind(`SELECT COUNT(*) FROM radar_task_phases WHERE run_id = $1`), rec.RunID).Scan(&seq); err != nil {
		return fmt.Errorf("failed to count task phases: %w", err)
	}
	_, err = tx.Exec(s.rebind(`
		INSERT INTO radar_task_phases (id, run_id, seq, task_hash, task_name, metadata, phase, skipped, records, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`),
		uuid.NewString(), rec.RunID, seq+1, rec.TaskHash, rec.TaskName, string(meta),
		rec.Phase, rec.Skipped, rec.Records, rec.Error, created)
	if err != nil {
		return fmt.Errorf("failed to insert task phase: %w", err)
	}
	return tx.Commit()
}

// FinishRun 写入结束时间与汇总
func (s *Storage) FinishRun(runID string, sum RunSummary) error {
	res, err := s.db.Exec(s.rebind(`
		UPDATE radar_runs SET finished_at = $1, tasks = $2, skipped = $3, failed = $4 WHERE id = $5`),
		time.Now().UTC(), sum.Tasks, sum.Skipped, sum.Failed, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// ListPhases 按写入顺序返回一次运行的全部阶段记录
func (s *Storage) ListPhases(runID string) ([]PhaseRecord, error) {
	rows, err := s.db.Query(s.rebind(`
		SELECT run_id, task_hash, task_name, metadata, phase, skipped, records, error, created_at
		FROM radar_task_phases WHERE run_id = $1 ORDER BY seq`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task phases: %w", err)
	}
	defer rows.Close()

	var out []PhaseRecord
	for rows.Next() {
		var (
			rec     PhaseRecord
			name    sql.NullString
			meta    sql.NullString
			errText sql.NullString
		)
		if err := rows.Scan(&rec.RunID, &rec.TaskHash, &name, &meta, &rec.Phase,
			&rec.Skipped, &rec.Records, &errText, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task phase: %w", err)
		}
		rec.TaskName = name.String
		rec.Error = errText.String
		if meta.Valid && meta.String != "" && meta.String != "null" {
			if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LatestRunID 返回最近一次运行的 ID，没有记录时返回空字符串
func (s *Storage) LatestRunID() (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM radar_runs ORDER BY started_at DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query latest run: %w", err)
	}
	return id, nil
}
