package history

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/crewflow/crew"
	"github.com/BaSui01/crewflow/internal/database"
	"github.com/BaSui01/crewflow/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrRunNotFound 运行记录不存在
var ErrRunNotFound = errors.New("history: run not found")

const writeRetries = 3

// Store 运行历史存储
type Store struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// NewStore 创建存储, 表结构由 migration 包维护
func NewStore(ctx context.Context, pool *database.PoolManager, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, types.NewError(types.ErrConfiguration, "history store requires a database pool")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db := pool.DB().WithContext(ctx)
	for _, table := range []string{RunRecord{}.TableName(), TaskRecord{}.TableName()} {
		if !db.Migrator().HasTable(table) {
			return nil, types.Errorf(types.ErrConfiguration, "history table %q is missing, run `crewflow migrate up`", table)
		}
	}
	return &Store{pool: pool, logger: logger.With(zap.String("component", "history"))}, nil
}

var _ crew.Observer = (*Store)(nil)

// Ping 检查底层连接
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) RunStarted(ctx context.Context, run crew.RunInfo) {
	inputs, _ := json.Marshal(run.Inputs)
	rec := RunRecord{
		ID:        run.RunID,
		Crew:      run.Crew,
		Process:   string(run.Process),
		Status:    "running",
		Inputs:    string(inputs),
		StartedAt: run.StartedAt,
	}
	s.write(ctx, "record run start", run.RunID, func(tx *gorm.DB) error {
		return tx.Create(&rec).Error
	})
}

func (s *Store) TaskFinished(ctx context.Context, run crew.RunInfo, report crew.TaskReport) {
	rec := TaskRecord{
		RunID:      run.RunID,
		TaskID:     report.TaskID,
		Agent:      report.Agent,
		State:      string(report.State),
		Input:      report.Input,
		Output:     report.Output,
		Sink:       report.Sink,
		Revision:   report.Revision,
		Attempts:   report.Attempts,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	if report.Err != nil {
		rec.ErrorCode = string(types.GetErrorCode(report.Err))
		rec.Error = report.Err.Error()
	}
	s.write(ctx, "record task report", run.RunID, func(tx *gorm.DB) error {
		return tx.Create(&rec).Error
	})
}

func (s *Store) RunFinished(ctx context.Context, run crew.RunInfo, result *crew.CrewResult) {
	finished := time.Now()
	updates := map[string]any{"status": string(crew.RunFailed), "finished_at": finished}
	if result != nil {
		if !result.FinishedAt.IsZero() {
			finished = result.FinishedAt
		}
		updates = map[string]any{
			"status":      string(result.Status),
			"final":       result.Final,
			"error":       summarize(result.Errors),
			"sinks":       strings.Join(result.Sinks, "\n"),
			"finished_at": finished,
		}
	}
	s.write(ctx, "record run finish", run.RunID, func(tx *gorm.DB) error {
		return tx.Model(&RunRecord{}).Where("id = ?", run.RunID).Updates(updates).Error
	})
}

func (s *Store) write(ctx context.Context, op, runID string, fn database.TransactionFunc) {
	// 运行被取消后仍需落库
	ctx = context.WithoutCancel(ctx)
	if err := s.pool.WithTransactionRetry(ctx, writeRetries, fn); err != nil {
		s.logger.Error(op+" failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func summarize(errs map[string]error) string {
	if len(errs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+": "+errs[k].Error())
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// 查询
// =============================================================================

// ListOptions 运行列表过滤条件
type ListOptions struct {
	Crew   string
	Status string
	Limit  int
}

// ListRuns 按开始时间倒序列出运行, 不含任务明细
func (s *Store) ListRuns(ctx context.Context, opts ListOptions) ([]RunRecord, error) {
	q := s.pool.DB().WithContext(ctx).Model(&RunRecord{})
	if opts.Crew != "" {
		q = q.Where("crew = ?", opts.Crew)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	var runs []RunRecord
	err := q.Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// GetRun 返回运行及其任务报告（按写入顺序）
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var run RunRecord
	err := s.pool.DB().WithContext(ctx).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// TaskRecords 返回某任务在一次运行中的所有修订
func (s *Store) TaskRecords(ctx context.Context, runID, taskID string) ([]TaskRecord, error) {
	var recs []TaskRecord
	err := s.pool.DB().WithContext(ctx).
		Where("run_id = ? AND task_id = ?", runID, taskID).
		Order("id ASC").
		Find(&recs).Error
	return recs, err
}

// Prune 删除早于 before 的运行及其任务报告
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		old := tx.Model(&RunRecord{}).Select("id").Where("started_at < ?", before)
		if err := tx.Where("run_id IN (?)", old).Delete(&TaskRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("started_at < ?", before).Delete(&RunRecord{})
		removed = res.RowsAffected
		return res.Error
	})
	return removed, err
}
