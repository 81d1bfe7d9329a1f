package history

import (
	"encoding/json"
	"time"
)

// RunRecord 一次运行的持久化记录
type RunRecord struct {
	ID         string       `gorm:"primaryKey;size:64" json:"id"`
	Crew       string       `gorm:"size:128;not null;index:idx_crew_started" json:"crew"`
	Process    string       `gorm:"size:32" json:"process"`
	Status     string       `gorm:"size:32;index" json:"status"`
	Inputs     string       `gorm:"type:text" json:"inputs"` // JSON 编码的输入
	Final      string       `gorm:"type:text" json:"final"`
	Error      string       `gorm:"type:text" json:"error,omitempty"`
	Sinks      string       `gorm:"type:text" json:"sinks,omitempty"` // 换行分隔
	StartedAt  time.Time    `gorm:"index:idx_crew_started" json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Tasks      []TaskRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"tasks,omitempty"`
}

func (RunRecord) TableName() string {
	return "crew_runs"
}

// InputMap 解码运行输入
func (r RunRecord) InputMap() map[string]string {
	out := map[string]string{}
	if r.Inputs != "" {
		_ = json.Unmarshal([]byte(r.Inputs), &out)
	}
	return out
}

// Duration 返回运行耗时, 未结束时为 0
func (r RunRecord) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// TaskRecord 一次任务报告
type TaskRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RunID      string    `gorm:"size:64;not null;index:idx_run_task" json:"run_id"`
	TaskID     string    `gorm:"size:128;not null;index:idx_run_task" json:"task_id"`
	Agent      string    `gorm:"size:128" json:"agent,omitempty"`
	State      string    `gorm:"size:32" json:"state"`
	Input      string    `gorm:"type:text" json:"input,omitempty"`
	Output     string    `gorm:"type:text" json:"output,omitempty"`
	Sink       string    `gorm:"size:1024" json:"sink,omitempty"`
	Revision   int       `json:"revision"`
	Attempts   int       `json:"attempts"`
	ErrorCode  string    `gorm:"size:64" json:"error_code,omitempty"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (TaskRecord) TableName() string {
	return "crew_task_reports"
}
