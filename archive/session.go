package archive

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/crewflow/types"
	"go.uber.org/zap"
)

// Record describes one archive-then-write operation.
type Record struct {
	Sink      string    `json:"sink"`
	Folder    string    `json:"folder"`
	Moved     []string  `json:"moved,omitempty"`
	Revision  int       `json:"revision"`
	WrittenAt time.Time `json:"written_at"`
}

// Session 一次运行的归档会话.
type Session struct {
	manager *Manager
	runID   string
	logger  *zap.Logger

	mu          sync.Mutex
	rotatedDirs map[string]string
	written     map[string]int
	records     []Record
}

type writeOptions struct {
	folder string
}

// WriteOption 写入选项
type WriteOption func(*writeOptions)

// WithFolder 指定归档子目录名，例如 "old posts".
func WithFolder(name string) WriteOption {
	return func(o *writeOptions) {
		if name != "" {
			o.folder = name
		}
	}
}

// RunID returns the run this session belongs to.
func (s *Session) RunID() string {
	return s.runID
}

// RotateAndWrite archives the sink directory's previous artifacts and then
// writes content to sink.
func (s *Session) RotateAndWrite(ctx context.Context, sink, content string, opts ...WriteOption) error {
	if strings.TrimSpace(sink) == "" {
		return types.NewError(types.ErrArchive, "rotate and write").WithCause(ErrEmptySink)
	}
	if err := ctx.Err(); err != nil {
		return types.NewError(types.ErrArchive, "rotate and write "+sink).WithCause(err)
	}

	o := writeOptions{folder: s.manager.cfg.DefaultFolder}
	for _, opt := range opts {
		opt(&o)
	}
	if o.folder == "." || o.folder == ".." || strings.ContainsAny(o.folder, `/\`) {
		return types.Errorf(types.ErrArchive, "invalid archive folder %q", o.folder)
	}

	abs, err := filepath.Abs(sink)
	if err != nil {
		return types.NewError(types.ErrArchive, "resolve sink "+sink).WithCause(err)
	}
	dir := filepath.Dir(abs)

	lock := s.manager.dirLock(dir)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(dir, s.manager.cfg.DirPerm); err != nil {
		return types.NewError(types.ErrArchive, "create directory "+dir).WithCause(err)
	}

	s.mu.Lock()
	_, rotated := s.rotatedDirs[dir]
	revision := s.written[abs]
	s.mu.Unlock()

	archiveDir := filepath.Join(dir, o.folder)
	var moved []string

	switch {
	case !rotated:
		moved, err = s.rotateDir(dir, archiveDir)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.rotatedDirs[dir] = o.folder
		s.mu.Unlock()
	case revision > 0:
		// 同一 sink 的上一版本先进入归档
		target, err := s.moveIfExists(abs, archiveDir)
		if err != nil {
			return err
		}
		if target != "" {
			moved = append(moved, target)
		}
	}

	if err := s.writeAtomic(abs, content); err != nil {
		s.manager.metrics.RecordArchiveWrite("failure")
		return err
	}
	s.manager.metrics.RecordArchiveWrite("success")
	s.manager.metrics.RecordArchiveRotation(o.folder, len(moved))

	record := Record{
		Sink:      abs,
		Folder:    o.folder,
		Moved:     moved,
		Revision:  revision + 1,
		WrittenAt: s.manager.now(),
	}
	s.mu.Lock()
	s.written[abs] = revision + 1
	s.records = append(s.records, record)
	s.mu.Unlock()

	s.logger.Info("sink written",
		zap.String("sink", abs),
		zap.String("folder", o.folder),
		zap.Int("moved", len(moved)),
		zap.Int("revision", record.Revision),
	)
	return nil
}

// Records 返回本次会话的写入记录副本.
func (s *Session) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Written reports how many times sink was written in this session.
func (s *Session) Written(sink string) int {
	abs, err := filepath.Abs(sink)
	if err != nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written[abs]
}

// rotateDir 把 dir 中的普通文件全部移入 archiveDir
func (s *Session) rotateDir(dir, archiveDir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, types.NewError(types.ErrArchive, "read directory "+dir).WithCause(err)
	}

	var moved []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		target, err := s.moveIfExists(filepath.Join(dir, entry.Name()), archiveDir)
		if err != nil {
			return moved, err
		}
		if target != "" {
			moved = append(moved, target)
		}
	}
	return moved, nil
}

// moveIfExists 移动单个文件，目标重名时追加序号
func (s *Session) moveIfExists(path, archiveDir string) (string, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", types.NewError(types.ErrArchive, "stat "+path).WithCause(err)
	}
	if !info.Mode().IsRegular() {
		return "", nil
	}

	if err := os.MkdirAll(archiveDir, s.manager.cfg.DirPerm); err != nil {
		return "", types.NewError(types.ErrArchive, "create archive folder "+archiveDir).WithCause(err)
	}
	target, err := uniquePath(archiveDir, filepath.Base(path))
	if err != nil {
		return "", types.NewError(types.ErrArchive, "resolve archive name for "+path).WithCause(err)
	}
	if err := os.Rename(path, target); err != nil {
		return "", types.NewError(types.ErrArchive, "move "+path).WithCause(err)
	}

	s.logger.Debug("file archived", zap.String("from", path), zap.String("to", target))
	return target, nil
}

func (s *Session) writeAtomic(path, content string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".crewflow-*.tmp")
	if err != nil {
		return types.NewError(types.ErrArchive, "create temp file in "+dir).WithCause(err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		cleanup()
		return types.NewError(types.ErrArchive, "write "+path).WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return types.NewError(types.ErrArchive, "close "+path).WithCause(err)
	}
	if err := os.Chmod(tmpName, s.manager.cfg.FilePerm); err != nil {
		cleanup()
		return types.NewError(types.ErrArchive, "chmod "+path).WithCause(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return types.NewError(types.ErrArchive, "rename into "+path).WithCause(err)
	}
	return nil
}

// uniquePath 返回 dir 下不冲突的文件路径: name, name-1, name-2 ...
func uniquePath(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	if _, err := os.Lstat(candidate); os.IsNotExist(err) {
		return candidate, nil
	} else if err != nil {
		return "", err
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		stem, ext = name, ""
	}
	for i := 1; ; i++ {
		candidate = filepath.Join(dir, stem+"-"+strconv.Itoa(i)+ext)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
	}
}
