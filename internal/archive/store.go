// Package archive persists received events as day-partitioned JSON Lines.
//
// 파일 구성:
//
//	<dir>/<YYYY-MM-DD>.jsonl  (UTC 날짜, append-only, 1줄 = ArchiveRecord 1건)
//
// 파일은 append만 하고 다시 쓰지 않는다. 같은 프로세스 안의 writer(poll loop, webhook)는
// Store의 mutex로 직렬화된다.
package archive

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/alert-relay/backend/internal/model"
	"go.uber.org/zap"
)

const (
	dateLayout   = "2006-01-02"
	fileExt      = ".jsonl"
	maxLineBytes = 16 * 1024 * 1024
)

// Store - archive 디렉터리 1개에 대한 single writer
type Store struct {
	dir string
	log *zap.Logger
	now func() time.Time
	// 파티션 파일 open (테스트에서 교체)
	open func(path string) (partitionFile, error)

	mu sync.Mutex
}

// partitionFile - Append가 쓰는 파티션 파일
type partitionFile interface {
	io.Writer
	Sync() error
	Close() error
}

func openPartition(path string) (partitionFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// NewStore - archive Store 생성 (디렉터리는 Append 시점에 생성)
func NewStore(dir string, log *zap.Logger) *Store {
	return NewStoreWithClock(dir, log, time.Now)
}

// NewStoreWithClock - 파티션 계산용 clock 지정 (테스트용)
func NewStoreWithClock(dir string, log *zap.Logger, now func() time.Time) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Store{dir: dir, log: log.Named("archive"), now: now, open: openPartition}
}

func (s *Store) Dir() string {
	return s.dir
}

// PartitionPath - t(UTC) 날짜의 파티션 파일 경로
func (s *Store) PartitionPath(t time.Time) string {
	return filepath.Join(s.dir, t.UTC().Format(dateLayout)+fileExt)
}

// Append - events를 오늘(UTC) 파티션에 1줄씩 추가
//
// 직렬화할 수 없는 값은 문자열로 바꿔서 저장하고 이벤트를 버리지 않는다.
// 쓰기 에러는 1번만 반환하며, 그 전에 쓴 줄은 그대로 남는다.
func (s *Store) Append(events []model.Event) (string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.PartitionPath(s.now())
	if len(events) == 0 {
		return path, 0, nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return path, 0, fmt.Errorf("failed to create archive dir: %w", err)
	}

	f, err := s.open(path)
	if err != nil {
		return path, 0, fmt.Errorf("failed to open archive partition: %w", err)
	}
	defer f.Close()

	count := 0
	for _, ev := range events {
		line := encodeRecord(ev, s.log)
		if _, err := f.Write(append(line, '\n')); err != nil {
			s.log.Error("archive write failed",
				zap.String("file", path),
				zap.Int("written", count),
				zap.Int("batch", len(events)),
				zap.Error(err),
			)
			return path, count, fmt.Errorf("failed to append event: %w", err)
		}
		count++
	}

	if err := f.Sync(); err != nil {
		return path, count, fmt.Errorf("failed to sync archive partition: %w", err)
	}

	s.log.Info("appended events to archive", zap.String("file", path), zap.Int("count", count))
	return path, count, nil
}

// ReadForDate - date(YYYY-MM-DD) 파티션의 이벤트를 append 순서대로 반환
//
// 파일이 없으면 빈 슬라이스. 깨진 줄은 건너뛴다.
func (s *Store) ReadForDate(date string) ([]model.Event, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("invalid archive date %q: %w", date, err)
	}
	path := s.PartitionPath(day)

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []model.Event{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open archive partition: %w", err)
	}
	defer f.Close()

	events := []model.Event{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, ok := decodeRecord(line, day)
		if !ok {
			s.log.Debug("skipping malformed archive line", zap.String("file", path), zap.Int("line", lineNo))
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		// 읽은 부분까지는 반환
		return events, fmt.Errorf("failed to read archive partition: %w", err)
	}
	return events, nil
}

func encodeRecord(ev model.Event, log *zap.Logger) []byte {
	receivedAt := ev.ReceivedAt.UTC()

	if raw, err := json.Marshal(ev.Raw); err == nil {
		if line, err := json.Marshal(model.ArchiveRecord{ReceivedAt: receivedAt, Event: raw}); err == nil {
			return line
		}
	} else {
		log.Warn("event not serializable, storing stringified values", zap.Error(err))
	}

	raw, err := json.Marshal(stringify(ev.Raw))
	if err != nil {
		raw, _ = json.Marshal(fmt.Sprint(ev.Raw))
	}
	line, _ := json.Marshal(model.ArchiveRecord{ReceivedAt: receivedAt, Event: raw})
	return line
}

// stringify - JSON으로 표현할 수 없는 값을 fmt.Sprint 문자열로 치환
func stringify(v any) any {
	switch x := v.(type) {
	case nil, bool, string, json.Number:
		return x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Sprint(x)
		}
		return x
	case float32:
		return stringify(float64(x))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = stringify(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = stringify(val)
		}
		return out
	}

	if _, err := json.Marshal(v); err == nil {
		return v
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = stringify(rv.Index(i).Interface())
		}
		return out
	}
	return fmt.Sprint(v)
}

func decodeRecord(line []byte, day time.Time) (model.Event, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil || fields == nil {
		return model.Event{}, false
	}

	// 신규 포맷: {"receivedAt": ..., "event": {...}}
	if rawEvent, ok := fields["event"]; ok {
		var rec model.ArchiveRecord
		if err := json.Unmarshal(line, &rec); err == nil {
			var payload map[string]any
			if err := model.DecodeJSON(rawEvent, &payload); err == nil && payload != nil {
				return model.NewEvent(payload, rec.ReceivedAt), true
			}
			// stringify fallback으로 저장된 이벤트
			var text string
			if err := json.Unmarshal(rawEvent, &text); err == nil {
				return model.NewEvent(map[string]any{"raw": text}, rec.ReceivedAt), true
			}
		}
	}

	// 구 포맷: 이벤트 object 자체가 1줄
	var payload map[string]any
	if err := model.DecodeJSON(line, &payload); err != nil {
		return model.Event{}, false
	}
	return model.NewEvent(payload, day), true
}
