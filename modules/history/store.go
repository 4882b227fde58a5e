package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"tryon-server/modules/common/kvstore"
	"tryon-server/modules/common/model"
)

// Store - 가상 피팅 기록 (최신순), key 하나에 전체 배열을 JSON으로 저장
type Store struct {
	kv  kvstore.Store
	key string
	now func() time.Time

	// writeMu 는 Record 끼리만 직렬화, mu 는 items 교체 구간만 잡는다 (KV I/O 중에는 잡지 않음)
	writeMu sync.Mutex
	mu      sync.RWMutex
	items   []model.HistoryItem
}

func NewStore(kv kvstore.Store, key string) *Store {
	return &Store{
		kv:  kv,
		key: key,
		now: time.Now,
	}
}

// WithClock - 테스트용 시계 주입
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Load - 시작 시 1회 호출. 손상된 데이터는 로그만 남기고 빈 기록으로 시작
func (s *Store) Load(ctx context.Context) error {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	var items []model.HistoryItem
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			log.Printf("⚠️  [History] Failed to parse history (key=%s), starting empty: %v", s.key, err)
			items = nil
		}
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()

	log.Printf("📚 [History] Loaded %d records", len(items))
	return nil
}

// Record - 선택된 이미지 URL과 결과로 새 기록을 만들어 맨 앞에 추가
func (s *Store) Record(ctx context.Context, personImage, clothesImage, resultImage string) (model.HistoryItem, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	ts := s.now().UnixMilli()
	item := model.HistoryItem{
		ID:           s.nextID(ts),
		Timestamp:    ts,
		PersonImage:  personImage,
		ClothesImage: clothesImage,
		ResultImage:  resultImage,
	}

	next := make([]model.HistoryItem, 0, len(s.items)+1)
	next = append(next, item)
	next = append(next, s.items...)
	s.mu.RUnlock()

	// 증분 저장 없이 전체 배열을 다시 기록
	data, err := json.Marshal(next)
	if err != nil {
		return model.HistoryItem{}, fmt.Errorf("failed to encode history: %w", err)
	}
	setErr := s.kv.Set(ctx, s.key, string(data))

	// 저장 실패여도 메모리 기록은 유지 (다음 저장 때 함께 기록됨)
	s.mu.Lock()
	s.items = next
	s.mu.Unlock()

	if setErr != nil {
		log.Printf("❌ [History] Failed to persist history: %v", setErr)
		return item, fmt.Errorf("failed to persist history: %w", setErr)
	}

	log.Printf("✅ [History] Recorded %s (total: %d)", item.ID, len(next))
	return item, nil
}

// List - 현재 기록 복사본 (최신순)
func (s *Store) List() []model.HistoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.HistoryItem, len(s.items))
	copy(out, s.items)
	return out
}

// Len - 기록 개수
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// nextID - 시간 기반 ID. 같은 밀리초에 기록되면 접미사로 구분
func (s *Store) nextID(ts int64) string {
	id := strconv.FormatInt(ts, 10)
	if len(s.items) == 0 || s.items[0].Timestamp != ts {
		return id
	}

	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s-%d", id, n)
		if !s.hasIDAt(ts, candidate) {
			return candidate
		}
	}
}

func (s *Store) hasIDAt(ts int64, id string) bool {
	for _, item := range s.items {
		if item.Timestamp != ts {
			return false
		}
		if item.ID == id {
			return true
		}
	}
	return false
}
