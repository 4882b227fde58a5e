package wizard

import (
	"context"
	"log"
	"sync"
	"time"

	"tryon-server/modules/common/model"
)

// Generator - 세션이 사용하는 두 가지 생성 호출 (generation.Service)
type Generator interface {
	ClothingGenerator
	TryOnGenerator
}

// Deps - 세션 구성에 주입되는 의존성
type Deps struct {
	Generator     Generator
	History       HistoryRecorder
	PresetPeople  []model.ImageItem
	PresetClothes []model.ImageItem
	Publisher     Publisher     // nil 이면 이벤트 없음
	ResultTimeout time.Duration // 0 이면 제한 없음
	Now           func() time.Time
	BackgroundCtx context.Context
}

// SessionView - 세션 전체 렌더링용 상태
type SessionView struct {
	ID                string            `json:"sessionId"`
	State             State             `json:"state"`
	StepName          string            `json:"stepName"`
	People            []model.ImageItem `json:"people"`
	Clothes           []model.ImageItem `json:"clothes"`
	ClothesAlert      string            `json:"clothesAlert,omitempty"`
	ClothesGenerating int               `json:"clothesGenerating"`
	Result            *ResultView       `json:"result,omitempty"`
}

// Session - 브라우저 세션 하나의 위자드 상태와 단계 컨트롤러
type Session struct {
	ID      string
	Machine *Machine
	Person  *PersonStep
	Clothes *ClothesStep

	deps Deps

	mutex        sync.Mutex
	result       *ResultStep
	createdAt    time.Time
	lastActivity time.Time
}

func NewSession(id string, deps Deps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.BackgroundCtx == nil {
		deps.BackgroundCtx = context.Background()
	}

	s := &Session{
		ID:   id,
		deps: deps,
	}
	s.Machine = NewMachine(deps.History)
	s.Person = NewPersonStep(s.Machine, deps.PresetPeople, deps.Now)
	s.Clothes = NewClothesStep(s.Machine, deps.PresetClothes, deps.Generator, deps.Now, s.emit)

	now := deps.Now()
	s.createdAt = now
	s.lastActivity = now
	return s
}

func (s *Session) emit(eventType string, data interface{}) {
	if s.deps.Publisher == nil {
		return
	}
	s.deps.Publisher.Publish(Event{
		Type:      eventType,
		SessionID: s.ID,
		Data:      data,
		Timestamp: s.deps.Now().UnixMilli(),
	})
}

func (s *Session) touch() {
	s.mutex.Lock()
	s.lastActivity = s.deps.Now()
	s.mutex.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.lastActivity
}

// PersonNext - 인물 단계 → 의류 단계
func (s *Session) PersonNext() (model.Step, error) {
	step, err := s.Person.Next()
	if err == nil {
		s.emit(EventStepChanged, map[string]interface{}{"step": step, "stepName": step.String()})
	}
	return step, err
}

// ClothesBack - 의류 단계 → 인물 단계
func (s *Session) ClothesBack() (model.Step, error) {
	step, err := s.Clothes.Back()
	if err == nil {
		s.emit(EventStepChanged, map[string]interface{}{"step": step, "stepName": step.String()})
	}
	return step, err
}

// ClothesNext - 결과 단계 진입. 새 ResultStep 을 만들고 백그라운드로 생성을 한 번 시작한다
func (s *Session) ClothesNext() (*ResultStep, error) {
	if _, err := s.Clothes.Next(); err != nil {
		return nil, err
	}

	state := s.Machine.Snapshot()
	result := NewResultStep(s.Machine, s.deps.Generator, *state.SelectedPerson, *state.SelectedClothes, s.emit).
		WithTimeout(s.deps.ResultTimeout)

	s.mutex.Lock()
	prev := s.result
	s.result = result
	s.mutex.Unlock()
	if prev != nil {
		prev.detach()
	}

	s.emit(EventStepChanged, map[string]interface{}{"step": state.Step, "stepName": state.Step.String()})

	if err := result.Start(s.deps.BackgroundCtx); err != nil {
		return nil, err
	}

	log.Printf("🚀 [Wizard] Session %s entered result step", s.ID)
	return result, nil
}

// Result - 현재 결과 단계 컨트롤러 (결과 단계가 아니면 nil)
func (s *Session) Result() *ResultStep {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.result
}

// RetryResult - 실패한 결과 생성을 다시 시작 (백그라운드)
func (s *Session) RetryResult() (*ResultStep, error) {
	result := s.Result()
	if result == nil {
		return nil, ErrStepInactive
	}

	if err := result.StartRetry(s.deps.BackgroundCtx); err != nil {
		return nil, err
	}
	return result, nil
}

// ResetResult - 결과 단계에서 처음으로 (back / done)
func (s *Session) ResetResult() (model.Step, error) {
	s.mutex.Lock()
	result := s.result
	s.result = nil
	s.mutex.Unlock()

	if result == nil {
		return s.Machine.Step(), ErrStepInactive
	}
	result.Done()

	step := s.Machine.Step()
	s.emit(EventStepChanged, map[string]interface{}{"step": step, "stepName": step.String()})
	return step, nil
}

// Close - 세션 폐기. 진행 중인 결과는 도착해도 버려진다
func (s *Session) Close() {
	s.mutex.Lock()
	result := s.result
	s.result = nil
	s.mutex.Unlock()

	if result != nil {
		result.detach()
	}
}

// View - 세션 전체 상태
func (s *Session) View() SessionView {
	state := s.Machine.Snapshot()
	view := SessionView{
		ID:                s.ID,
		State:             state,
		StepName:          state.Step.String(),
		People:            s.Person.Items(),
		Clothes:           s.Clothes.Items(),
		ClothesAlert:      s.Clothes.Alert(),
		ClothesGenerating: s.Clothes.Generating(),
	}
	if result := s.Result(); result != nil {
		rv := result.View()
		view.Result = &rv
	}
	return view
}
