package wizard

import (
	"context"
	"errors"
	"log"
	"sync"

	"tryon-server/modules/common/model"
)

var (
	// ErrSelectionRequired - 다음 단계에 필요한 선택이 없음
	ErrSelectionRequired = errors.New("selection required")
	// ErrInvalidTransition - 현재 단계에서 허용되지 않는 전이
	ErrInvalidTransition = errors.New("invalid step transition")
)

// HistoryRecorder - 완료된 결과를 기록하는 저장소 (history.Store)
type HistoryRecorder interface {
	Record(ctx context.Context, personImage, clothesImage, resultImage string) (model.HistoryItem, error)
}

// State - 위자드 세션 상태 스냅샷
type State struct {
	Step            model.Step       `json:"step"`
	SelectedPerson  *model.ImageItem `json:"selectedPerson"`
	SelectedClothes *model.ImageItem `json:"selectedClothes"`
	ResultImageURL  *string          `json:"resultImageUrl"`
}

// Machine - 3단계 위자드 상태 머신
// SelectPerson → SelectClothes → GenerateResult → (Reset) SelectPerson
type Machine struct {
	mu      sync.Mutex
	state   State
	history HistoryRecorder
}

func NewMachine(history HistoryRecorder) *Machine {
	return &Machine{
		state:   State{Step: model.StepSelectPerson},
		history: history,
	}
}

// SelectPerson - 인물 선택 (전이 없음)
func (m *Machine) SelectPerson(item model.ImageItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.SelectedPerson = &item
}

// SelectClothes - 의류 선택 (전이 없음)
func (m *Machine) SelectClothes(item model.ImageItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.SelectedClothes = &item
}

// SelectPersonIn - 현재 단계가 step 일 때만 인물 선택 (검사와 변경을 한 번에)
func (m *Machine) SelectPersonIn(step model.Step, item model.ImageItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Step != step {
		return ErrStepInactive
	}
	m.state.SelectedPerson = &item
	return nil
}

// SelectClothesIn - 현재 단계가 step 일 때만 의류 선택
func (m *Machine) SelectClothesIn(step model.Step, item model.ImageItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Step != step {
		return ErrStepInactive
	}
	m.state.SelectedClothes = &item
	return nil
}

// Advance - 다음 단계로 이동
// GenerateResult 진입은 인물/의류가 모두 선택된 경우에만 가능
func (m *Machine) Advance() (model.Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advanceLocked()
}

// AdvanceFrom - 현재 단계가 from 일 때만 Advance
// 중복 요청이 두 단계를 건너뛰지 않도록 컨트롤러가 사용
func (m *Machine) AdvanceFrom(from model.Step) (model.Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Step != from {
		return m.state.Step, ErrInvalidTransition
	}
	return m.advanceLocked()
}

func (m *Machine) advanceLocked() (model.Step, error) {
	switch m.state.Step {
	case model.StepSelectPerson:
		m.state.Step = model.StepSelectClothes
	case model.StepSelectClothes:
		if m.state.SelectedPerson == nil || m.state.SelectedClothes == nil {
			return m.state.Step, ErrSelectionRequired
		}
		m.state.Step = model.StepGenerateResult
	default:
		return m.state.Step, ErrInvalidTransition
	}
	return m.state.Step, nil
}

// Back - 의류 선택에서 인물 선택으로 돌아감
func (m *Machine) Back() (model.Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Step != model.StepSelectClothes {
		return m.state.Step, ErrInvalidTransition
	}
	m.state.Step = model.StepSelectPerson
	return m.state.Step, nil
}

// Reset - 첫 단계로 돌아감. 결과만 지우고 선택은 유지 (같은 입력으로 다시 생성 가능)
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Step = model.StepSelectPerson
	m.state.ResultImageURL = nil
}

// RecordResult - 결과 저장, 인물/의류가 모두 선택된 경우에만 history 추가
func (m *Machine) RecordResult(ctx context.Context, url string) (recorded bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.ResultImageURL = &url
	if m.state.SelectedPerson == nil || m.state.SelectedClothes == nil {
		log.Printf("⚠️  [Wizard] Result stored without history record (selection missing)")
		return false, nil
	}

	if _, err := m.history.Record(ctx, m.state.SelectedPerson.URL, m.state.SelectedClothes.URL, url); err != nil {
		return true, err
	}
	return true, nil
}

func (m *Machine) Step() model.Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Step
}

// Snapshot - 현재 상태 복사본
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := State{Step: m.state.Step}
	if m.state.SelectedPerson != nil {
		person := *m.state.SelectedPerson
		out.SelectedPerson = &person
	}
	if m.state.SelectedClothes != nil {
		clothes := *m.state.SelectedClothes
		out.SelectedClothes = &clothes
	}
	if m.state.ResultImageURL != nil {
		url := *m.state.ResultImageURL
		out.ResultImageURL = &url
	}
	return out
}
