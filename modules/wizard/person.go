package wizard

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"tryon-server/modules/common/model"
	"tryon-server/modules/common/utils"
)

var (
	// ErrUnknownItem - 목록에 없는 이미지 id
	ErrUnknownItem = errors.New("unknown image item")
	// ErrStepInactive - 현재 위자드 단계가 아닌 컨트롤러 호출
	ErrStepInactive = errors.New("step is not active")
	// ErrInvalidUpload - 업로드 파일을 이미지로 읽을 수 없음
	ErrInvalidUpload = errors.New("invalid upload")
)

const uploadedPersonDescription = "Uploaded person"

// PersonStep - 1단계: 인물 프리셋 선택 또는 업로드
type PersonStep struct {
	machine *Machine
	presets []model.ImageItem
	now     func() time.Time

	mu      sync.Mutex
	uploads []model.ImageItem // 최신순
}

func NewPersonStep(machine *Machine, presets []model.ImageItem, now func() time.Time) *PersonStep {
	return &PersonStep{
		machine: machine,
		presets: presets,
		now:     now,
	}
}

// Items - 업로드(최신순) + 프리셋
func (p *PersonStep) Items() []model.ImageItem {
	p.mu.Lock()
	defer p.mu.Unlock()

	items := make([]model.ImageItem, 0, len(p.uploads)+len(p.presets))
	items = append(items, p.uploads...)
	return append(items, p.presets...)
}

// Upload - 로컬 파일을 data URI 인물 이미지로 만들어 바로 선택
func (p *PersonStep) Upload(src utils.FileSource) (model.ImageItem, error) {
	if p.machine.Step() != model.StepSelectPerson {
		return model.ImageItem{}, ErrStepInactive
	}

	dataURI, err := utils.ReadDataURI(src)
	if err != nil {
		return model.ImageItem{}, fmt.Errorf("%w: person image: %w", ErrInvalidUpload, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	item := model.ImageItem{
		ID:          uniqueID("upload-person-", p.now(), p.uploads),
		URL:         dataURI,
		IsUploaded:  true,
		Description: uploadedPersonDescription,
	}
	// 파일을 읽는 동안 단계가 바뀌었으면 버림
	if err := p.machine.SelectPersonIn(model.StepSelectPerson, item); err != nil {
		log.Printf("⚠️  [Wizard] Person upload finished after leaving the step, dropped")
		return model.ImageItem{}, err
	}
	p.uploads = append([]model.ImageItem{item}, p.uploads...)

	log.Printf("📤 [Wizard] Person uploaded: %s (%d bytes)", item.ID, len(dataURI))
	return item, nil
}

// Select - id로 인물 선택
func (p *PersonStep) Select(id string) (model.ImageItem, error) {
	if p.machine.Step() != model.StepSelectPerson {
		return model.ImageItem{}, ErrStepInactive
	}

	item, ok := findItem(p.Items(), id)
	if !ok {
		return model.ImageItem{}, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	if err := p.machine.SelectPersonIn(model.StepSelectPerson, item); err != nil {
		return model.ImageItem{}, err
	}
	return item, nil
}

// Next - 인물이 선택된 경우에만 의류 단계로 이동
func (p *PersonStep) Next() (model.Step, error) {
	if p.machine.Snapshot().SelectedPerson == nil {
		return p.machine.Step(), ErrSelectionRequired
	}
	return p.machine.AdvanceFrom(model.StepSelectPerson)
}

// uniqueID - prefix + epoch millis, 같은 밀리초 충돌 시 -n 접미사
func uniqueID(prefix string, now time.Time, existing []model.ImageItem) string {
	base := prefix + strconv.FormatInt(now.UnixMilli(), 10)
	id := base
	for n := 1; ; n++ {
		if _, taken := findItem(existing, id); !taken {
			return id
		}
		id = base + "-" + strconv.Itoa(n)
	}
}

func findItem(items []model.ImageItem, id string) (model.ImageItem, bool) {
	for _, item := range items {
		if item.ID == id {
			return item, true
		}
	}
	return model.ImageItem{}, false
}
