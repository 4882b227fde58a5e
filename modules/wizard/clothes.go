package wizard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tryon-server/modules/common/model"
	"tryon-server/modules/common/utils"
	"tryon-server/modules/generation"
)

// ErrEmptyPrompt - 의류 생성 프롬프트가 비어 있음
var ErrEmptyPrompt = errors.New("prompt is required")

const uploadedClothesDescription = "Uploaded clothes"

// ClothingGenerator - 텍스트 → 의류 이미지 (generation.Service)
type ClothingGenerator interface {
	GenerateClothingImage(ctx context.Context, prompt string) (string, error)
}

// ClothesStep - 2단계: 의류 프리셋/업로드 선택 또는 텍스트로 생성
// 생성된 의류 목록은 세션 메모리에만 있고 저장되지 않는다
type ClothesStep struct {
	machine   *Machine
	presets   []model.ImageItem
	generator ClothingGenerator
	now       func() time.Time
	notify    notifyFunc

	mu        sync.Mutex
	generated []model.ImageItem // 최신순
	uploads   []model.ImageItem // 최신순
	alert     string

	// 동시 생성 요청을 막지 않는다. 마지막으로 끝난 응답이 선택된다
	generating atomic.Int32
}

func NewClothesStep(machine *Machine, presets []model.ImageItem, generator ClothingGenerator, now func() time.Time, notify notifyFunc) *ClothesStep {
	return &ClothesStep{
		machine:   machine,
		presets:   presets,
		generator: generator,
		now:       now,
		notify:    notify,
	}
}

// Items - 생성(최신순) + 업로드(최신순) + 프리셋
func (c *ClothesStep) Items() []model.ImageItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.itemsLocked()
}

// Generated - 이번 세션에서 생성된 의류 (최신순)
func (c *ClothesStep) Generated() []model.ImageItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.ImageItem(nil), c.generated...)
}

func (c *ClothesStep) itemsLocked() []model.ImageItem {
	items := make([]model.ImageItem, 0, len(c.generated)+len(c.uploads)+len(c.presets))
	items = append(items, c.generated...)
	items = append(items, c.uploads...)
	return append(items, c.presets...)
}

// Upload - 로컬 파일을 data URI 의류 이미지로 만들어 바로 선택
func (c *ClothesStep) Upload(src utils.FileSource) (model.ImageItem, error) {
	if c.machine.Step() != model.StepSelectClothes {
		return model.ImageItem{}, ErrStepInactive
	}

	dataURI, err := utils.ReadDataURI(src)
	if err != nil {
		return model.ImageItem{}, fmt.Errorf("%w: clothes image: %w", ErrInvalidUpload, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	item := model.ImageItem{
		ID:          uniqueID("upload-cloth-", c.now(), c.itemsLocked()),
		URL:         dataURI,
		IsUploaded:  true,
		Description: uploadedClothesDescription,
	}
	if err := c.machine.SelectClothesIn(model.StepSelectClothes, item); err != nil {
		log.Printf("⚠️  [Wizard] Clothes upload finished after leaving the step, dropped")
		return model.ImageItem{}, err
	}
	c.uploads = append([]model.ImageItem{item}, c.uploads...)

	log.Printf("📤 [Wizard] Clothes uploaded: %s (%d bytes)", item.ID, len(dataURI))
	return item, nil
}

// Select - id로 의류 선택
func (c *ClothesStep) Select(id string) (model.ImageItem, error) {
	if c.machine.Step() != model.StepSelectClothes {
		return model.ImageItem{}, ErrStepInactive
	}

	item, ok := findItem(c.Items(), id)
	if !ok {
		return model.ImageItem{}, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	if err := c.machine.SelectClothesIn(model.StepSelectClothes, item); err != nil {
		return model.ImageItem{}, err
	}
	return item, nil
}

// Generate - 프롬프트로 의류 이미지 생성, 목록 맨 앞에 추가하고 자동 선택
// 실패 시 사용자 알림 메시지를 남기고 에러 반환 (자동 재시도 없음)
func (c *ClothesStep) Generate(ctx context.Context, prompt string) (model.ImageItem, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return model.ImageItem{}, ErrEmptyPrompt
	}
	if c.machine.Step() != model.StepSelectClothes {
		return model.ImageItem{}, ErrStepInactive
	}

	c.mu.Lock()
	c.alert = ""
	c.mu.Unlock()

	c.generating.Add(1)
	dataURI, err := c.generator.GenerateClothingImage(ctx, prompt)
	c.generating.Add(-1)

	if err != nil {
		msg := generation.UserMessage(err, generation.MsgClothingFailed)
		c.mu.Lock()
		c.alert = msg
		c.mu.Unlock()

		log.Printf("❌ [Wizard] Clothing generation failed: %v", err)
		c.notify.emit(EventClothesFailed, map[string]string{"error": msg})
		return model.ImageItem{}, err
	}

	c.mu.Lock()
	item := model.ImageItem{
		ID:          uniqueID("gen-", c.now(), c.itemsLocked()),
		URL:         dataURI,
		IsUploaded:  true,
		Description: prompt,
	}
	c.generated = append([]model.ImageItem{item}, c.generated...)

	// 사용자가 이미 다음 단계로 넘어갔다면 목록에만 추가
	if err := c.machine.SelectClothesIn(model.StepSelectClothes, item); err != nil {
		log.Printf("⚠️  [Wizard] Generated clothes %s arrived after leaving the step, not selected", item.ID)
	}
	c.mu.Unlock()

	log.Printf("✅ [Wizard] Clothes generated: %s", item.ID)
	c.notify.emit(EventClothesGenerated, item)
	return item, nil
}

// Alert - 마지막 생성 실패 메시지 (없으면 빈 문자열)
func (c *ClothesStep) Alert() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alert
}

// Generating - 진행 중인 의류 생성 요청 수
func (c *ClothesStep) Generating() int {
	return int(c.generating.Load())
}

// Back - 인물 단계로
func (c *ClothesStep) Back() (model.Step, error) {
	return c.machine.Back()
}

// Next - 의류가 선택된 경우에만 결과 단계로
func (c *ClothesStep) Next() (model.Step, error) {
	if c.machine.Snapshot().SelectedClothes == nil {
		return c.machine.Step(), ErrSelectionRequired
	}
	return c.machine.AdvanceFrom(model.StepSelectClothes)
}
