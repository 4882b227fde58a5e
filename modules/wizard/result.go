package wizard

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"tryon-server/modules/common/model"
	"tryon-server/modules/generation"
)

var (
	// ErrAlreadyStarted - 결과 생성은 컨트롤러당 한 번만 시작된다
	ErrAlreadyStarted = errors.New("result generation already started")
	// ErrNotRetryable - 에러 상태가 아닐 때의 재시도
	ErrNotRetryable = errors.New("result is not in error state")
)

// TryOnGenerator - 인물 + 의류 합성 (generation.Service)
type TryOnGenerator interface {
	GenerateTryOnResult(ctx context.Context, personURL, clothesURL string) (string, error)
}

// ResultView - 결과 단계 렌더링용 상태
type ResultView struct {
	Status    model.ResultStatus `json:"status"`
	ResultURL string             `json:"resultUrl,omitempty"`
	Error     string             `json:"error,omitempty"`
	Person    model.ImageItem    `json:"person"`
	Clothes   model.ImageItem    `json:"clothes"`
}

// ResultStep - 3단계: 가상 피팅 결과 생성
// GenerateResult 단계에 들어올 때마다 새로 만들어지고, 생성은 그 인스턴스에서 한 번만 시작된다
type ResultStep struct {
	machine   *Machine
	generator TryOnGenerator
	person    model.ImageItem
	clothes   model.ImageItem
	notify    notifyFunc
	timeout   time.Duration

	// lock 순서: ResultStep.mu → Machine.mu
	mu        sync.Mutex
	started   bool
	status    model.ResultStatus
	resultURL string
	errMsg    string
	detached  bool

	wg sync.WaitGroup
}

func NewResultStep(machine *Machine, generator TryOnGenerator, person, clothes model.ImageItem, notify notifyFunc) *ResultStep {
	return &ResultStep{
		machine:   machine,
		generator: generator,
		person:    person,
		clothes:   clothes,
		notify:    notify,
		status:    model.ResultLoading,
	}
}

// WithTimeout - 비동기 생성 1회에 걸리는 시간 제한 (0 이면 없음)
func (r *ResultStep) WithTimeout(d time.Duration) *ResultStep {
	r.timeout = d
	return r
}

// Run - 생성을 실행하고 끝날 때까지 대기. 두 번째 호출은 ErrAlreadyStarted
func (r *ResultStep) Run(ctx context.Context) error {
	if err := r.begin(false); err != nil {
		return err
	}
	r.execute(ctx)
	return nil
}

// Start - Run 의 비동기 버전
func (r *ResultStep) Start(ctx context.Context) error {
	if err := r.begin(false); err != nil {
		return err
	}
	r.spawn(ctx)
	return nil
}

// Retry - 에러 상태에서만 같은 입력으로 다시 생성
func (r *ResultStep) Retry(ctx context.Context) error {
	if err := r.begin(true); err != nil {
		return err
	}
	r.execute(ctx)
	return nil
}

// StartRetry - Retry 의 비동기 버전
func (r *ResultStep) StartRetry(ctx context.Context) error {
	if err := r.begin(true); err != nil {
		return err
	}
	r.spawn(ctx)
	return nil
}

func (r *ResultStep) spawn(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		r.execute(ctx)
	}()
}

// Wait - 진행 중인 비동기 생성 종료 대기
func (r *ResultStep) Wait() {
	r.wg.Wait()
}

func (r *ResultStep) begin(retry bool) error {
	r.mu.Lock()
	if r.detached {
		r.mu.Unlock()
		return ErrStepInactive
	}
	if retry {
		if r.status != model.ResultFailed {
			r.mu.Unlock()
			return ErrNotRetryable
		}
	} else if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.status = model.ResultLoading
	r.errMsg = ""
	view := r.viewLocked()
	r.mu.Unlock()

	r.notify.emit(EventResultLoading, view)
	return nil
}

func (r *ResultStep) execute(ctx context.Context) {
	log.Printf("👗 [Wizard] Try-on started: person=%s, clothes=%s", r.person.ID, r.clothes.ID)
	dataURI, err := r.generator.GenerateTryOnResult(ctx, r.person.URL, r.clothes.URL)

	r.mu.Lock()
	if r.detached {
		r.mu.Unlock()
		log.Printf("⚠️  [Wizard] Try-on finished after leaving the result step, discarded")
		return
	}

	if err != nil {
		r.status = model.ResultFailed
		r.errMsg = generation.UserMessage(err, generation.MsgTryOnFailed)
		view := r.viewLocked()
		r.mu.Unlock()

		log.Printf("❌ [Wizard] Try-on failed: %v", err)
		r.notify.emit(EventResultFailed, view)
		return
	}

	r.status = model.ResultDone
	r.resultURL = dataURI
	// 락을 쥔 채로 기록해야 Back 과 엇갈려도 reset 이후에 결과가 남지 않는다
	recorded, recErr := r.machine.RecordResult(ctx, dataURI)
	view := r.viewLocked()
	r.mu.Unlock()

	if recErr != nil {
		log.Printf("⚠️  [Wizard] Result shown but history write failed: %v", recErr)
	}
	log.Printf("✅ [Wizard] Try-on done (history recorded: %v)", recorded)
	r.notify.emit(EventResultReady, view)
}

// View - 현재 결과 상태
func (r *ResultStep) View() ResultView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

func (r *ResultStep) viewLocked() ResultView {
	return ResultView{
		Status:    r.status,
		ResultURL: r.resultURL,
		Error:     r.errMsg,
		Person:    r.person,
		Clothes:   r.clothes,
	}
}

// Back - 인물 단계로 돌아감. 결과만 버리고 선택은 유지
func (r *ResultStep) Back() {
	r.detach()
	r.machine.Reset()
}

// Done - 완료 후 처음으로 (Back 과 동일)
func (r *ResultStep) Done() {
	r.Back()
}

// detach - 이후 도착하는 결과를 버림 (진행 중인 요청은 취소하지 않는다)
func (r *ResultStep) detach() {
	r.mu.Lock()
	r.detached = true
	r.mu.Unlock()
}
