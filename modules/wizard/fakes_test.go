package wizard

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"tryon-server/modules/common/kvstore"
	"tryon-server/modules/common/model"
	"tryon-server/modules/generation"
	"tryon-server/modules/history"
)

var (
	presetPeople = []model.ImageItem{
		{ID: "p1", URL: "https://img.example.com/p1.jpg"},
		{ID: "p2", URL: "https://img.example.com/p2.jpg"},
	}
	presetClothes = []model.ImageItem{
		{ID: "c1", URL: "https://img.example.com/c1.jpg"},
		{ID: "c2", URL: "https://img.example.com/c2.jpg"},
	}
	pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
)

// fakeGenerator - generation.Service 테스트 대역
type fakeGenerator struct {
	mu sync.Mutex

	clothingURI   string
	clothingErr   error
	clothingCalls int
	prompts       []string
	// nil 이 아니면 의류 응답 직전에 호출
	onClothing func()

	tryOnURI   string
	tryOnErr   error
	tryOnCalls int
	tryOnArgs  [][2]string

	// nil 이 아니면 try-on 응답 전에 대기
	tryOnGate chan struct{}
}

func (f *fakeGenerator) GenerateClothingImage(_ context.Context, prompt string) (string, error) {
	if f.onClothing != nil {
		f.onClothing()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.clothingCalls++
	f.prompts = append(f.prompts, prompt)
	if f.clothingErr != nil {
		return "", f.clothingErr
	}
	return f.clothingURI, nil
}

func (f *fakeGenerator) GenerateTryOnResult(ctx context.Context, personURL, clothesURL string) (string, error) {
	f.mu.Lock()
	gate := f.tryOnGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.tryOnCalls++
	f.tryOnArgs = append(f.tryOnArgs, [2]string{personURL, clothesURL})
	if f.tryOnErr != nil {
		return "", f.tryOnErr
	}
	return f.tryOnURI, nil
}

func (f *fakeGenerator) setTryOn(uri string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tryOnURI = uri
	f.tryOnErr = err
}

func (f *fakeGenerator) tryOnInputs() [][2]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]string(nil), f.tryOnArgs...)
}

func (f *fakeGenerator) calls() (clothing, tryOn int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clothingCalls, f.tryOnCalls
}

// noImageError - 응답에 이미지 파트가 없을 때 generation 패키지가 돌려주는 형태
func noImageError(msg string) error {
	return &generation.GenerationError{Message: msg, Err: errors.New("response contained no inline image")}
}

// failingKV - Set 이 항상 실패하는 KV
type failingKV struct {
	kvstore.MemoryStore
}

func (f *failingKV) Set(context.Context, string, string) error {
	return errors.New("kv unavailable")
}

// recordingPublisher - 발행된 이벤트 수집
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// memFile - utils.FileSource 구현
type memFile struct {
	data        []byte
	contentType string
}

func (f memFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func (f memFile) ContentType() string { return f.contentType }

// blockingFile - Open 이 release 될 때까지 대기하는 FileSource
type blockingFile struct {
	memFile
	opened  chan struct{}
	release chan struct{}
}

func newBlockingFile(data []byte, contentType string) *blockingFile {
	return &blockingFile{
		memFile: memFile{data: data, contentType: contentType},
		opened:  make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (f *blockingFile) Open() (io.ReadCloser, error) {
	close(f.opened)
	<-f.release
	return f.memFile.Open()
}

// fixedClock - 호출마다 1ms 씩 증가하는 시계
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fixedClock {
	return &fixedClock{t: time.UnixMilli(1_700_000_000_000)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newHistory(clock *fixedClock) *history.Store {
	return history.NewStore(kvstore.NewMemoryStore(), "tryon_history").WithClock(clock.Now)
}

func newTestSession(gen *fakeGenerator, hist HistoryRecorder, pub Publisher, clock *fixedClock) *Session {
	return NewSession("s-1", Deps{
		Generator:     gen,
		History:       hist,
		PresetPeople:  presetPeople,
		PresetClothes: presetClothes,
		Publisher:     pub,
		ResultTimeout: 5 * time.Second,
		Now:           clock.Now,
	})
}
