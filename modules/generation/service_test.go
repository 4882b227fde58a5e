package generation

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"tryon-server/modules/common/gemini"
)

// fakeModels - gemini.ContentGenerator 테스트 대역
type fakeModels struct {
	mu       sync.Mutex
	calls    int
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig

	resp *genai.GenerateContentResponse
	err  error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func imageResponse(mimeType string, data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "done"},
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
			}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func textOnlyResponse() *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "I cannot draw that"}}},
		}},
	}
}

func newTestService(models gemini.ContentGenerator) *Service {
	return NewService(models, NewResolver(5*time.Second, true), "gemini-2.5-flash-image")
}

func TestService_GenerateClothingImage(t *testing.T) {
	ctx := context.Background()

	t.Run("returns data URI of first inline image", func(t *testing.T) {
		models := &fakeModels{resp: imageResponse("image/png", []byte("dress-png"))}
		svc := newTestService(models)

		uri, err := svc.GenerateClothingImage(ctx, "red silk dress")
		require.NoError(t, err)
		assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString([]byte("dress-png")), uri)

		assert.Equal(t, 1, models.calls)
		assert.Equal(t, "gemini-2.5-flash-image", models.model)
		require.Len(t, models.contents, 1)
		require.Len(t, models.contents[0].Parts, 1)
		assert.Equal(t, BuildClothingPrompt("red silk dress"), models.contents[0].Parts[0].Text)
		assert.Contains(t, models.contents[0].Parts[0].Text, "red silk dress")
		assert.Equal(t, "1:1", models.config.ImageConfig.AspectRatio)
	})

	t.Run("no image part is a generation error", func(t *testing.T) {
		svc := newTestService(&fakeModels{resp: textOnlyResponse()})

		_, err := svc.GenerateClothingImage(ctx, "hat")
		var genErr *GenerationError
		require.ErrorAs(t, err, &genErr)
		assert.Equal(t, MsgClothingFailed, genErr.Message)
		assert.ErrorIs(t, err, gemini.ErrNoImage)
	})

	t.Run("transport failure is wrapped", func(t *testing.T) {
		cause := errors.New("connection reset")
		models := &fakeModels{err: cause}
		svc := newTestService(models)

		_, err := svc.GenerateClothingImage(ctx, "hat")
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, MsgClothingFailed, UserMessage(err, ""))
		assert.Equal(t, 1, models.calls, "no automatic retry")
	})
}

func TestService_GenerateTryOnResult(t *testing.T) {
	ctx := context.Background()
	personData := []byte("person-bytes")
	clothesData := []byte("clothes-bytes")
	personURI := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(personData)
	clothesURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(clothesData)

	t.Run("sends instruction, person and clothes in order", func(t *testing.T) {
		models := &fakeModels{resp: imageResponse("image/png", []byte("result"))}
		svc := newTestService(models)

		uri, err := svc.GenerateTryOnResult(ctx, personURI, clothesURI)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

		require.Len(t, models.contents, 1)
		parts := models.contents[0].Parts
		require.Len(t, parts, 3)
		assert.Equal(t, TryOnInstruction, parts[0].Text)
		require.NotNil(t, parts[1].InlineData)
		assert.Equal(t, personData, parts[1].InlineData.Data)
		assert.Equal(t, "image/jpeg", parts[1].InlineData.MIMEType)
		require.NotNil(t, parts[2].InlineData)
		assert.Equal(t, clothesData, parts[2].InlineData.Data)
		assert.Equal(t, "3:4", models.config.ImageConfig.AspectRatio)
	})

	t.Run("missing image part fails", func(t *testing.T) {
		svc := newTestService(&fakeModels{resp: textOnlyResponse()})

		_, err := svc.GenerateTryOnResult(ctx, personURI, clothesURI)
		var genErr *GenerationError
		require.ErrorAs(t, err, &genErr)
		assert.Equal(t, MsgTryOnFailed, genErr.Message)
	})

	t.Run("unreachable remote image suggests local upload", func(t *testing.T) {
		models := &fakeModels{resp: imageResponse("image/png", []byte("result"))}
		svc := NewService(models, NewResolver(time.Second, false), "m")

		_, err := svc.GenerateTryOnResult(ctx, "http://127.0.0.1:1/person.png", clothesURI)
		var resErr *ResolutionError
		require.ErrorAs(t, err, &resErr)
		assert.Equal(t, MsgImageLoad, UserMessage(err, ""))
		assert.Equal(t, 0, models.calls, "generation must not run without both images")
	})

	t.Run("retry after failure is an independent call", func(t *testing.T) {
		models := &fakeModels{resp: textOnlyResponse()}
		svc := newTestService(models)

		_, err := svc.GenerateTryOnResult(ctx, personURI, clothesURI)
		require.Error(t, err)

		models.resp = imageResponse("image/png", []byte("ok"))
		uri, err := svc.GenerateTryOnResult(ctx, personURI, clothesURI)
		require.NoError(t, err)
		assert.NotEmpty(t, uri)
		assert.Equal(t, 2, models.calls)
	})
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "fallback", UserMessage(errors.New("plain"), "fallback"))
	assert.Equal(t, MsgImageLoad, UserMessage(&ResolutionError{URL: "u", Err: errors.New("x")}, "fallback"))
	assert.Equal(t, "custom", UserMessage(&GenerationError{Message: "custom"}, "fallback"))
}
