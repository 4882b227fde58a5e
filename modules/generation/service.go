package generation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"google.golang.org/genai"

	"tryon-server/modules/common/gemini"
	"tryon-server/modules/common/utils"
)

// Service - Gemini 이미지 생성 클라이언트 (의류 생성 / 가상 피팅)
// 실패 시 재시도하지 않는다. 재시도는 사용자가 다시 호출하는 것으로만 일어난다
type Service struct {
	models   gemini.ContentGenerator
	resolver *Resolver
	model    string
}

func NewService(models gemini.ContentGenerator, resolver *Resolver, model string) *Service {
	return &Service{
		models:   models,
		resolver: resolver,
		model:    model,
	}
}

// GenerateClothingImage - 텍스트 설명으로 의류 이미지 생성, data URI 반환
func (s *Service) GenerateClothingImage(ctx context.Context, prompt string) (string, error) {
	startTime := time.Now()
	log.Printf("🎨 [Generation] Clothing request: model=%s, prompt=%s", s.model, utils.TruncateString(prompt, 50))

	parts := []*genai.Part{
		genai.NewPartFromText(BuildClothingPrompt(prompt)),
	}

	dataURI, err := s.generate(ctx, parts, ClothingAspectRatio)
	if err != nil {
		log.Printf("❌ [Generation] Generate clothing error: %v", err)
		return "", &GenerationError{Message: MsgClothingFailed, Err: err}
	}

	log.Printf("✅ [Generation] Clothing image generated in %.1fs", time.Since(startTime).Seconds())
	return dataURI, nil
}

// GenerateTryOnResult - 인물 + 의류 이미지를 합성, data URI 반환
func (s *Service) GenerateTryOnResult(ctx context.Context, personURL, clothesURL string) (string, error) {
	startTime := time.Now()
	log.Printf("👗 [Generation] Try-on request: model=%s", s.model)

	person, err := s.resolver.Resolve(ctx, personURL)
	if err != nil {
		log.Printf("❌ [Generation] Person image unavailable: %v", err)
		return "", &GenerationError{Message: MsgImageLoad, Err: err}
	}
	clothes, err := s.resolver.Resolve(ctx, clothesURL)
	if err != nil {
		log.Printf("❌ [Generation] Clothes image unavailable: %v", err)
		return "", &GenerationError{Message: MsgImageLoad, Err: err}
	}

	personPart, err := inlinePart(person)
	if err != nil {
		return "", &GenerationError{Message: MsgTryOnFailed, Err: fmt.Errorf("person image: %w", err)}
	}
	clothesPart, err := inlinePart(clothes)
	if err != nil {
		return "", &GenerationError{Message: MsgTryOnFailed, Err: fmt.Errorf("clothes image: %w", err)}
	}

	// 지시문 → 인물(이미지 1) → 의류(이미지 2) 순서
	parts := []*genai.Part{
		genai.NewPartFromText(TryOnInstruction),
		personPart,
		clothesPart,
	}

	dataURI, err := s.generate(ctx, parts, TryOnAspectRatio)
	if err != nil {
		log.Printf("❌ [Generation] Generate try-on error: %v", err)
		return "", &GenerationError{Message: MsgTryOnFailed, Err: err}
	}

	log.Printf("✅ [Generation] Try-on image generated in %.1fs", time.Since(startTime).Seconds())
	return dataURI, nil
}

// generate - 요청 1회 실행 후 첫 inline 이미지를 data URI 로 반환
func (s *Service) generate(ctx context.Context, parts []*genai.Part, aspectRatio string) (string, error) {
	result, err := s.models.GenerateContent(
		ctx,
		s.model,
		[]*genai.Content{{Parts: parts}},
		&genai.GenerateContentConfig{
			ImageConfig: &genai.ImageConfig{
				AspectRatio: aspectRatio,
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}

	blob, err := gemini.FirstInlineImage(result)
	if err != nil {
		return "", err
	}

	mimeType := blob.MIMEType
	if mimeType == "" {
		mimeType = utils.DefaultImageMimeType
	}
	return utils.BuildDataURI(mimeType, base64.StdEncoding.EncodeToString(blob.Data)), nil
}

func inlinePart(img *ResolvedImage) (*genai.Part, error) {
	data, err := base64.StdEncoding.DecodeString(img.Base64)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return genai.NewPartFromBytes(data, img.MimeType), nil
}

// UserMessage - 에러에서 사용자용 메시지 추출
func UserMessage(err error, fallback string) string {
	var genErr *GenerationError
	if errors.As(err, &genErr) && genErr.Message != "" {
		return genErr.Message
	}
	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return resErr.UserMessage()
	}
	return fallback
}
