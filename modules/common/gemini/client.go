package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"

	"google.golang.org/genai"
)

// ErrNoImage - 응답에 inline 이미지 파트가 없음
var ErrNoImage = errors.New("no image generated")

// ContentGenerator - genai.Client.Models 가 만족하는 최소 인터페이스 (테스트 대역용)
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewClient - Gemini API 백엔드 클라이언트 생성
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Genai client: %w", err)
	}

	log.Println("✅ [Gemini] Client initialized")
	return client, nil
}

// FirstInlineImage - 첫 번째 candidate 의 첫 inline 이미지 파트
// 없으면 ErrNoImage (FinishReason 이 비정상이면 함께 표기)
func FirstInlineImage(resp *genai.GenerateContentResponse) (*genai.Blob, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, ErrNoImage
	}

	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData, nil
			}
		}
	}

	switch candidate.FinishReason {
	case "", genai.FinishReasonUnspecified, genai.FinishReasonStop:
	default:
		return nil, fmt.Errorf("%w (finish reason: %s)", ErrNoImage, candidate.FinishReason)
	}
	return nil, ErrNoImage
}
