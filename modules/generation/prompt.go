package generation

import "fmt"

const (
	// ClothingAspectRatio - 의류 생성은 정사각형
	ClothingAspectRatio = "1:1"
	// TryOnAspectRatio - 전신 인물이라 세로형
	TryOnAspectRatio = "3:4"
)

// BuildClothingPrompt - 제품 촬영 스타일 템플릿에 사용자 설명 삽입
func BuildClothingPrompt(description string) string {
	return fmt.Sprintf("Professional product photography of %s, flat lay on a clean neutral background, soft lighting, high fashion quality cloth, isolated.", description)
}

// TryOnInstruction - 인물(이미지 1) + 의류(이미지 2) 합성 지시문
const TryOnInstruction = "A high-quality photo realistic image generation task. " +
	"Reference Image 1 is a person. Reference Image 2 is a piece of clothing. " +
	"Generate a new full-body image of the person from Image 1 wearing the clothing from Image 2. " +
	"Preserve the person's identity, facial features, body shape, and pose as much as possible. " +
	"Fit the clothing naturally onto the body. High fashion photography style, realistic lighting and textures."
