package generation

import "fmt"

// 사용자에게 보여줄 메시지
const (
	MsgClothingFailed = "Failed to generate the clothing image. Please try again later."
	MsgTryOnFailed    = "Generation failed. It may be a network problem or an unsupported image format, please try again."
	MsgImageLoad      = "Could not load the image. Try uploading a local image or check your network connection."
)

// GenerationError - 생성 실패 (원인은 Err 로 감쌈)
type GenerationError struct {
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// ResolutionError - 원격 이미지 로딩 실패
type ResolutionError struct {
	URL string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to load image %s: %v", e.URL, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// UserMessage - 사용자용 메시지
func (e *ResolutionError) UserMessage() string {
	return MsgImageLoad
}
