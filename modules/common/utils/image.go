package utils

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // GIF 디코더 등록
	_ "image/jpeg" // JPEG 디코더 등록
	_ "image/png"  // PNG 디코더 등록
	"io"
	"log"
	"net/http"
	"strings"

	_ "github.com/kolesa-team/go-webp/decoder" // WebP 디코더 등록
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

// DefaultImageMimeType - MIME을 알 수 없을 때 사용
const DefaultImageMimeType = "image/png"

// MaxUploadBytes - 업로드 이미지 최대 크기
const MaxUploadBytes = 20 << 20

// ConvertImageToBase64 - 이미지 바이너리를 base64로 변환
func ConvertImageToBase64(imageData []byte) string {
	return base64.StdEncoding.EncodeToString(imageData)
}

// IsDataURI - "data:" 로 시작하는지
func IsDataURI(url string) bool {
	return strings.HasPrefix(url, "data:")
}

// BuildDataURI - data:<mime>;base64,<payload>
func BuildDataURI(mimeType, base64Data string) string {
	if mimeType == "" {
		mimeType = DefaultImageMimeType
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64Data)
}

// SplitDataURI - data URI를 MIME 타입과 첫 번째 콤마 뒤 payload로 분리
func SplitDataURI(url string) (mimeType, payload string, ok bool) {
	if !IsDataURI(url) {
		return "", "", false
	}
	header, payload, found := strings.Cut(url, ",")
	if !found {
		return "", "", false
	}
	mimeType = strings.TrimPrefix(header, "data:")
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return mimeType, payload, true
}

// DecodeDataURI - base64 data URI를 바이너리로 디코딩
func DecodeDataURI(url string) ([]byte, string, error) {
	mimeType, payload, ok := SplitDataURI(url)
	if !ok {
		return nil, "", fmt.Errorf("not a data URI")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode data URI payload: %w", err)
	}
	if mimeType == "" {
		mimeType = DetectImageMimeType(data)
	}
	return data, mimeType, nil
}

// DetectImageMimeType - 바이너리에서 이미지 MIME 추정, 실패 시 기본값
func DetectImageMimeType(data []byte) string {
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return DefaultImageMimeType
	}
	return mimeType
}

// FileSource - 사용자가 고른 로컬 파일 (업로드 multipart 파트 등)
type FileSource interface {
	Open() (io.ReadCloser, error)
	// ContentType - 알 수 없으면 빈 문자열
	ContentType() string
}

// ReadDataURI - 파일 내용을 data URI로 읽음. 이미지가 아니거나 너무 크면 에러
func ReadDataURI(src FileSource) (string, error) {
	rc, err := src.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxUploadBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("file is empty")
	}
	if len(data) > MaxUploadBytes {
		return "", fmt.Errorf("file exceeds %d bytes", MaxUploadBytes)
	}

	mimeType := src.ContentType()
	if !strings.HasPrefix(mimeType, "image/") {
		sniffed := http.DetectContentType(data)
		if !strings.HasPrefix(sniffed, "image/") {
			return "", fmt.Errorf("file is not an image (%s)", sniffed)
		}
		mimeType = sniffed
	}

	return BuildDataURI(mimeType, ConvertImageToBase64(data)), nil
}

// ConvertToWebP - PNG/JPEG/GIF/WebP 바이너리를 WebP로 변환
func ConvertToWebP(imageData []byte, quality float32) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, quality)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebP encoder options: %w", err)
	}

	var webpBuffer bytes.Buffer
	if err := webp.Encode(&webpBuffer, img, options); err != nil {
		return nil, fmt.Errorf("failed to encode WebP: %w", err)
	}

	webpData := webpBuffer.Bytes()
	log.Printf("✅ %s converted to WebP: %d bytes → %d bytes", format, len(imageData), len(webpData))
	return webpData, nil
}

// TruncateString - 로그용 문자열 자르기
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
