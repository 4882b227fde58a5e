package model

// ImageItem - 선택 가능한 이미지 (프리셋, 업로드, 생성 결과)
// 한 번 만들어지면 수정하지 않고 선택 시 통째로 교체한다
type ImageItem struct {
	ID          string `json:"id" yaml:"id"`
	URL         string `json:"url" yaml:"url"`                                       // 원격 URL 또는 data URI
	IsUploaded  bool   `json:"isUploaded,omitempty" yaml:"isUploaded,omitempty"`   // true면 URL이 data URI
	Description string `json:"description,omitempty" yaml:"description,omitempty"` // 표시용 설명
}

// HistoryItem - 완료된 가상 피팅 1건의 기록 (history 저장소에 최신순으로 보관)
type HistoryItem struct {
	ID           string `json:"id"`
	Timestamp    int64  `json:"timestamp"` // epoch millis
	PersonImage  string `json:"personImage"`
	ClothesImage string `json:"clothesImage"`
	ResultImage  string `json:"resultImage"`
}

// Step - 위자드 단계
type Step int

const (
	StepSelectPerson   Step = 1
	StepSelectClothes  Step = 2
	StepGenerateResult Step = 3
)

func (s Step) String() string {
	switch s {
	case StepSelectPerson:
		return "select_person"
	case StepSelectClothes:
		return "select_clothes"
	case StepGenerateResult:
		return "generate_result"
	default:
		return "unknown"
	}
}

// ResultStatus - 결과 단계 상태
type ResultStatus string

const (
	ResultLoading ResultStatus = "loading"
	ResultFailed  ResultStatus = "error"
	ResultDone    ResultStatus = "done"
)
