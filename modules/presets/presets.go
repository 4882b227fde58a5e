package presets

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tryon-server/modules/common/model"
)

//go:embed presets.yaml
var defaultCatalog []byte

// Catalog - 위자드에서 고를 수 있는 프리셋 인물/의류 목록
type Catalog struct {
	People  []model.ImageItem `yaml:"people" json:"people"`
	Clothes []model.ImageItem `yaml:"clothes" json:"clothes"`
}

// Load - path 가 비어 있으면 내장 카탈로그 사용
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	source := "embedded"
	if path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read presets file: %w", err)
		}
		data = fileData
		source = path
	}

	catalog, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid presets (%s): %w", source, err)
	}

	log.Printf("✅ [Presets] Loaded %d people, %d clothes (%s)", len(catalog.People), len(catalog.Clothes), source)
	return catalog, nil
}

// Parse - YAML 파싱 + 검증
func Parse(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := catalog.validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

func (c *Catalog) validate() error {
	seen := make(map[string]bool)
	for _, group := range []struct {
		name  string
		items []model.ImageItem
	}{{"people", c.People}, {"clothes", c.Clothes}} {
		for i, item := range group.items {
			if strings.TrimSpace(item.ID) == "" {
				return fmt.Errorf("%s[%d]: id is required", group.name, i)
			}
			if strings.TrimSpace(item.URL) == "" {
				return fmt.Errorf("%s[%d] (%s): url is required", group.name, i, item.ID)
			}
			if seen[item.ID] {
				return fmt.Errorf("%s[%d]: duplicate id %q", group.name, i, item.ID)
			}
			seen[item.ID] = true
		}
	}
	return nil
}
