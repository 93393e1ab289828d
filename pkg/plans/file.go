package plans

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Plans []struct {
		Name     string   `yaml:"name"`
		Price    int64    `yaml:"price"`
		Currency string   `yaml:"currency"`
		Features []string `yaml:"features"`
	} `yaml:"plans"`
}

// LoadCatalogFile reads a YAML catalog override:
//
//	plans:
//	  - name: Bronze
//	    price: 2499
//	    currency: RON
//	    features: ["2 proiecte active"]
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses the YAML catalog format.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	in := make([]Plan, 0, len(f.Plans))
	for _, p := range f.Plans {
		tier, ok := ParseTier(p.Name)
		if !ok {
			return nil, fmt.Errorf("unknown plan %q", p.Name)
		}
		in = append(in, Plan{
			Name:     tier,
			Price:    p.Price,
			Currency: p.Currency,
			Features: p.Features,
		})
	}
	return NewCatalog(in)
}
