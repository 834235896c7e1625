package module

import (
	_ "embed"
	"fmt"

	"github.com/imthegoodboy/AI-Oracle/pkg/config"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

//go:embed curated.yaml
var curatedYaml []byte

type curatedFile struct {
	Version int            `yaml:"version"`
	Models  []curatedEntry `yaml:"models"`
}

type curatedEntry struct {
	Id                string         `yaml:"id"`
	Name              string         `yaml:"name"`
	ModelType         string         `yaml:"modelType"`
	Description       string         `yaml:"description"`
	PricePerInference string         `yaml:"pricePerInference"`
	ResponseTimeMs    *int64         `yaml:"responseTimeMs"`
	AccuracyRate      *float64       `yaml:"accuracyRate"`
	Capabilities      []string       `yaml:"capabilities"`
	Examples          []ExampleUsage `yaml:"exampleUsage"`
	Docs              *ListingDocs   `yaml:"docs"`
}

// LoadCurated parse the curated partition shipped with the binary
func LoadCurated() ([]ModelListing, error) {
	return parseCurated(curatedYaml)
}

func parseCurated(body []byte) ([]ModelListing, error) {
	file := new(curatedFile)
	if err := yaml.Unmarshal(body, file); err != nil {
		return nil, fmt.Errorf("parse curated catalog: %w", err)
	}
	ret := make([]ModelListing, 0, len(file.Models))
	for _, entry := range file.Models {
		price, err := decimal.NewFromString(entry.PricePerInference)
		if err != nil {
			return nil, fmt.Errorf("curated model %s price: %w", entry.Id, err)
		}
		listing := ModelListing{
			Id:                entry.Id,
			ModelType:         entry.ModelType,
			Name:              entry.Name,
			Description:       entry.Description,
			PricePerInference: price,
			ResponseTimeMs:    entry.ResponseTimeMs,
			AccuracyRate:      entry.AccuracyRate,
			Origin:            config.ORIGIN_CURATED,
			Capabilities:      entry.Capabilities,
			Examples:          entry.Examples,
			Docs:              entry.Docs,
			Active:            true,
		}
		if err := validateListing(&listing); err != nil {
			return nil, fmt.Errorf("curated model %s: %w", entry.Id, err)
		}
		ret = append(ret, listing)
	}
	return ret, nil
}
