package core

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Sample is one entry of the bundled sample gallery.
type Sample struct {
	ID    int    `yaml:"id" json:"id" validate:"gt=0"`
	URL   string `yaml:"url" json:"url" validate:"required,url"`
	Title string `yaml:"title" json:"title" validate:"required"`
}

// DefaultSamples is the built-in gallery shown next to the upload prompt.
var DefaultSamples = []Sample{
	{
		ID:    1,
		URL:   "https://images.unsplash.com/photo-1492144534655-ae79c964c9d7?auto=format&fit=crop&w=800&q=80",
		Title: "Sports Car",
	},
	{
		ID:    2,
		URL:   "https://images.unsplash.com/photo-1583512603805-3cc6b41f3edb?auto=format&fit=crop&w=800&q=80",
		Title: "Portrait",
	},
	{
		ID:    3,
		URL:   "https://images.unsplash.com/photo-1560343090-f0409e92791a?auto=format&fit=crop&w=800&q=80",
		Title: "Product",
	},
}

// SampleCatalog is an immutable, ordered lookup over samples.
type SampleCatalog struct {
	samples []Sample
	byID    map[int]Sample
}

// NewSampleCatalog validates the entries and builds a catalog.
// IDs must be unique; order is preserved for display.
func NewSampleCatalog(samples []Sample) (*SampleCatalog, error) {
	v := validator.New()
	byID := make(map[int]Sample, len(samples))
	for i, s := range samples {
		if err := v.Struct(s); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		if _, dup := byID[s.ID]; dup {
			return nil, fmt.Errorf("sample %d: duplicate id %d", i, s.ID)
		}
		byID[s.ID] = s
	}

	list := make([]Sample, len(samples))
	copy(list, samples)
	return &SampleCatalog{samples: list, byID: byID}, nil
}

// LoadSampleCatalog returns the built-in catalog when path is empty, otherwise
// reads a YAML list of samples from path.
//
// Example file:
//
//	- id: 1
//	  url: https://example.com/car.jpg
//	  title: Sports Car
func LoadSampleCatalog(path string) (*SampleCatalog, error) {
	if path == "" {
		return NewSampleCatalog(DefaultSamples)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrInvalidSamples(path, err.Error())
	}

	var samples []Sample
	if err := yaml.Unmarshal(data, &samples); err != nil {
		return nil, ErrInvalidSamples(path, err.Error())
	}
	if len(samples) == 0 {
		return nil, ErrInvalidSamples(path, "no samples defined")
	}

	catalog, err := NewSampleCatalog(samples)
	if err != nil {
		return nil, ErrInvalidSamples(path, err.Error())
	}
	return catalog, nil
}

// Lookup returns the sample with the given id.
func (c *SampleCatalog) Lookup(id int) (Sample, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// All returns a copy of the samples in display order.
func (c *SampleCatalog) All() []Sample {
	out := make([]Sample, len(c.samples))
	copy(out, c.samples)
	return out
}

// Len returns the number of samples.
func (c *SampleCatalog) Len() int {
	return len(c.samples)
}
