package param

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cast"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Document is the JSON form of a model. Params keep wire order.
type Document struct {
	Family     string                              `json:"family"`
	Bank       int                                 `json:"bank"`
	Number     int                                 `json:"number"`
	Name       string                              `json:"name"`
	Studio     int                                 `json:"studio,omitempty"`
	StudioName string                              `json:"studio_name,omitempty"`
	Params     *orderedmap.OrderedMap[string, int] `json:"params"`
}

// Export builds the JSON document for m. Names in order come first, any
// other set parameters follow sorted.
func Export(m *Model, family string, order []string) *Document {
	params := orderedmap.New[string, int]()
	for _, k := range order {
		if v, ok := m.values[k]; ok {
			params.Set(k, v)
		}
	}
	var rest []string
	for k := range m.values {
		if _, ok := params.Get(k); !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		params.Set(k, m.values[k])
	}
	return &Document{
		Family:     family,
		Bank:       m.Bank,
		Number:     m.Number,
		Name:       m.Name,
		Studio:     m.Studio,
		StudioName: m.StudioName,
		Params:     params,
	}
}

type importDoc struct {
	Family     string         `json:"family"`
	Bank       *int           `json:"bank"`
	Number     *int           `json:"number"`
	Name       *string        `json:"name"`
	Studio     *int           `json:"studio"`
	StudioName *string        `json:"studio_name"`
	Params     map[string]any `json:"params"`
}

// Import applies a JSON document onto m and returns its family. Parameter
// values may be numbers, numeric strings or booleans; each is clamped to the
// range declared on m.
func Import(data []byte, m *Model) (string, error) {
	var doc importDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("failed to unmarshal patch JSON: %w", err)
	}
	if doc.Bank != nil {
		m.Bank = *doc.Bank
	}
	if doc.Number != nil {
		m.Number = *doc.Number
	}
	if doc.Name != nil {
		m.Name = *doc.Name
	}
	if doc.Studio != nil {
		m.Studio = *doc.Studio
	}
	if doc.StudioName != nil {
		m.StudioName = *doc.StudioName
	}
	keys := make([]string, 0, len(doc.Params))
	for k := range doc.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := cast.ToIntE(doc.Params[k])
		if err != nil {
			return "", fmt.Errorf("param %q: %w", k, err)
		}
		m.Set(k, v)
	}
	return doc.Family, nil
}
