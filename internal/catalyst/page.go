package catalyst

import (
	"encoding/json"
	"fmt"
)

// Page is one canonical API response unit: the item sequence plus whatever
// pagination metadata the endpoint reported. Zero metadata fields mean the
// endpoint did not report them.
type Page struct {
	Items      []map[string]any
	PageNumber int
	PagesTotal int
	TotalItems int
}

// Empty reports whether the page carries no items.
func (p *Page) Empty() bool {
	return len(p.Items) == 0
}

// Last reports whether the page's own metadata marks it as final. Endpoints
// without page metadata never report last; termination then falls to the
// empty-page check.
func (p *Page) Last() bool {
	return p.PageNumber > 0 && p.PagesTotal > 0 && p.PageNumber >= p.PagesTotal
}

// parsePage normalizes the envelope shapes the vendor is known to emit: a
// bare item array, an object with items under "Data" or "items", or a single
// object treated as a one-item page. Every other component works on the
// canonical Page and never branches on response shape.
func parsePage(body []byte) (*Page, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse response body: %w", err)
	}

	page := &Page{}

	switch v := raw.(type) {
	case []any:
		items, err := toItems(v)
		if err != nil {
			return nil, err
		}
		page.Items = items

	case map[string]any:
		if data, ok := v["Data"]; ok {
			if err := page.fillItems(data); err != nil {
				return nil, err
			}
		} else if data, ok := v["items"]; ok {
			if err := page.fillItems(data); err != nil {
				return nil, err
			}
		} else {
			// A single object with no envelope key is one item.
			page.Items = []map[string]any{v}
		}

		page.PageNumber = intField(v, "PageNumber")
		page.PagesTotal = intField(v, "PagesTotal")
		page.TotalItems = intField(v, "TotalItems")

	default:
		return nil, fmt.Errorf("unexpected response shape %T", raw)
	}

	return page, nil
}

func (p *Page) fillItems(data any) error {
	switch d := data.(type) {
	case []any:
		items, err := toItems(d)
		if err != nil {
			return err
		}
		p.Items = items
		return nil
	case map[string]any:
		p.Items = []map[string]any{d}
		return nil
	case nil:
		return nil
	default:
		return fmt.Errorf("unexpected item container shape %T", data)
	}
}

func toItems(raw []any) ([]map[string]any, error) {
	items := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		item, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unexpected item shape %T", entry)
		}
		items = append(items, item)
	}
	return items, nil
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
