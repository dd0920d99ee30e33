package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// StripCodeFences removes a surrounding markdown code fence if the model
// wrapped its JSON in one.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// SanitizeCandidateJSON normalizes a raw model candidate so it can pass the
// stricter schema: coerces numbers to decimal strings, drops null/blank
// entries, and renames common line-item synonyms. It only ever touches
// values; it never invents data.
func SanitizeCandidateJSON(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var changed []string

	for _, section := range []string{"vendor", "customer", "invoice_metadata", "totals", "payment_instructions"} {
		sec, ok := m[section].(map[string]any)
		if !ok {
			if _, present := m[section]; present {
				delete(m, section)
				changed = append(changed, section)
			}
			continue
		}
		for k, v := range sec {
			switch t := v.(type) {
			case nil:
				delete(sec, k)
				changed = append(changed, section+"."+k)
			case string:
				if strings.TrimSpace(t) == "" || strings.EqualFold(t, "null") {
					delete(sec, k)
					changed = append(changed, section+"."+k)
				}
			case float64:
				sec[k] = formatNumber(t)
				changed = append(changed, section+"."+k)
			case bool:
				sec[k] = strconv.FormatBool(t)
				changed = append(changed, section+"."+k)
			default:
				delete(sec, k)
				changed = append(changed, section+"."+k)
			}
		}
	}

	if items, ok := m["line_items"].([]any); ok {
		kept := make([]any, 0, len(items))
		for i, it := range items {
			item, ok := it.(map[string]any)
			if !ok {
				changed = append(changed, fmt.Sprintf("line_items[%d]", i))
				continue
			}
			renameKey(item, "qty", "quantity")
			renameKey(item, "price", "unit_price")
			renameKey(item, "amount", "line_total")
			renameKey(item, "total", "line_total")
			for _, k := range []string{"quantity", "unit_price", "line_total"} {
				switch t := item[k].(type) {
				case nil:
					delete(item, k)
				case float64:
					item[k] = formatNumber(t)
					changed = append(changed, fmt.Sprintf("line_items[%d].%s", i, k))
				case string:
					s := strings.TrimSpace(t)
					if s == "" || strings.EqualFold(s, "null") {
						delete(item, k)
						changed = append(changed, fmt.Sprintf("line_items[%d].%s", i, k))
					} else if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
						item[k] = formatNumber(f)
					} else {
						delete(item, k)
						changed = append(changed, fmt.Sprintf("line_items[%d].%s", i, k))
					}
				}
			}
			desc, _ := item["description"].(string)
			if strings.TrimSpace(desc) == "" {
				changed = append(changed, fmt.Sprintf("line_items[%d]", i))
				continue
			}
			// drop keys the schema doesn't know
			for k := range item {
				switch k {
				case "description", "quantity", "unit_price", "line_total":
				default:
					delete(item, k)
					changed = append(changed, fmt.Sprintf("line_items[%d].%s", i, k))
				}
			}
			kept = append(kept, item)
		}
		m["line_items"] = kept
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return b, changed, nil
}

func renameKey(m map[string]any, from, to string) {
	if v, ok := m[from]; ok {
		if _, exists := m[to]; !exists {
			m[to] = v
		}
		delete(m, from)
	}
}

// formatNumber keeps integers bare and fractions at two decimals, matching
// the decimal-string pattern in the schema.
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}
