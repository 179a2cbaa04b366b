package send

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseFrom splits a `local@host` or `Name <local@host>` address per
// spec.md §4.2 step 2, stripping any quotes wrapped around the display
// name. The address part is returned unmodified (case preserved); callers
// compare its domain case-insensitively against the authorized domain.
func ParseFrom(raw string) (name, address string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", fmt.Errorf("from is required")
	}

	if i := strings.Index(raw, "<"); i >= 0 {
		j := strings.LastIndex(raw, ">")
		if j <= i {
			return "", "", fmt.Errorf("malformed from address")
		}
		address = strings.TrimSpace(raw[i+1 : j])
		name = strings.TrimSpace(raw[:i])
		name = strings.Trim(name, `"`)
		name = strings.TrimSpace(name)
	} else {
		address = raw
	}

	if address == "" || !strings.Contains(address, "@") {
		return "", "", fmt.Errorf("invalid from address")
	}
	return name, address, nil
}

// DomainOf returns the lowercased right-hand side of an email address.
func DomainOf(address string) string {
	i := strings.LastIndex(address, "@")
	if i < 0 {
		return ""
	}
	return strings.ToLower(address[i+1:])
}

// ParseTo normalizes the wire's `to` field, which may be a bare string or
// an array of strings (spec.md §4.2 step 3).
func ParseTo(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("to is required")
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if strings.TrimSpace(single) == "" {
			return nil, fmt.Errorf("to is required")
		}
		return []string{single}, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return nil, fmt.Errorf("to is required")
		}
		return list, nil
	}

	return nil, fmt.Errorf("to must be a string or an array of strings")
}

// ParseVariables normalizes the wire's `variables` field, which may be a
// JSON object or a JSON-encoded string of one (spec.md §9 "Mixed
// JSON/form variables"). An invalid JSON string is silently treated as no
// variables, per spec.md §4.2 step 1.
func ParseVariables(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return map[string]string{}
	}

	var obj map[string]string
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj == nil {
			obj = map[string]string{}
		}
		return obj
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var nested map[string]string
		if err := json.Unmarshal([]byte(s), &nested); err == nil && nested != nil {
			return nested
		}
		return map[string]string{}
	}

	return map[string]string{}
}
