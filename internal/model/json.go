package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap stores an arbitrary key-value map as a JSON column. Used for the
// tenant data/settings blobs and the membership permissions list.
type JSONMap map[string]interface{}

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}

	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

// Bool reads a boolean flag from the map, returning false for missing or
// non-boolean values.
func (m JSONMap) Bool(key string) bool {
	if m == nil {
		return false
	}
	value, ok := m[key].(bool)
	return ok && value
}

// String reads a string value from the map, returning "" when absent.
func (m JSONMap) String(key string) string {
	if m == nil {
		return ""
	}
	value, _ := m[key].(string)
	return value
}
