package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// WeekdayList is a custom type for handling TEXT[] day arrays in PostgreSQL
type WeekdayList []Weekday

// Value implements the driver.Valuer interface
func (l WeekdayList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return pq.Array(l.Strings()).Value()
}

// Scan implements the sql.Scanner interface
func (l *WeekdayList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}
	var raw []string
	if err := pq.Array(&raw).Scan(src); err != nil {
		return err
	}
	out := make(WeekdayList, 0, len(raw))
	for _, s := range raw {
		out = append(out, Weekday(s))
	}
	*l = out
	return nil
}

// Strings returns the day names as plain strings
func (l WeekdayList) Strings() []string {
	out := make([]string, len(l))
	for i, d := range l {
		out[i] = string(d)
	}
	return out
}

// UUIDArray is a custom type for handling UUID[] arrays in PostgreSQL
type UUIDArray []string

// NewUUIDArray converts ids into their text form for ANY($n) queries
func NewUUIDArray(ids []uuid.UUID) UUIDArray {
	out := make(UUIDArray, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// Value implements the driver.Valuer interface
func (a UUIDArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return pq.Array([]string(a)).Value()
}

// Scan implements the sql.Scanner interface
func (a *UUIDArray) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	slice := (*[]string)(a)
	return pq.Array(slice).Scan(src)
}

// JSONB is a free-form JSON object column
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
// Returns JSON as string for compatibility with pgx simple protocol mode
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
}
