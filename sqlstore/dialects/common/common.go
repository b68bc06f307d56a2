// Package common carries the vendor-neutral pieces the dialect packages
// build on: the shared statement set and default value coercions.
package common

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Dialect is the embeddable base for vendor dialects. It supplies the
// behavior most vendors share; each vendor overrides what its driver
// needs done differently.
type Dialect struct{}

// CoalesceParameterValue coerces UUIDs to their canonical string form and
// timestamps to UTC. Vendors storing binary UUIDs or integer timestamps
// override this.
func (Dialect) CoalesceParameterValue(v interface{}) interface{} {
	switch value := v.(type) {
	case uuid.UUID:
		return value.String()
	case time.Time:
		return value.UTC()
	default:
		return v
	}
}

// ToTime decodes a timestamp column scanned as time.Time or as text.
func (Dialect) ToTime(v interface{}) (time.Time, error) {
	switch value := v.(type) {
	case time.Time:
		return value.UTC(), nil
	case string:
		return ParseTime(value)
	case []byte:
		return ParseTime(string(value))
	default:
		return time.Time{}, fmt.Errorf("cannot read %T as timestamp", v)
	}
}

// OpenTransaction runs operations in autocommit mode. Vendors that need an
// explicit transaction per operation override this.
func (Dialect) OpenTransaction(context.Context, *sql.Conn) (*sql.Tx, error) {
	return nil, nil
}

// timeFormats covers the textual timestamp shapes the supported drivers
// hand back.
var timeFormats = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTime decodes a textual timestamp in any supported shape into UTC.
func ParseTime(s string) (time.Time, error) {
	for _, format := range timeFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q", s)
}
