package store

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// StringArray maps a Go []string to a PostgreSQL text[] column without
// pulling in a separate array-type library: transaction hashes and receipt
// IDs are opaque strings with no embedded commas, quotes, or braces, so the
// standard array literal encoding is simple to round-trip by hand.
type StringArray []string

// GormDataType tells GORM's AutoMigrate what column type to use.
func (StringArray) GormDataType() string { return "text[]" }

// GormDBDataType is the PostgreSQL-specific override GORM consults during
// migration.
func (StringArray) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return "text[]"
}

// Value implements driver.Valuer.
func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, s := range a {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s))
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String(), nil
}

// Scan implements sql.Scanner.
func (a *StringArray) Scan(src any) error {
	if src == nil {
		*a = nil
		return nil
	}
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("store: cannot scan %T into StringArray", src)
	}
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	if s == "" {
		*a = StringArray{}
		return nil
	}
	parts := strings.Split(s, ",")
	out := make(StringArray, len(parts))
	for i, p := range parts {
		out[i] = strings.Trim(p, `"`)
	}
	*a = out
	return nil
}
