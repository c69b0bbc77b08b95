package backend

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-campus"
)

var (
	nameColumns = []string{"name", "nome", "full_name"}
	roleColumns = []string{"role", "tipo"}
)

// NormalizeProfile maps a profiles row onto campus.Profile. Rows written by
// older clients use nome and tipo. Rows without a recognised role are
// rejected with ErrInvalidProfile.
func NormalizeProfile(row map[string]any) (*campus.Profile, error) {
	if row == nil {
		return nil, nil
	}

	id := stringColumn(row, "id")
	if id == "" {
		return nil, campus.WrapError(campus.ErrInvalidProfile, nil, map[string]any{
			"reason": "missing id",
		})
	}

	rawRole := firstColumn(row, roleColumns)
	role, ok := campus.ParseRole(rawRole)
	if !ok {
		return nil, campus.WrapError(campus.ErrInvalidProfile, nil, map[string]any{
			"reason":  "unknown role",
			"role":    rawRole,
			"user_id": id,
		})
	}

	return &campus.Profile{
		ID:        id,
		Name:      firstColumn(row, nameColumns),
		Email:     stringColumn(row, "email"),
		Role:      role,
		CreatedAt: timeColumn(row, "created_at"),
		UpdatedAt: timeColumn(row, "updated_at"),
	}, nil
}

// ProfileRow is the inverse of NormalizeProfile, using the current column
// names.
func ProfileRow(p *campus.Profile) map[string]any {
	if p == nil {
		return nil
	}
	row := map[string]any{
		"id":    p.ID,
		"name":  p.Name,
		"email": p.Email,
		"role":  string(p.Role),
	}
	if !p.CreatedAt.IsZero() {
		row["created_at"] = p.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !p.UpdatedAt.IsZero() {
		row["updated_at"] = p.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return row
}

func firstColumn(row map[string]any, columns []string) string {
	for _, c := range columns {
		if v := stringColumn(row, c); v != "" {
			return v
		}
	}
	return ""
}

func stringColumn(row map[string]any, column string) string {
	v, ok := row[column]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func timeColumn(row map[string]any, column string) time.Time {
	switch t := row[column].(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999-07"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}
