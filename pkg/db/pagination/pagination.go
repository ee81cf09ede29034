// Package pagination implements opaque cursor tokens for list endpoints.
package pagination

import (
	"encoding/base64"
	"encoding/json"
)

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=25" validate:"gte=1,lte=250"`
}

type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeCursor(token string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// BuildPageInfo trims an over-fetched page (limit+1 rows) and reports
// whether more rows remain.
func BuildPageInfo[T any](rows []*T, limit int, extractCursor func(*T) string) ([]*T, *PageInfo) {
	if len(rows) == 0 {
		return rows, &PageInfo{}
	}

	info := &PageInfo{}
	if limit > 0 && len(rows) > limit {
		info.HasMore = true
		rows = rows[:limit]
	}
	info.NextPageToken = extractCursor(rows[len(rows)-1])
	return rows, info
}
