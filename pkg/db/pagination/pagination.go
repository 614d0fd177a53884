package pagination

import (
	"encoding/base64"
	"encoding/json"
)

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=20"`
}

// Limit clamps the requested page size to 1..250.
func (p Pagination) Limit() int {
	switch {
	case p.PageSize <= 0:
		return 20
	case p.PageSize > 250:
		return 250
	default:
		return p.PageSize
	}
}

type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

// BuildCursorPageInfo trims the lookahead row and returns the page with its token.
func BuildCursorPageInfo[T any](data []T, limit int, extractCursor func(T) Cursor) ([]T, PageInfo) {
	if len(data) <= limit {
		return data, PageInfo{}
	}
	data = data[:limit]
	token, err := EncodeCursor(extractCursor(data[len(data)-1]))
	if err != nil {
		return data, PageInfo{}
	}
	return data, PageInfo{NextPageToken: token, HasMore: true}
}
