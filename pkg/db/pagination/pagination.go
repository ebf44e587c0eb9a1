// Package pagination implements opaque cursor paging for list endpoints.
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

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

// BuildPageInfo trims one overflow row and reports whether more pages exist.
func BuildPageInfo[T any](data []T, limit int, extractCursor func(T) Cursor) ([]T, *PageInfo, error) {
	if len(data) == 0 {
		return data, &PageInfo{}, nil
	}

	hasMore := false
	if len(data) > limit {
		hasMore = true
		data = data[:limit]
	}

	token, err := EncodeCursor(extractCursor(data[len(data)-1]))
	if err != nil {
		return nil, nil, err
	}

	return data, &PageInfo{HasMore: hasMore, NextPageToken: token}, nil
}
