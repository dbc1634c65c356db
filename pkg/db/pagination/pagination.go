package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

// Size clamps the requested page size into [1, MaxPageSize].
func (p Pagination) Size() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

// Cursor points at the last row of the previous page.
type Cursor struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(id snowflake.ID, createdAt time.Time) (string, error) {
	b, err := json.Marshal(Cursor{ID: id.String(), CreatedAt: createdAt.UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(token string) (snowflake.ID, time.Time, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return 0, time.Time{}, ErrInvalidPageToken
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return 0, time.Time{}, ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(cursor.ID)
	if err != nil {
		return 0, time.Time{}, ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
	if err != nil {
		return 0, time.Time{}, ErrInvalidPageToken
	}
	return id, createdAt, nil
}

// Apply adds keyset conditions for a newest first listing ordered by the
// given timestamp column then id. One extra row is fetched to detect more.
func Apply(stmt *gorm.DB, page Pagination, timeColumn string) (*gorm.DB, error) {
	if token := strings.TrimSpace(page.PageToken); token != "" {
		id, at, err := DecodeCursor(token)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("("+timeColumn+" < ?) OR ("+timeColumn+" = ? AND id < ?)", at, at, id)
	}
	return stmt.Order(timeColumn + " desc, id desc").Limit(page.Size() + 1), nil
}

// Trim drops the probe row fetched by Apply and builds the page info.
func Trim[T any](items []T, page Pagination, cursor func(T) (snowflake.ID, time.Time)) ([]T, PageInfo, error) {
	size := page.Size()
	if len(items) <= size {
		return items, PageInfo{}, nil
	}

	items = items[:size]
	id, at := cursor(items[len(items)-1])
	token, err := EncodeCursor(id, at)
	if err != nil {
		return nil, PageInfo{}, err
	}
	return items, PageInfo{NextPageToken: token, HasMore: true}, nil
}
