// Package pagination normalizes page sizes and tokens for list RPCs.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// PageSizeConfig configures page size normalization.
type PageSizeConfig struct {
	Default int
	Max     int
}

// ClampPageSize applies defaults and limits for page sizes.
func ClampPageSize(value int32, cfg PageSizeConfig) int {
	pageSize := int(value)
	if pageSize <= 0 {
		pageSize = cfg.Default
	}
	if cfg.Max > 0 && pageSize > cfg.Max {
		pageSize = cfg.Max
	}
	if pageSize <= 0 {
		pageSize = 1
	}
	return pageSize
}

// EncodeCursor turns the last key of a page into an opaque page token.
func EncodeCursor(key int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(key)))
}

// DecodeCursor reads a page token produced by EncodeCursor. An empty token
// starts from the beginning and yields ok=false.
func DecodeCursor(token string) (key int, ok bool, err error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, false, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, false, fmt.Errorf("invalid page token: %w", err)
	}
	key, err = strconv.Atoi(string(raw))
	if err != nil {
		return 0, false, fmt.Errorf("invalid page token: %w", err)
	}
	return key, true, nil
}
