package fundkrawler

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"
)

// ThemeRecord is one fund theme with its yields, keyed by variant.
type ThemeRecord struct {
	Code   string             `json:"code"`
	Name   string             `json:"name"`
	Yields map[string]float64 `json:"yields"`
}

// FuncParser turns a response body into theme records
type FuncParser = func(body []byte) ([]*ThemeRecord, error)

var (
	// ErrMalformedPayload indicates the body is not the expected JSON shape
	ErrMalformedPayload = errors.New("malformed theme payload")

	// ErrFeedError indicates the feed answered with a non-zero ErrCode
	ErrFeedError = errors.New("theme feed reported an error")
)

type themePayload struct {
	Data       []map[string]interface{} `json:"Data"`
	ErrCode    int                      `json:"ErrCode"`
	ErrMsg     string                   `json:"ErrMsg"`
	TotalCount int                      `json:"TotalCount"`
}

// ParseThemeRecords decodes a theme list response. The body may still carry
// its JSONP callback wrapper.
func ParseThemeRecords(body []byte) ([]*ThemeRecord, error) {
	var payload themePayload
	if err := json.Unmarshal(UnwrapJSONP(body), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if payload.ErrCode != 0 {
		return nil, fmt.Errorf("%w: code=%d msg=%q", ErrFeedError, payload.ErrCode, payload.ErrMsg)
	}
	if payload.Data == nil {
		return nil, fmt.Errorf("%w: missing Data", ErrMalformedPayload)
	}

	records := make([]*ThemeRecord, 0, len(payload.Data))
	for _, item := range payload.Data {
		code := stringField(item["TTYPE"])
		if code == "" {
			continue
		}
		record := &ThemeRecord{
			Code:   code,
			Name:   stringField(item["TTYPENAME"]),
			Yields: make(map[string]float64),
		}
		for _, variant := range AllVariants {
			if value, ok := numberField(item[string(variant)]); ok {
				record.Yields[string(variant)] = value
			}
		}
		records = append(records, record)
	}

	return records, nil
}

// UnwrapJSONP strips a `callback(...)` or `callback(...);` wrapper. Bodies
// that already look like JSON are returned unchanged.
func UnwrapJSONP(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] == '{' || trimmed[0] == '[' {
		return trimmed
	}

	open := bytes.IndexByte(trimmed, '(')
	if open <= 0 || !isCallbackName(trimmed[:open]) {
		return trimmed
	}
	inner := bytes.TrimRight(trimmed, "; \t\r\n")
	if inner[len(inner)-1] != ')' {
		return trimmed
	}
	return bytes.TrimSpace(inner[open+1 : len(inner)-1])
}

func isCallbackName(name []byte) bool {
	for _, c := range bytes.TrimSpace(name) {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_' || c == '$' || c == '.':
		default:
			return false
		}
	}
	return true
}

func stringField(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// numberField accepts both numeric and quoted values; the feed sends "--" or
// an empty string when a window has no data.
func numberField(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
