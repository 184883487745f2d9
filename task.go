package fundkrawler

import (
	"fmt"
	"math/rand"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ThemeURITemplate is the theme fund list endpoint. The first verb takes the
// variant and the second one a millisecond timestamp used as cache buster.
const ThemeURITemplate = "http://api.fund.eastmoney.com/ztjj/GetZTJJList?callback=jQuery183034382836069271905_1613810977162&tt=0&dt=syl&st=%s&_=%d"

// ThemeStoreFilename is the fixed file name every snapshot is written to.
const ThemeStoreFilename = "theme.json"

// DefaultUserAgents is the pool a task picks its User-Agent from.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/79.0.3945.117 Safari/537.36",
	"Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/537.1 (KHTML, like Gecko) Chrome/21.0.1180.71 Safari/537.1 LBBROWSER",
	"Mozilla/4.0 (compatible; MSIE 6.0; Windows NT 5.1; SV1; QQDownload 732; .NET4.0C; .NET4.0E)",
	"Mozilla/5.0 (Windows NT 5.1) AppleWebKit/535.11 (KHTML, like Gecko) Chrome/17.0.963.84 Safari/535.11 SE 2.X MetaSr 1.0",
	"Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Maxthon/4.4.3.4000 Chrome/30.0.1599.101 Safari/537.36",
	"Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/38.0.2125.122 UBrowser/4.0.3214.0 Safari/537.36",
}

// DefaultHeaders returns the header set sent with every theme request, without
// the User-Agent.
func DefaultHeaders() http.Header {
	return http.Header{
		"Host":             {"api.fund.eastmoney.com"},
		"Proxy-Connection": {"keep-alive"},
		"Accept":           {"*/*"},
		"Accept-Encoding":  {"gzip, deflate"},
		"Referer":          {"http://fund.eastmoney.com/"},
		"Accept-Language":  {"zh-CN,zh;q=0.9,en;q=0.8"},
	}
}

// TaskState is the position of a task in the scheduler state machine.
type TaskState int32

// TaskState constant definitions
const (
	TaskPending TaskState = iota
	TaskInFlight
	TaskDone
	TaskAbandoned
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskInFlight:
		return "in-flight"
	case TaskDone:
		return "done"
	case TaskAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("TaskState(%d)", int32(s))
	}
}

// Task defines the structure of a task. Everything above Attempts is fixed
// once the task is built.
type Task struct {
	ID        uuid.UUID
	Variant   Variant
	URL       string
	Method    string
	Headers   http.Header
	StorePath string
	CreatedAt time.Time

	Attempts int
	State    TaskState
	LastErr  error
}

// HashCode returns a unique identity to the task
func (t *Task) HashCode() string {
	return fmt.Sprintf("%s|%s|%s", t.Method, t.URL, t.Variant)
}

// String returns name of the task
func (t *Task) String() string {
	return fmt.Sprintf("%s %s", strings.ToUpper(t.Method), t.URL)
}

// Succeeded reports whether the task reached the Done state.
func (t *Task) Succeeded() bool {
	return t.State == TaskDone
}

// TaskTemplate describes how tasks are derived from a variant and a timestamp.
type TaskTemplate struct {
	URI        string
	Method     string
	Headers    http.Header
	UserAgents []string
	Filename   string

	// Intn picks a User-Agent index, rand.Intn when nil.
	Intn func(n int) int
}

// DefaultTaskTemplate returns the template pointing at the theme endpoint.
func DefaultTaskTemplate() *TaskTemplate {
	return &TaskTemplate{
		URI:        ThemeURITemplate,
		Method:     http.MethodGet,
		Headers:    DefaultHeaders(),
		UserAgents: DefaultUserAgents,
		Filename:   ThemeStoreFilename,
	}
}

// NewTask builds a task for variant as seen at now.
func (tpl *TaskTemplate) NewTask(variant Variant, now time.Time) *Task {
	headers := tpl.Headers.Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	if ua := tpl.pickUserAgent(); ua != "" {
		headers.Set("User-Agent", ua)
	}

	method := tpl.Method
	if method == "" {
		method = http.MethodGet
	}

	return &Task{
		ID:        uuid.New(),
		Variant:   variant,
		URL:       tpl.RequestURL(variant, now),
		Method:    method,
		Headers:   headers,
		StorePath: tpl.StorePath(variant, now),
		CreatedAt: now,
		State:     TaskPending,
	}
}

// RequestURL formats the endpoint for variant at now.
func (tpl *TaskTemplate) RequestURL(variant Variant, now time.Time) string {
	return fmt.Sprintf(tpl.URI, variant, now.UnixMilli())
}

// StorePath returns yyyy/mm/dd/<label>/<filename> for the calendar day of now.
func (tpl *TaskTemplate) StorePath(variant Variant, now time.Time) string {
	filename := tpl.Filename
	if filename == "" {
		filename = ThemeStoreFilename
	}
	return path.Join(now.Format("2006/01/02"), variant.Label(), filename)
}

func (tpl *TaskTemplate) pickUserAgent() string {
	if len(tpl.UserAgents) == 0 {
		return ""
	}
	intn := tpl.Intn
	if intn == nil {
		intn = rand.Intn
	}
	return tpl.UserAgents[intn(len(tpl.UserAgents))]
}
