package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// MockRegistry provides a mock GitHub API server serving tags, releases and
// release asset downloads
type MockRegistry struct {
	*httptest.Server
	Owner string
	Repo  string

	mu        sync.Mutex
	responses map[string]MockResponse
	requests  []MockRequest
}

// MockResponse holds response data for a path
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
}

// MockRequest records a request made to the mock server
type MockRequest struct {
	Method string
	Path   string
}

// NewMockRegistry creates a mock registry for owner/repo
func NewMockRegistry(t *testing.T, owner, repo string) *MockRegistry {
	t.Helper()

	mock := &MockRegistry{
		Owner:     owner,
		Repo:      repo,
		responses: make(map[string]MockResponse),
	}

	mock.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requests = append(mock.requests, MockRequest{Method: r.Method, Path: r.URL.Path})
		response, ok := mock.responses[r.URL.Path]
		mock.mu.Unlock()

		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})
			return
		}

		for key, value := range response.Headers {
			w.Header().Set(key, value)
		}
		if response.StatusCode != 0 {
			w.WriteHeader(response.StatusCode)
		}
		w.Write(response.Body)
	}))

	t.Cleanup(mock.Server.Close)
	return mock
}

func (m *MockRegistry) repoPath(suffix string) string {
	return fmt.Sprintf("/repos/%s/%s/%s", m.Owner, m.Repo, suffix)
}

// SetRawResponse sets a raw response for a path
func (m *MockRegistry) SetRawResponse(path string, statusCode int, body []byte, headers map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = MockResponse{StatusCode: statusCode, Body: body, Headers: headers}
}

func (m *MockRegistry) setJSON(path string, statusCode int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	m.SetRawResponse(path, statusCode, body, map[string]string{"Content-Type": "application/json"})
}

// SetTags publishes tags, newest first
func (m *MockRegistry) SetTags(tags ...string) {
	list := make([]map[string]string, 0, len(tags))
	for _, tag := range tags {
		list = append(list, map[string]string{"name": tag})
	}
	m.setJSON(m.repoPath("tags"), http.StatusOK, list)
}

// SetRelease publishes a release for tag whose assets are served by the mock
// itself under /downloads/<tag>/<name>
func (m *MockRegistry) SetRelease(tag string, assets map[string][]byte) {
	list := make([]map[string]string, 0, len(assets))
	for name, body := range assets {
		path := "/downloads/" + tag + "/" + name
		m.SetRawResponse(path, http.StatusOK, body, map[string]string{"Content-Type": "application/octet-stream"})
		list = append(list, map[string]string{
			"name":                 name,
			"browser_download_url": m.URL + path,
		})
	}
	m.setJSON(m.repoPath("releases/tags/"+tag), http.StatusOK, map[string]interface{}{
		"tag_name": tag,
		"assets":   list,
	})
}

// SetError makes an API path suffix (e.g. "tags") answer with statusCode
func (m *MockRegistry) SetError(suffix string, statusCode int) {
	m.setJSON(m.repoPath(suffix), statusCode, map[string]string{"message": http.StatusText(statusCode)})
}

// RequestCount returns the number of requests whose path contains fragment
func (m *MockRegistry) RequestCount(fragment string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, req := range m.requests {
		if strings.Contains(req.Path, fragment) {
			count++
		}
	}
	return count
}

// Requests returns a copy of the recorded requests
func (m *MockRegistry) Requests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
