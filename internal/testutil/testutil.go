// Package testutil provides common test utilities and helpers for ResellerBot tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/BTreeMap/ResellerBot/internal/models"
	"github.com/BTreeMap/ResellerBot/internal/store"
)

// NewTestStore opens a SQLite store in a temporary directory that is removed
// when the test ends.
func NewTestStore(t *testing.T) store.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "resellerbot_test_")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	st, err := store.NewSQLiteStore(store.WithSQLiteDSN(filepath.Join(dir, "test.db")))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// SeedTenant stores a root menu with the given text and a connected
// Evolution instance named instanceName for tenantID.
func SeedTenant(t *testing.T, st store.Store, tenantID, instanceName, rootText string) {
	t.Helper()
	ctx := context.Background()
	root := &models.Menu{
		TenantID:    tenantID,
		MenuKey:     models.RootMenuKey,
		Title:       "Menu principal",
		MessageText: rootText,
		IsActive:    true,
	}
	if err := st.SaveMenu(ctx, root); err != nil {
		t.Fatalf("failed to seed root menu: %v", err)
	}
	inst := &models.MessagingInstance{
		TenantID:     tenantID,
		InstanceName: instanceName,
		Provider:     models.ProviderEvolution,
		Status:       models.InstanceStatusConnected,
	}
	if err := st.SaveMessagingInstance(ctx, inst); err != nil {
		t.Fatalf("failed to seed messaging instance: %v", err)
	}
}

// SentText is a text recorded by FakeSender.
type SentText struct {
	Instance string
	To       string
	Body     string
}

// SentList is a list recorded by FakeSender.
type SentList struct {
	Instance string
	To       string
	List     models.InteractiveList
}

// FakeSender records sends. Err, when set, is returned from every call.
type FakeSender struct {
	mu    sync.Mutex
	Texts []SentText
	Lists []SentList
	Err   error
}

func (f *FakeSender) SendText(ctx context.Context, inst *models.MessagingInstance, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Texts = append(f.Texts, SentText{Instance: inst.InstanceName, To: to, Body: body})
	return nil
}

func (f *FakeSender) SendInteractiveList(ctx context.Context, inst *models.MessagingInstance, to string, list models.InteractiveList) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Lists = append(f.Lists, SentList{Instance: inst.InstanceName, To: to, List: list})
	return nil
}

// TextCount returns the number of texts sent so far.
func (f *FakeSender) TextCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Texts)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
