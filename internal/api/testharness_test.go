package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/mmguero-android/timelimit-android-sub001/internal/actions"
	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
	"github.com/mmguero-android/timelimit-android-sub001/internal/serverdb"
)

const (
	testFamily   = "fam"
	parentPass   = "parent-secret"
	childPass    = "kid-secret"
	testCategory = "games"
)

type testServer struct {
	srv   *Server
	http  *httptest.Server
	store *serverdb.ServerDB
}

func testConfig(dir string) Config {
	return Config{
		ListenAddr:        ":0",
		ServerDBPath:      filepath.Join(dir, "server.db"),
		FamilyDataDir:     filepath.Join(dir, "families"),
		MaxPushBatch:      100,
		RateLimitRegister: 1000,
		RateLimitPush:     1000,
		RateLimitPull:     1000,
	}
}

func testSeed() FamilySeed {
	return FamilySeed{
		FamilyID:         testFamily,
		FullVersionUntil: 1234,
		Message:          "welcome",
		Users: []SeedUser{
			{ID: "parent", Name: "Pat", Type: models.UserTypeParent, Password: parentPass},
			{ID: "kid", Name: "Kim", Type: models.UserTypeChild, Password: childPass},
		},
		Categories: []SeedCategory{{
			ID:      testCategory,
			ChildID: "kid",
			Title:   "Games",
			Apps:    []string{"com.example.game"},
			Rules: []models.TimeLimitRule{{
				ID: "r1", DayMask: 127, MaximumTimeInMillis: 3_600_000, EndMinuteOfDay: 1439,
			}},
		}},
	}
}

// newTestServer starts a server with one seeded family.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := testConfig(dir)

	store, err := serverdb.Open(cfg.ServerDBPath)
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}
	srv, err := NewServer(cfg, store)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := SeedFamily(context.Background(), store, srv.Stores(), testSeed()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown(context.Background())
		store.Close()
	})
	return &testServer{srv: srv, http: ts, store: store}
}

// do sends a JSON request and decodes a JSON reply into out when non-nil.
func (ts *testServer) do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.http.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

// register adds a device to the test family and returns its id and token.
func (ts *testServer) register(t *testing.T, name string) (string, string) {
	t.Helper()
	var resp RegisterResponse
	code := ts.do(t, "POST", "/sync/register-device", "", RegisterRequest{
		ParentID: "parent", Password: parentPass, DeviceName: name, DeviceModel: "test",
	}, &resp)
	if code != http.StatusCreated {
		t.Fatalf("register: status %d", code)
	}
	return resp.DeviceID, resp.DeviceAuthToken
}

func (ts *testServer) family(t *testing.T) *db.DB {
	t.Helper()
	store, err := ts.srv.Stores().Get(testFamily)
	if err != nil {
		t.Fatalf("family store: %v", err)
	}
	return store
}

// read runs fn in a transaction of the family store.
func (ts *testServer) read(t *testing.T, fn func(tx *db.Tx) error) {
	t.Helper()
	if err := ts.family(t).Transaction(context.Background(), fn); err != nil {
		t.Fatalf("family transaction: %v", err)
	}
}

func encode(t *testing.T, p actions.Payload) string {
	t.Helper()
	s, err := actions.Encode(actions.New(p))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return s
}

func deviceTuple(t *testing.T, seq int64, p actions.Payload) ActionTuple {
	t.Helper()
	return ActionTuple{
		SequenceNumber: seq,
		EncodedAction:  encode(t, p),
		Attribution:    deviceAttribution,
		Kind:           actions.KindDeviceAutomatic,
	}
}

func usedMillis(t *testing.T, ts *testServer) int64 {
	t.Helper()
	var total int64
	ts.read(t, func(tx *db.Tx) error {
		items, err := tx.ListUsedTimes(testCategory)
		if err != nil {
			return err
		}
		for _, it := range items {
			total += it.UsedMillis
		}
		return nil
	})
	return total
}
