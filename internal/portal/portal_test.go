package portal_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lavabit/magmad/internal/mailbox"
	"github.com/lavabit/magmad/internal/portal"
	"github.com/lavabit/magmad/internal/session"
	"github.com/lavabit/magmad/internal/store"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(
		&store.User{}, &store.Folder{}, &store.Message{}, &store.Alias{},
		&store.Contact{}, &store.Alert{}, &store.ConfigRow{}, &store.SerialRow{}, &store.AuthFailure{},
	); err != nil {
		t.Fatal(err)
	}
	return db
}

type harness struct {
	d  *portal.Dispatcher
	db *gorm.DB
}

func newHarness(t *testing.T, username, password string) *harness {
	t.Helper()
	db := testDB(t)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&store.User{UserID: 1, Username: username, PasswordHash: hash}).Error; err != nil {
		t.Fatal(err)
	}

	sqlStore := store.NewSQLStore(db)
	cache := store.NewCache(db)
	registry := session.NewRegistry(sqlStore)
	metrics := portal.NewMetrics(prometheus.NewRegistry())
	d := portal.NewDispatcher(registry, sqlStore, sqlStore, cache, cache, metrics)
	return &harness{d: d, db: db}
}

func (h *harness) call(t *testing.T, token, method string, params interface{}) portal.Response {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatal(err)
	}
	req, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  json.RawMessage(raw),
		"id":      json.RawMessage(`1`),
	})
	if err != nil {
		t.Fatal(err)
	}
	return h.d.Handle(context.Background(), token, req)
}

func resultMap(t *testing.T, resp portal.Response) map[string]interface{} {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected error response: %+v", resp.Error)
	}
	m, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result is %T, want map[string]interface{}: %+v", resp.Result, resp.Result)
	}
	return m
}

func authenticate(t *testing.T, h *harness, username, password string) string {
	t.Helper()
	resp := h.call(t, "", "auth", map[string]string{"username": username, "password": password})
	m := resultMap(t, resp)
	if m["auth"] != "success" {
		t.Fatalf("auth result = %v, want success", m)
	}
	token, _ := m["token"].(string)
	if token == "" {
		t.Fatal("auth did not return a token")
	}
	return token
}

func TestAuthThenListFolders(t *testing.T) {
	h := newHarness(t, "alice", "hunter2")
	token := authenticate(t, h, "alice", "hunter2")

	resp := h.call(t, token, "folders.list", map[string]string{"context": "mail"})
	if resp.Error != nil {
		t.Fatalf("folders.list: %+v", resp.Error)
	}
	list, ok := resp.Result.([]map[string]interface{})
	if !ok {
		t.Fatalf("result is %T, want a slice", resp.Result)
	}
	if len(list) != 0 {
		t.Fatalf("expected an empty folder list for a fresh user, got %v", list)
	}
}

func TestCreateAndRenameFolder(t *testing.T) {
	h := newHarness(t, "alice", "hunter2")
	token := authenticate(t, h, "alice", "hunter2")

	addResp := h.call(t, token, "folders.add", map[string]string{"context": "mail", "name": "Archive"})
	added := resultMap(t, addResp)
	folderID := added["folderID"]

	renameResp := h.call(t, token, "folders.rename", map[string]interface{}{
		"context": "mail", "folderID": folderID, "name": "Archived",
	})
	resultMap(t, renameResp)

	listResp := h.call(t, token, "folders.list", map[string]string{"context": "mail"})
	list, ok := listResp.Result.([]map[string]interface{})
	if !ok || len(list) != 1 {
		t.Fatalf("folders.list after rename = %+v", listResp.Result)
	}
	if list[0]["name"] != "Archived" {
		t.Fatalf("folder name = %v, want Archived", list[0]["name"])
	}
}

func TestMoveThenFlagBumpsSerialsTwice(t *testing.T) {
	h := newHarness(t, "alice", "hunter2")
	token := authenticate(t, h, "alice", "hunter2")

	srcResp := h.call(t, token, "folders.add", map[string]string{"context": "mail", "name": "Inbox2"})
	src := resultMap(t, srcResp)["folderID"]
	dstResp := h.call(t, token, "folders.add", map[string]string{"context": "mail", "name": "Archive2"})
	dst := resultMap(t, dstResp)["folderID"]

	// Insert directly into the already-materialized in-memory mailbox
	// rather than the DB, since the UserState backing this token is
	// cached in the registry and won't reload from the store.
	sess := h.d.Registry.Lookup(token)
	sess.UserState.Lock()
	sess.UserState.Mailbox.Messages[500] = &mailbox.Message{
		MessageID: 500, FolderID: toUint64(src), Subject: "hi", Visible: true,
	}
	sess.UserState.Unlock()

	before, err := store.NewCache(h.db).Get(context.Background(), 1, session.ClassMessages)
	if err != nil {
		t.Fatal(err)
	}

	moveResp := h.call(t, token, "messages.move", map[string]interface{}{
		"sourceFolderID": src, "targetFolderID": dst, "messageIDs": []uint64{500},
	})
	resultMap(t, moveResp)

	flagResp := h.call(t, token, "messages.flag", map[string]interface{}{
		"action": "add", "flags": mailbox.FlagFlagged, "messageIDs": []uint64{500}, "folderID": dst,
	})
	resultMap(t, flagResp)

	cache := store.NewCache(h.db)
	after, err := cache.Get(context.Background(), 1, session.ClassMessages)
	if err != nil {
		t.Fatal(err)
	}
	if after < before+2 {
		t.Fatalf("serials.messages = %d, want >= %d (before=%d + 2 bumps)", after, before+2, before)
	}
}

func TestThrottleLocksOutAfterRepeatedFailures(t *testing.T) {
	h := newHarness(t, "alice", "hunter2")

	var lastErr *portal.WireError
	for i := 0; i < store.ThrottleLimit+1; i++ {
		resp := h.call(t, "", "auth", map[string]string{"username": "alice", "password": "wrong"})
		lastErr = resp.Error
	}
	if lastErr == nil {
		t.Fatal("expected the final attempt to fail")
	}
	if lastErr.Symbol != "AuthThrottled" {
		t.Fatalf("final error = %+v, want AuthThrottled once ThrottleLimit failures are recorded", lastErr)
	}

	// Even the right password is now rejected without revealing
	// anything about credential validity.
	resp := h.call(t, "", "auth", map[string]string{"username": "alice", "password": "hunter2"})
	if resp.Error == nil || resp.Error.Symbol != "AuthThrottled" {
		t.Fatalf("expected AuthThrottled for a throttled account even with the correct password, got %+v", resp)
	}
}

func toUint64(v interface{}) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case float64:
		return uint64(n)
	default:
		return 0
	}
}
