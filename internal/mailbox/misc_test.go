package mailbox

import (
	"testing"
	"time"

	"github.com/lavabit/magmad/internal/apperr"
	"github.com/lavabit/magmad/internal/eckeys"
)

func TestAcknowledgeAlerts(t *testing.T) {
	mb := newTestMailbox()
	mb.Alerts[1] = &Alert{AlertID: 1, Kind: "quota", Message: "almost full"}
	mb.Alerts[2] = &Alert{AlertID: 2, Kind: "security", Message: "new login"}

	if len(mb.ListAlerts()) != 2 {
		t.Fatalf("ListAlerts before ack = %d, want 2", len(mb.ListAlerts()))
	}

	if err := mb.AcknowledgeAlerts([]uint64{1}, time.Now()); err != nil {
		t.Fatalf("AcknowledgeAlerts: %v", err)
	}
	if len(mb.ListAlerts()) != 1 {
		t.Fatalf("ListAlerts after ack = %d, want 1", len(mb.ListAlerts()))
	}
}

func TestAcknowledgeAlertsUnknownIDLeavesStateUnchanged(t *testing.T) {
	mb := newTestMailbox()
	mb.Alerts[1] = &Alert{AlertID: 1}

	if err := mb.AcknowledgeAlerts([]uint64{1, 999}, time.Now()); !apperr.Is(err, apperr.InvalidReference) {
		t.Fatalf("AcknowledgeAlerts with bad id = %v, want InvalidReference", err)
	}
	if mb.Alerts[1].AcknowledgedAt != nil {
		t.Fatal("alert 1 was acknowledged despite the batch failing validation")
	}
}

func TestEditConfigDeleteOnNil(t *testing.T) {
	mb := newTestMailbox()
	v := "1"
	mb.EditConfig(map[string]*string{"theme.dark": &v})
	if mb.Config["theme.dark"].Value != "1" {
		t.Fatal("config value not set")
	}

	mb.EditConfig(map[string]*string{"theme.dark": nil})
	if _, ok := mb.Config["theme.dark"]; ok {
		t.Fatal("config key not deleted on nil value")
	}
}

func TestSnapshotRestoreConfig(t *testing.T) {
	mb := newTestMailbox()
	v := "dark"
	mb.EditConfig(map[string]*string{"theme": &v})

	snap := mb.SnapshotConfig()
	v2 := "light"
	mb.EditConfig(map[string]*string{"theme": &v2, "new.key": &v2})

	mb.RestoreConfig(snap)

	if mb.Config["theme"].Value != "dark" {
		t.Fatalf("theme after restore = %q, want dark", mb.Config["theme"].Value)
	}
	if _, ok := mb.Config["new.key"]; ok {
		t.Fatal("new.key should not exist after restoring a pre-edit snapshot")
	}
}

func TestSealIncomingRequiresEncryptFlag(t *testing.T) {
	mb := New(&User{UserID: 1, EncryptData: false})
	if _, err := mb.SealIncoming([]byte("hi")); !apperr.Is(err, apperr.IllegalCombination) {
		t.Fatalf("SealIncoming without flag = %v, want IllegalCombination", err)
	}
}

func TestSyncIDCountersAvoidsCollisionOnReload(t *testing.T) {
	mb := newTestMailbox()
	mb.Folders[40] = &Folder{FolderID: 40, Name: "Inbox"}
	mb.Messages[900] = &Message{MessageID: 900, FolderID: 40}
	mb.Aliases[3] = &Alias{AliasID: 3, Address: "a@example.com"}
	mb.Alerts[12] = &Alert{AlertID: 12, Kind: "quota"}
	mb.Contacts[40] = &ContactFolder{
		Folder:  Folder{FolderID: 40},
		Records: map[uint64]*Contact{7: {ContactID: 7, FolderID: 40}},
	}

	mb.SyncIDCounters()

	f, err := mb.CreateFolder("Sent")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if f.FolderID <= 40 {
		t.Fatalf("new folder id = %d, want > 40", f.FolderID)
	}

	a, err := mb.UpsertIdentity(0, "b@example.com", "", time.Now())
	if err != nil {
		t.Fatalf("UpsertIdentity: %v", err)
	}
	if a.AliasID <= 3 {
		t.Fatalf("new alias id = %d, want > 3", a.AliasID)
	}

	c, err := mb.AddContact(40, "Bob", nil)
	if err != nil {
		t.Fatalf("AddContact: %v", err)
	}
	if c.ContactID <= 7 {
		t.Fatalf("new contact id = %d, want > 7", c.ContactID)
	}
}

func TestSealIncomingEncryptsWithStorageKey(t *testing.T) {
	priv, err := eckeys.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	mb := New(&User{UserID: 1, EncryptData: true, StoragePublicKey: priv.Public().PublicHex()})

	container, err := mb.SealIncoming([]byte("From: a@example.com\r\n\r\nhello"))
	if err != nil {
		t.Fatalf("SealIncoming: %v", err)
	}
	if container.TotalLen() == 0 {
		t.Fatal("sealed container is empty")
	}
}
