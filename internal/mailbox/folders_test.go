package mailbox

import (
	"testing"

	"github.com/lavabit/magmad/internal/apperr"
)

func newTestMailbox() *Mailbox {
	return New(&User{UserID: 1, Username: "u"})
}

func TestCreateFolderAndFind(t *testing.T) {
	mb := newTestMailbox()

	f, err := mb.CreateFolder("Projects")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if f.Name != "Projects" || f.ParentID != 0 {
		t.Fatalf("unexpected folder: %+v", f)
	}

	id, ok := mb.folderByPath([]string{"Projects"})
	if !ok || id != f.FolderID {
		t.Fatalf("folderByPath did not find created folder")
	}
}

func TestCreateFolderInboxSubfolderAllowed(t *testing.T) {
	mb := newTestMailbox()

	if _, err := mb.CreateFolder("Projects"); err != nil {
		t.Fatalf("CreateFolder(Projects): %v", err)
	}
	if _, err := mb.CreateFolder("Projects.Inbox"); err != nil {
		t.Fatalf("CreateFolder(Projects.Inbox) should succeed: %v", err)
	}
}

func TestCreateFolderTopLevelInboxReserved(t *testing.T) {
	mb := newTestMailbox()
	if _, err := mb.CreateFolder("Inbox"); !apperr.Is(err, apperr.ConstraintViolation) {
		t.Fatalf("CreateFolder(Inbox) = %v, want ConstraintViolation", err)
	}
}

func TestCreateFolderDuplicateRejected(t *testing.T) {
	mb := newTestMailbox()
	if _, err := mb.CreateFolder("Work"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if _, err := mb.CreateFolder("Work"); !apperr.Is(err, apperr.ConstraintViolation) {
		t.Fatalf("CreateFolder(duplicate) = %v, want ConstraintViolation", err)
	}
}

func TestCreateFolderInvalidNames(t *testing.T) {
	mb := newTestMailbox()
	cases := []string{"", ".leading", "has\x01control", "double..dot"}
	for _, name := range cases {
		if _, err := mb.CreateFolder(name); !apperr.Is(err, apperr.ConstraintViolation) {
			t.Errorf("CreateFolder(%q) = %v, want ConstraintViolation", name, err)
		}
	}
}

func TestRenameFolderRoundTrip(t *testing.T) {
	mb := newTestMailbox()
	f, err := mb.CreateFolder("Alpha")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}

	if err := mb.RenameFolder(f.FolderID, "Beta"); err != nil {
		t.Fatalf("rename a->b: %v", err)
	}
	if err := mb.RenameFolder(f.FolderID, "Alpha"); err != nil {
		t.Fatalf("rename b->a: %v", err)
	}
	if mb.Path(f.FolderID) != "Alpha" {
		t.Fatalf("path after round trip = %q, want Alpha", mb.Path(f.FolderID))
	}
}

func TestRenameFolderSelfAncestorRejected(t *testing.T) {
	mb := newTestMailbox()
	parent, err := mb.CreateFolder("Parent")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	child, err := mb.CreateFolder("Parent.Child")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}

	if err := mb.RenameFolder(parent.FolderID, "Parent.Child.NewParent"); !apperr.Is(err, apperr.ConstraintViolation) {
		t.Fatalf("self-ancestor rename = %v, want ConstraintViolation", err)
	}
	_ = child
}

func TestDeleteFolderRefusesInbox(t *testing.T) {
	mb := newTestMailbox()
	mb.nextFolderID++
	mb.Folders[mb.nextFolderID] = &Folder{FolderID: mb.nextFolderID, ParentID: 0, Name: InboxName}

	if err := mb.DeleteFolder(mb.nextFolderID); !apperr.Is(err, apperr.ConstraintViolation) {
		t.Fatalf("DeleteFolder(Inbox) = %v, want ConstraintViolation", err)
	}
}

func TestDeleteFolderWithChildrenKeepsRecord(t *testing.T) {
	mb := newTestMailbox()
	parent, err := mb.CreateFolder("Parent")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if _, err := mb.CreateFolder("Parent.Child"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}

	mb.nextMessageID++
	mb.Messages[mb.nextMessageID] = &Message{MessageID: mb.nextMessageID, FolderID: parent.FolderID, Visible: true}

	if err := mb.DeleteFolder(parent.FolderID); err != nil {
		t.Fatalf("DeleteFolder: %v", err)
	}
	if _, ok := mb.Folders[parent.FolderID]; !ok {
		t.Fatal("folder with children was deleted, want record kept")
	}
	if len(mb.ListMessages(parent.FolderID)) != 0 {
		t.Fatal("messages in folder with children were not removed")
	}
}

func TestMatchFolderNamePatterns(t *testing.T) {
	cases := []struct {
		name, pattern string
		want          bool
	}{
		{"Work", "*", true},
		{"Work.Sub", "*", true},
		{"Work", "%", true},
		{"Work.Sub", "%", false},
		{"inbox", "Inbox", true},
		{"Inbox.Sub", "Inbox", false},
		{"Work", "W%k", true},
	}
	for _, c := range cases {
		if got := MatchFolderName(c.name, c.pattern); got != c.want {
			t.Errorf("MatchFolderName(%q, %q) = %v, want %v", c.name, c.pattern, got, c.want)
		}
	}
}

func TestSnapshotRestoreFolders(t *testing.T) {
	mb := newTestMailbox()
	f, err := mb.CreateFolder("Alpha")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}

	snap := mb.SnapshotFolders()
	if err := mb.RenameFolder(f.FolderID, "Beta"); err != nil {
		t.Fatalf("RenameFolder: %v", err)
	}
	if _, err := mb.CreateFolder("Gamma"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}

	mb.RestoreFolders(snap)

	if mb.Path(f.FolderID) != "Alpha" {
		t.Fatalf("path after restore = %q, want Alpha", mb.Path(f.FolderID))
	}
	if _, ok := mb.folderByPath([]string{"Gamma"}); ok {
		t.Fatal("Gamma should not exist after restoring a pre-creation snapshot")
	}
}

func TestCreateFolderSegmentTooLong(t *testing.T) {
	mb := newTestMailbox()
	if _, err := mb.CreateFolder("ThisSegmentIsWayTooLongForTheLimit"); !apperr.Is(err, apperr.ConstraintViolation) {
		t.Fatalf("long segment create = %v, want ConstraintViolation", err)
	}
}
