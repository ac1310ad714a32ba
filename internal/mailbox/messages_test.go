package mailbox

import (
	"testing"

	"github.com/lavabit/magmad/internal/apperr"
)

func seedMessages(mb *Mailbox, folderID uint64, ids ...uint64) {
	for _, id := range ids {
		if id > mb.nextMessageID {
			mb.nextMessageID = id
		}
		mb.Messages[id] = &Message{MessageID: id, FolderID: folderID, Visible: true}
	}
}

func TestFlagAddAndRemove(t *testing.T) {
	mb := newTestMailbox()
	seedMessages(mb, 10, 1)

	if _, err := mb.FlagMessages(ActionAdd, 10, []uint64{1}, FlagFlagged); err != nil {
		t.Fatalf("flag add: %v", err)
	}
	if mb.Messages[1].Status&FlagFlagged == 0 {
		t.Fatal("flag not set after add")
	}

	if _, err := mb.FlagMessages(ActionRemove, 10, []uint64{1}, FlagFlagged); err != nil {
		t.Fatalf("flag remove: %v", err)
	}
	if mb.Messages[1].Status&FlagFlagged != 0 {
		t.Fatal("flag still set after remove")
	}
}

func TestFlagSystemBitForbidden(t *testing.T) {
	mb := newTestMailbox()
	seedMessages(mb, 10, 1)

	if _, err := mb.FlagMessages(ActionAdd, 10, []uint64{1}, FlagSeen); !apperr.Is(err, apperr.SystemFlagForbidden) {
		t.Fatalf("flag add system bit = %v, want SystemFlagForbidden", err)
	}
}

func TestFlagListReturnsNames(t *testing.T) {
	mb := newTestMailbox()
	seedMessages(mb, 10, 1)
	mb.Messages[1].Status = FlagSeen | FlagFlagged

	out, err := mb.FlagMessages(ActionList, 10, []uint64{1}, 0)
	if err != nil {
		t.Fatalf("flag list: %v", err)
	}
	names := out[1]
	if len(names) != 2 {
		t.Fatalf("flag list returned %d names, want 2: %v", len(names), names)
	}
}

func TestMoveThenFlagBumpsNothingItself(t *testing.T) {
	mb := newTestMailbox()
	seedMessages(mb, 10, 42, 43)

	if err := mb.MoveMessages(10, 20, []uint64{42, 43}); err != nil {
		t.Fatalf("move: %v", err)
	}
	if mb.Messages[42].FolderID != 20 || mb.Messages[43].FolderID != 20 {
		t.Fatal("move did not relocate messages")
	}

	out, err := mb.FlagMessages(ActionList, 20, []uint64{42}, 0)
	if err != nil {
		t.Fatalf("flag list after move: %v", err)
	}
	if _, ok := out[42]; !ok {
		t.Fatal("flag list after move missing message 42")
	}
}

func TestMoveEqualFoldersRejected(t *testing.T) {
	mb := newTestMailbox()
	seedMessages(mb, 10, 1)
	if err := mb.MoveMessages(10, 10, []uint64{1}); !apperr.Is(err, apperr.IllegalCombination) {
		t.Fatalf("move equal folders = %v, want IllegalCombination", err)
	}
}

func TestCopyMessagesRollbackOnInvalidID(t *testing.T) {
	mb := newTestMailbox()
	seedMessages(mb, 10, 1, 2)

	before := len(mb.Messages)
	if _, err := mb.CopyMessages(10, 20, []uint64{1, 999}); !apperr.Is(err, apperr.InvalidReference) {
		t.Fatalf("copy with bad id = %v, want InvalidReference", err)
	}
	if len(mb.Messages) != before {
		t.Fatalf("copy mutated message set despite validation failure: got %d, want %d", len(mb.Messages), before)
	}
}

func TestCopyMessagesProducesNewIDs(t *testing.T) {
	mb := newTestMailbox()
	seedMessages(mb, 10, 1, 2)

	mapping, err := mb.CopyMessages(10, 20, []uint64{1, 2})
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	for old, fresh := range mapping {
		if old == fresh {
			t.Fatalf("copy did not allocate a new id for %d", old)
		}
		if mb.Messages[fresh].FolderID != 20 {
			t.Fatalf("copied message %d has wrong folder", fresh)
		}
	}
	if len(mb.Messages) != 4 {
		t.Fatalf("message count after copy = %d, want 4", len(mb.Messages))
	}
}

func TestTagAddSetsTaggedFlag(t *testing.T) {
	mb := newTestMailbox()
	seedMessages(mb, 10, 1)

	if _, err := mb.TagMessages(ActionAdd, 10, []uint64{1}, []string{"work"}); err != nil {
		t.Fatalf("tag add: %v", err)
	}
	if mb.Messages[1].Status&FlagTagged == 0 {
		t.Fatal("FlagTagged not set after adding a tag")
	}

	if _, err := mb.TagMessages(ActionRemove, 10, []uint64{1}, []string{"work"}); err != nil {
		t.Fatalf("tag remove: %v", err)
	}
	if mb.Messages[1].Status&FlagTagged != 0 {
		t.Fatal("FlagTagged still set after removing the only tag")
	}
}

func TestAllTagsUnion(t *testing.T) {
	mb := newTestMailbox()
	seedMessages(mb, 10, 1, 2)
	mb.Messages[1].Tags = []string{"work", "urgent"}
	mb.Messages[2].Tags = []string{"personal"}

	tags := mb.AllTags()
	if len(tags) != 3 {
		t.Fatalf("AllTags = %v, want 3 entries", tags)
	}
}

func TestRemoveMessagesMarksInvisible(t *testing.T) {
	mb := newTestMailbox()
	seedMessages(mb, 10, 1, 2)

	if err := mb.RemoveMessages(10, []uint64{1}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if mb.Messages[1].Visible {
		t.Fatal("removed message still visible")
	}
	if len(mb.ListMessages(10)) != 1 {
		t.Fatalf("ListMessages after remove = %d, want 1", len(mb.ListMessages(10)))
	}
}

func TestLoadEmptySectionsRejected(t *testing.T) {
	mb := newTestMailbox()
	seedMessages(mb, 10, 1)
	if _, err := mb.Load(1, 0); !apperr.Is(err, apperr.InvalidRequest) {
		t.Fatalf("Load with empty sections = %v, want InvalidRequest", err)
	}
}
