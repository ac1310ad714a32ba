/*
Maddy Mail Server - Composable all-in-one email server.
Copyright © 2019-2020 Max Mazurov <fox.cpp@disroot.org>, Maddy Mail Server contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package portal

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/lavabit/magmad/internal/apperr"
	"github.com/lavabit/magmad/internal/mailbox"
	"github.com/lavabit/magmad/internal/session"
)

func init() {
	registerMethod("messages.list", handleMessagesList)
	registerMethod("messages.load", handleMessagesLoad)
	registerMethod("messages.copy", handleMessagesCopy)
	registerMethod("messages.move", handleMessagesMove)
	registerMethod("messages.remove", handleMessagesRemove)
	registerMethod("messages.flag", handleMessagesFlag)
	registerMethod("messages.tag", handleMessagesTag)
	registerMethod("messages.tags", handleMessagesTags)
	registerMethod("messages.compose", handleMessagesCompose)
	registerMethod("messages.send", handleMessagesSend)
	registerMethod("attachments.add", handleAttachmentsAdd)
	registerMethod("attachments.remove", handleAttachmentsRemove)
	registerMethod("attachments.progress", handleAttachmentsProgress)
}

func messageSummary(m *mailbox.Message) map[string]interface{} {
	return map[string]interface{}{
		"messageID":   m.MessageID,
		"folderID":    m.FolderID,
		"from":        m.From,
		"to":          m.To,
		"addressedTo": m.AddressedTo,
		"replyTo":     m.ReplyTo,
		"returnPath":  m.ReturnPath,
		"subject":     m.Subject,
		"date":        m.Date,
		"createdUTC":  m.CreatedUTC,
		"tags":        m.Tags,
		"snippet":     m.Snippet,
		"size":        m.Size,
		"flags":       mailbox.FlagNames(m.Status),
	}
}

type folderIDParams struct {
	FolderID uint64 `json:"folderID"`
}

func handleMessagesList(_ context.Context, _ *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p folderIDParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	us := sess.UserState
	us.RLock()
	defer us.RUnlock()

	msgs := us.Mailbox.ListMessages(p.FolderID)
	out := make([]map[string]interface{}, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageSummary(m))
	}
	return out, nil
}

type messagesLoadParams struct {
	MessageID uint64   `json:"messageID"`
	Section   []string `json:"section"`
}

var sectionNames = map[string]mailbox.LoadSections{
	"meta":        mailbox.SectionMeta,
	"source":      mailbox.SectionSource,
	"security":    mailbox.SectionSecurity,
	"server":      mailbox.SectionServer,
	"header":      mailbox.SectionHeader,
	"body":        mailbox.SectionBody,
	"attachments": mailbox.SectionAttachments,
	"info":        mailbox.SectionInfo,
}

func handleMessagesLoad(_ context.Context, _ *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p messagesLoadParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	var sections mailbox.LoadSections
	for _, name := range p.Section {
		bit, ok := sectionNames[name]
		if !ok {
			return nil, apperr.Newf(apperr.InvalidKeyword, "unknown section %q", name)
		}
		sections |= bit
	}

	us := sess.UserState
	us.RLock()
	defer us.RUnlock()

	m, err := us.Mailbox.Load(p.MessageID, sections)
	if err != nil {
		return nil, err
	}
	return messageSummary(m), nil
}

type messagesRangeParams struct {
	SourceFolderID uint64   `json:"sourceFolderID"`
	TargetFolderID uint64   `json:"targetFolderID"`
	MessageIDs     []uint64 `json:"messageIDs"`
}

func handleMessagesCopy(ctx context.Context, d *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p messagesRangeParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	snap := us.Mailbox.SnapshotMessages()
	mapping, err := us.Mailbox.CopyMessages(p.SourceFolderID, p.TargetFolderID, p.MessageIDs)
	if err != nil {
		return nil, err
	}
	if d.Store != nil {
		var toSave []*mailbox.Message
		for _, newID := range mapping {
			toSave = append(toSave, us.Mailbox.Messages[newID])
		}
		if err := d.Store.SaveMessages(ctx, us.UserID, toSave); err != nil {
			us.Mailbox.RestoreMessages(snap)
			return nil, apperr.Newf(apperr.InternalError, "save copied messages: %v", err)
		}
	}
	d.bumpSerial(ctx, sess, session.ClassMessages)
	return map[string]interface{}{"mapping": mapping}, nil
}

func handleMessagesMove(ctx context.Context, d *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p messagesRangeParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	snap := us.Mailbox.SnapshotMessages()
	if err := us.Mailbox.MoveMessages(p.SourceFolderID, p.TargetFolderID, p.MessageIDs); err != nil {
		return nil, err
	}
	if d.Store != nil {
		var toSave []*mailbox.Message
		for _, id := range p.MessageIDs {
			toSave = append(toSave, us.Mailbox.Messages[id])
		}
		if err := d.Store.SaveMessages(ctx, us.UserID, toSave); err != nil {
			us.Mailbox.RestoreMessages(snap)
			return nil, apperr.Newf(apperr.InternalError, "save moved messages: %v", err)
		}
	}
	d.bumpSerial(ctx, sess, session.ClassMessages)
	return map[string]interface{}{"ok": true}, nil
}

type messagesRemoveParams struct {
	FolderID   uint64   `json:"folderID"`
	MessageIDs []uint64 `json:"messageIDs"`
}

func handleMessagesRemove(ctx context.Context, d *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p messagesRemoveParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	snap := us.Mailbox.SnapshotMessages()
	if err := us.Mailbox.RemoveMessages(p.FolderID, p.MessageIDs); err != nil {
		return nil, err
	}
	if d.Store != nil {
		var toSave []*mailbox.Message
		for _, id := range p.MessageIDs {
			if m, ok := us.Mailbox.Messages[id]; ok {
				toSave = append(toSave, m)
			}
		}
		if err := d.Store.SaveMessages(ctx, us.UserID, toSave); err != nil {
			us.Mailbox.RestoreMessages(snap)
			return nil, apperr.Newf(apperr.InternalError, "save removed messages: %v", err)
		}
	}
	d.bumpSerial(ctx, sess, session.ClassMessages)
	return map[string]interface{}{"ok": true}, nil
}

type messagesFlagParams struct {
	Action     string   `json:"action"`
	Flags      uint64   `json:"flags,omitempty"`
	FolderID   uint64   `json:"folderID"`
	MessageIDs []uint64 `json:"messageIDs"`
}

func handleMessagesFlag(ctx context.Context, d *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p messagesFlagParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	snap := us.Mailbox.SnapshotMessages()
	result, err := us.Mailbox.FlagMessages(mailbox.FlagAction(p.Action), p.FolderID, p.MessageIDs, p.Flags)
	if err != nil {
		return nil, err
	}
	if mailbox.FlagAction(p.Action) == mailbox.ActionList {
		return result, nil
	}

	if d.Store != nil {
		var toSave []*mailbox.Message
		for _, id := range p.MessageIDs {
			if m, ok := us.Mailbox.Messages[id]; ok {
				toSave = append(toSave, m)
			}
		}
		if err := d.Store.SaveMessages(ctx, us.UserID, toSave); err != nil {
			us.Mailbox.RestoreMessages(snap)
			return nil, apperr.Newf(apperr.InternalError, "save flagged messages: %v", err)
		}
	}
	d.bumpSerial(ctx, sess, session.ClassMessages)
	return map[string]interface{}{"ok": true}, nil
}

type messagesTagParams struct {
	Action     string   `json:"action"`
	Tags       []string `json:"tags,omitempty"`
	FolderID   uint64   `json:"folderID"`
	MessageIDs []uint64 `json:"messageIDs"`
}

func handleMessagesTag(ctx context.Context, d *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p messagesTagParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	snap := us.Mailbox.SnapshotMessages()
	result, err := us.Mailbox.TagMessages(mailbox.FlagAction(p.Action), p.FolderID, p.MessageIDs, p.Tags)
	if err != nil {
		return nil, err
	}
	if mailbox.FlagAction(p.Action) == mailbox.ActionList {
		return result, nil
	}

	if d.Store != nil {
		var toSave []*mailbox.Message
		for _, id := range p.MessageIDs {
			if m, ok := us.Mailbox.Messages[id]; ok {
				toSave = append(toSave, m)
			}
		}
		if err := d.Store.SaveMessages(ctx, us.UserID, toSave); err != nil {
			us.Mailbox.RestoreMessages(snap)
			return nil, apperr.Newf(apperr.InternalError, "save tagged messages: %v", err)
		}
	}
	d.bumpSerial(ctx, sess, session.ClassMessages)
	return map[string]interface{}{"ok": true}, nil
}

func handleMessagesTags(_ context.Context, _ *Dispatcher, sess *session.Session, _ json.RawMessage) (interface{}, error) {
	us := sess.UserState
	us.RLock()
	defer us.RUnlock()
	return us.Mailbox.AllTags(), nil
}

func handleMessagesCompose(_ context.Context, _ *Dispatcher, sess *session.Session, _ json.RawMessage) (interface{}, error) {
	us := sess.UserState
	us.Lock()
	defer us.Unlock()
	return map[string]interface{}{"composeID": us.Mailbox.Compose()}, nil
}

type messagesSendParams struct {
	ComposeID uint64   `json:"composeID"`
	From      string   `json:"from"`
	To        []string `json:"to"`
	Cc        []string `json:"cc,omitempty"`
	Bcc       []string `json:"bcc,omitempty"`
	Subject   string   `json:"subject"`
	Priority  string   `json:"priority,omitempty"`
	Body      struct {
		Text string `json:"text,omitempty"`
		HTML string `json:"html,omitempty"`
	} `json:"body"`
}

// handleMessagesSend composes the RFC 822 MIME blob via
// mailbox.Render, destroys the composition, and returns only
// {"sent": true, "size": <rendered length>}. The rendered bytes are
// neither returned to the caller nor handed to any outbound relay.
func handleMessagesSend(_ context.Context, _ *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p messagesSendParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	out := mailbox.OutgoingMessage{
		From:     p.From,
		To:       p.To,
		Cc:       p.Cc,
		Bcc:      p.Bcc,
		Subject:  p.Subject,
		Priority: p.Priority,
		BodyText: p.Body.Text,
		BodyHTML: p.Body.HTML,
	}
	rendered, err := us.Mailbox.Render(p.ComposeID, out)
	if err != nil {
		return nil, err
	}
	us.Mailbox.DestroyComposition(p.ComposeID)
	return map[string]interface{}{"sent": true, "size": len(rendered)}, nil
}

type attachmentsAddParams struct {
	ComposeID uint64 `json:"composeID"`
	Filename  string `json:"filename"`
}

func handleAttachmentsAdd(_ context.Context, _ *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p attachmentsAddParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	id, err := us.Mailbox.AttachAdd(p.ComposeID, p.Filename)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"attachmentID": id}, nil
}

type attachmentsRemoveParams struct {
	ComposeID    uint64 `json:"composeID"`
	AttachmentID uint64 `json:"attachmentID"`
}

func handleAttachmentsRemove(_ context.Context, _ *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p attachmentsRemoveParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	if err := us.Mailbox.AttachRemove(p.ComposeID, p.AttachmentID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"ok": true}, nil
}

// attachmentsProgressParams is not part of the JSON-RPC method table —
// attachment bytes arrive over the one excluded multipart POST hook —
// but handleAttachmentsProgress accepts a base64 payload directly so
// this dispatcher is self-contained without that external hook.
type attachmentsProgressParams struct {
	ComposeID    uint64 `json:"composeID"`
	AttachmentID uint64 `json:"attachmentID"`
	DataBase64   string `json:"dataBase64,omitempty"`
}

func handleAttachmentsProgress(_ context.Context, _ *Dispatcher, sess *session.Session, params json.RawMessage) (interface{}, error) {
	var p attachmentsProgressParams
	if err := unpackParams(params, &p); err != nil {
		return nil, err
	}
	if p.DataBase64 == "" {
		return map[string]interface{}{"complete": false}, nil
	}
	data, err := base64.StdEncoding.DecodeString(p.DataBase64)
	if err != nil {
		return nil, apperr.New(apperr.InvalidParams, "dataBase64 is not valid base64")
	}

	us := sess.UserState
	us.Lock()
	defer us.Unlock()

	if err := us.Mailbox.AttachUpload(p.ComposeID, p.AttachmentID, data); err != nil {
		return nil, err
	}
	return map[string]interface{}{"complete": true}, nil
}
