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

package mailbox

import (
	"bytes"
	"io"

	"github.com/emersion/go-message/mail"

	"github.com/lavabit/magmad/internal/apperr"
)

// Compose allocates a new composition. compose_id collision with any
// live composition is impossible by construction since the counter
// only increases, but the check is kept explicit to match the
// source's defensive style.
func (mb *Mailbox) Compose() uint64 {
	for {
		mb.nextComposeID++
		id := mb.nextComposeID
		if _, exists := mb.Compositions[id]; !exists {
			mb.Compositions[id] = &Composition{ComposeID: id, Attachments: make(map[uint64]*Attachment)}
			return id
		}
	}
}

func (mb *Mailbox) composition(composeID uint64) (*Composition, error) {
	c, ok := mb.Compositions[composeID]
	if !ok {
		return nil, apperr.Newf(apperr.InvalidReference, "composition %d not found", composeID)
	}
	return c, nil
}

// AttachAdd registers a new attachment slot on composeID and returns
// its id; the file payload arrives separately via AttachUpload.
func (mb *Mailbox) AttachAdd(composeID uint64, filename string) (uint64, error) {
	c, err := mb.composition(composeID)
	if err != nil {
		return 0, err
	}
	c.Attached++
	id := c.Attached
	c.Attachments[id] = &Attachment{AttachmentID: id, Filename: filename}
	return id, nil
}

// AttachUpload consumes exactly one (compose, attach) pair; a second
// upload against the same pair is rejected.
func (mb *Mailbox) AttachUpload(composeID, attachID uint64, data []byte) error {
	c, err := mb.composition(composeID)
	if err != nil {
		return err
	}
	a, ok := c.Attachments[attachID]
	if !ok {
		return apperr.Newf(apperr.InvalidReference, "attachment %d not found", attachID)
	}
	if a.FileData != nil {
		return apperr.New(apperr.IllegalCombination, "attachment already uploaded")
	}
	a.FileData = data
	return nil
}

// AttachRemove drops an uploaded or pending attachment from a
// composition.
func (mb *Mailbox) AttachRemove(composeID, attachID uint64) error {
	c, err := mb.composition(composeID)
	if err != nil {
		return err
	}
	if _, ok := c.Attachments[attachID]; !ok {
		return apperr.Newf(apperr.InvalidReference, "attachment %d not found", attachID)
	}
	delete(c.Attachments, attachID)
	return nil
}

// OutgoingMessage is a fully addressed message ready for MIME
// composition and handoff to the external relay.
type OutgoingMessage struct {
	From     string
	To       []string
	Cc       []string
	Bcc      []string
	Subject  string
	Priority string
	BodyText string
	BodyHTML string
}

// Render builds the RFC 822 MIME blob for composeID using the
// collected attachments and the supplied envelope fields. It does not
// send anything; the caller hands the returned bytes to the external
// SMTP relay and, on success, calls DestroyComposition.
func (mb *Mailbox) Render(composeID uint64, msg OutgoingMessage) ([]byte, error) {
	c, err := mb.composition(composeID)
	if err != nil {
		return nil, err
	}

	var header mail.Header
	from, err := mail.ParseAddressList(msg.From)
	if err != nil {
		return nil, apperr.Newf(apperr.InvalidParams, "invalid from address: %v", err)
	}
	header.SetAddressList("From", from)
	if err := setAddressListField(&header, "To", msg.To); err != nil {
		return nil, err
	}
	if err := setAddressListField(&header, "Cc", msg.Cc); err != nil {
		return nil, err
	}
	if err := setAddressListField(&header, "Bcc", msg.Bcc); err != nil {
		return nil, err
	}
	header.SetSubject(msg.Subject)
	if msg.Priority != "" {
		header.Set("X-Priority", msg.Priority)
	}

	var buf bytes.Buffer
	w, err := mail.CreateWriter(&buf, header)
	if err != nil {
		return nil, apperr.Newf(apperr.InternalError, "create mime writer: %v", err)
	}

	if msg.BodyText != "" || msg.BodyHTML != "" {
		iw, err := w.CreateInline()
		if err != nil {
			return nil, apperr.Newf(apperr.InternalError, "create inline part: %v", err)
		}
		if msg.BodyText != "" {
			var th mail.InlineHeader
			th.Set("Content-Type", "text/plain; charset=utf-8")
			pw, err := iw.CreatePart(th)
			if err != nil {
				return nil, apperr.Newf(apperr.InternalError, "create text part: %v", err)
			}
			if _, err := io.WriteString(pw, msg.BodyText); err != nil {
				return nil, apperr.Newf(apperr.InternalError, "write text part: %v", err)
			}
			pw.Close()
		}
		if msg.BodyHTML != "" {
			var hh mail.InlineHeader
			hh.Set("Content-Type", "text/html; charset=utf-8")
			pw, err := iw.CreatePart(hh)
			if err != nil {
				return nil, apperr.Newf(apperr.InternalError, "create html part: %v", err)
			}
			if _, err := io.WriteString(pw, msg.BodyHTML); err != nil {
				return nil, apperr.Newf(apperr.InternalError, "write html part: %v", err)
			}
			pw.Close()
		}
		iw.Close()
	}

	for _, a := range c.Attachments {
		if a.FileData == nil {
			continue
		}
		var ah mail.AttachmentHeader
		ah.SetFilename(a.Filename)
		aw, err := w.CreateAttachment(ah)
		if err != nil {
			return nil, apperr.Newf(apperr.InternalError, "create attachment part: %v", err)
		}
		if _, err := aw.Write(a.FileData); err != nil {
			return nil, apperr.Newf(apperr.InternalError, "write attachment: %v", err)
		}
		aw.Close()
	}

	if err := w.Close(); err != nil {
		return nil, apperr.Newf(apperr.InternalError, "close mime writer: %v", err)
	}
	return buf.Bytes(), nil
}

func setAddressListField(header *mail.Header, field string, raw []string) error {
	if len(raw) == 0 {
		return nil
	}
	var addrs []*mail.Address
	for _, r := range raw {
		parsed, err := mail.ParseAddressList(r)
		if err != nil {
			return apperr.Newf(apperr.InvalidParams, "invalid %s address %q: %v", field, r, err)
		}
		addrs = append(addrs, parsed...)
	}
	header.SetAddressList(field, addrs)
	return nil
}

// DestroyComposition discards a composition after it has been sent or
// abandoned.
func (mb *Mailbox) DestroyComposition(composeID uint64) {
	delete(mb.Compositions, composeID)
}
