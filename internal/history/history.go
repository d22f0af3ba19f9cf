// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

// Package history models conversation history snapshots and the document
// links embedded in them.
//
// Snapshots belong to the caller's history store. docaccess only reads a
// snapshot it is handed and returns an updated copy; fields it does not
// understand are carried through untouched.
package history

import (
	"encoding/json"
	"maps"
	"slices"
	"time"

	"github.com/samber/oops"
)

// Link is a document link embedded in a history record.
type Link struct {
	URL          string     `json:"url" jsonschema:"minLength=1"`
	DocumentPath string     `json:"document_path,omitempty"`
	Page         *int       `json:"page,omitempty" jsonschema:"minimum=1"`
	RefreshedAt  *time.Time `json:"refreshed_at,omitempty"`

	// Extra holds JSON members not modeled above.
	Extra map[string]json.RawMessage `json:"-"`
}

// Record is one persisted history entry, typically a chat message.
type Record struct {
	ID    string `json:"id,omitempty"`
	Links []Link `json:"links,omitempty"`

	// Extra holds JSON members not modeled above (content, role, ...).
	Extra map[string]json.RawMessage `json:"-"`
}

// Snapshot is an in-memory copy of a conversation's history.
type Snapshot struct {
	ConversationID string   `json:"conversation_id,omitempty"`
	Records        []Record `json:"records"`

	// Extra holds top-level members not modeled above.
	Extra map[string]json.RawMessage `json:"-"`
}

// Clone returns a deep copy of s. Mutating the copy's records, link slices,
// pages or timestamps never affects s.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{ConversationID: s.ConversationID, Extra: cloneExtra(s.Extra)}
	if s.Records != nil {
		out.Records = make([]Record, len(s.Records))
		for i := range s.Records {
			out.Records[i] = s.Records[i].Clone()
		}
	}
	return out
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := Record{ID: r.ID, Extra: cloneExtra(r.Extra)}
	if r.Links != nil {
		out.Links = make([]Link, len(r.Links))
		for i := range r.Links {
			out.Links[i] = r.Links[i].Clone()
		}
	}
	return out
}

// Clone returns a deep copy of l.
func (l Link) Clone() Link {
	out := l
	if l.Page != nil {
		p := *l.Page
		out.Page = &p
	}
	if l.RefreshedAt != nil {
		t := *l.RefreshedAt
		out.RefreshedAt = &t
	}
	out.Extra = cloneExtra(l.Extra)
	return out
}

func cloneExtra(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

// LinkCount returns the number of links across all records.
func (s *Snapshot) LinkCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, r := range s.Records {
		n += len(r.Links)
	}
	return n
}

var linkFields = []string{"url", "document_path", "page", "refreshed_at"}

// MarshalJSON writes the modeled fields merged with Extra.
func (l Link) MarshalJSON() ([]byte, error) {
	type plain Link
	return mergeExtra(plain(l), l.Extra, linkFields)
}

// UnmarshalJSON reads the modeled fields and keeps the rest in Extra.
func (l *Link) UnmarshalJSON(data []byte) error {
	type plain Link
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return oops.In("history").Wrapf(err, "decode link")
	}
	extra, err := splitExtra(data, linkFields)
	if err != nil {
		return err
	}
	*l = Link(p)
	l.Extra = extra
	return nil
}

var snapshotFields = []string{"conversation_id", "records"}

// MarshalJSON writes the modeled fields merged with Extra.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type plain Snapshot
	return mergeExtra(plain(s), s.Extra, snapshotFields)
}

// UnmarshalJSON reads the modeled fields and keeps the rest in Extra.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type plain Snapshot
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return oops.In("history").Wrapf(err, "decode snapshot")
	}
	extra, err := splitExtra(data, snapshotFields)
	if err != nil {
		return err
	}
	*s = Snapshot(p)
	s.Extra = extra
	return nil
}

var recordFields = []string{"id", "links"}

// MarshalJSON writes the modeled fields merged with Extra. A nil Links is
// omitted; an empty non-nil Links is written as [].
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	if r.Links == nil || len(r.Links) > 0 {
		return mergeExtra(plain(r), r.Extra, recordFields)
	}
	extra := make(map[string]json.RawMessage, len(r.Extra)+1)
	maps.Copy(extra, r.Extra)
	extra["links"] = json.RawMessage("[]")
	return mergeExtra(plain(r), extra, []string{"id"})
}

// UnmarshalJSON reads the modeled fields and keeps the rest in Extra.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return oops.In("history").Wrapf(err, "decode record")
	}
	extra, err := splitExtra(data, recordFields)
	if err != nil {
		return err
	}
	*r = Record(p)
	r.Extra = extra
	return nil
}

func mergeExtra(v any, extra map[string]json.RawMessage, known []string) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, oops.In("history").Wrap(err)
	}
	if len(extra) == 0 {
		return data, nil
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, oops.In("history").Wrap(err)
	}
	for k, raw := range extra {
		if slices.Contains(known, k) {
			continue
		}
		members[k] = raw
	}
	out, err := json.Marshal(members)
	if err != nil {
		return nil, oops.In("history").Wrap(err)
	}
	return out, nil
}

func splitExtra(data []byte, known []string) (map[string]json.RawMessage, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, oops.In("history").Wrapf(err, "decode members")
	}
	for _, k := range known {
		delete(members, k)
	}
	if len(members) == 0 {
		return nil, nil
	}
	return members, nil
}
