// Package receipt implements the Receipt Store (spec §4.12, C12): an
// append-only record of pack applications and job invocations, backed by
// Git notes on refs/notes/gitvan/results. Grounded on the teacher's
// gitadapter-style subprocess wrapping (here reused directly, since notes
// add/show/list are themselves Git Adapter operations) with the
// append-only semantics implemented as read-merge-rewrite over the whole
// notes blob, the only shape git notes actually supports.
package receipt

import (
	"encoding/json"
	"strings"

	"github.com/seanchatmangpt/gitvan/internal/gitadapter"
	"github.com/seanchatmangpt/gitvan/internal/gverr"
)

const notesRef = "refs/notes/gitvan/results"

// Record is one line of the receipt store (spec §6 "Receipt record").
type Record struct {
	Role        string         `json:"role"`
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	Action      string         `json:"action"`
	Artifact    string         `json:"artifact,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	Commit      string         `json:"commit"`
	Timestamp   string         `json:"ts"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	Error       *RecordError   `json:"error,omitempty"`
	Tombstone   bool           `json:"tombstone,omitempty"`
}

// RecordError is the error payload of a failed Record.
type RecordError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Attempt int    `json:"attempt,omitempty"`
}

// Store is the Git-notes-backed receipt store, scoped to one working
// tree via the bound Adapter's CallCtx.Dir at each call site.
type Store struct {
	git *gitadapter.Adapter
}

// New returns a Store bound to git.
func New(git *gitadapter.Adapter) *Store {
	return &Store{git: git}
}

// Write appends receipt to the notes blob attached to commit. Git notes
// only support whole-blob replace, so Write reads the existing blob (if
// any), appends one newline-delimited JSON line, and writes it back — the
// read-merge-rewrite is itself atomic from the caller's perspective since
// it happens synchronously within this call.
func (s *Store) Write(cc gitadapter.CallCtx, commit string, rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return gverr.Wrap(gverr.KindReceiptWriteFailed, err, "marshaling receipt for %s", rec.ID)
	}

	existing, _ := s.git.NotesShow(cc, notesRef, commit) // missing note is not an error here
	payload := strings.TrimRight(existing, "\n")
	if payload != "" {
		payload += "\n"
	}
	payload += string(line)

	if err := s.git.NotesAdd(cc, notesRef, commit, payload); err != nil {
		return gverr.Wrap(gverr.KindReceiptWriteFailed, err, "writing receipt for %s at %s", rec.ID, commit)
	}
	return nil
}

// ReadAll parses every receipt line attached to commit, oldest first.
func (s *Store) ReadAll(cc gitadapter.CallCtx, commit string) ([]Record, error) {
	raw, err := s.git.NotesShow(cc, notesRef, commit)
	if err != nil {
		return nil, nil // no note for this commit is not an error
	}
	return parseRecords(raw)
}

func parseRecords(raw string) ([]Record, error) {
	var out []Record
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, gverr.Wrap(gverr.KindReceiptWriteFailed, err, "parsing receipt line %q", line)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Has reports whether a non-tombstoned receipt with the given
// idempotencyKey (matched against Fingerprint, then ID) already exists
// for commit (spec: "sole authority for already applied / already
// fired").
func (s *Store) Has(cc gitadapter.CallCtx, commit, idempotencyKey string) (bool, error) {
	records, err := s.ReadAll(cc, commit)
	if err != nil {
		return false, err
	}
	tombstoned := map[string]bool{}
	found := false
	for _, r := range records {
		key := r.Fingerprint
		if key == "" {
			key = r.ID
		}
		if r.Tombstone {
			tombstoned[key] = true
			continue
		}
		if key == idempotencyKey {
			found = true
		}
	}
	return found && !tombstoned[idempotencyKey], nil
}

// List returns every record across all receipted commits whose ID has
// the given prefix (empty prefix matches everything). It walks every
// note under notesRef via NotesList.
func (s *Store) List(cc gitadapter.CallCtx, prefix string) ([]Record, error) {
	listing, err := s.git.NotesList(cc, notesRef)
	if err != nil {
		return nil, nil
	}

	var out []Record
	for _, line := range strings.Split(listing, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		commit := fields[1]
		records, err := s.ReadAll(cc, commit)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			if prefix == "" || strings.HasPrefix(r.ID, prefix) {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

// Tombstone appends a logical-delete marker for idempotencyKey under
// commit (spec: "logical delete only by tombstone record").
func (s *Store) Tombstone(cc gitadapter.CallCtx, commit, idempotencyKey string) error {
	return s.Write(cc, commit, Record{
		Role:        "receipt",
		ID:          idempotencyKey,
		Status:      "TOMBSTONE",
		Action:      "tombstone",
		Fingerprint: idempotencyKey,
		Commit:      commit,
		Timestamp:   s.git.NowISO(),
		Tombstone:   true,
	})
}
