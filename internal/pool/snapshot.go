// Package pool holds the two article pools and their crash-safe
// persistence. The Main pool feeds digests directly; candidates wait in
// keyword groups until promoted or reviewed.
package pool

import (
	"daily_digest/internal/domain"
	"daily_digest/internal/normalize"
)

// Snapshot is the full persisted state of both pools. It is a plain
// value, safe to mutate freely inside a Store.Update callback.
type Snapshot struct {
	Main       []domain.ArticleRecord            `json:"main"`
	Candidates map[string][]domain.ArticleRecord `json:"candidates"`
}

// NewSnapshot returns an empty snapshot with the group map initialized.
func NewSnapshot() *Snapshot {
	return &Snapshot{Candidates: make(map[string][]domain.ArticleRecord)}
}

// AddToMain inserts rec into the Main pool. Records whose normalized
// URL is already present anywhere in the snapshot are rejected with
// domain.ErrDuplicate.
func (s *Snapshot) AddToMain(rec domain.ArticleRecord) error {
	if s.HasURL(rec.URL) {
		return domain.ErrDuplicate
	}
	s.Main = append(s.Main, rec)
	return nil
}

// AddCandidate inserts rec into the keyword group, subject to the same
// snapshot-wide uniqueness rule as AddToMain.
func (s *Snapshot) AddCandidate(keyword string, rec domain.ArticleRecord) error {
	if s.HasURL(rec.URL) {
		return domain.ErrDuplicate
	}
	if s.Candidates == nil {
		s.Candidates = make(map[string][]domain.ArticleRecord)
	}
	s.Candidates[keyword] = append(s.Candidates[keyword], rec)
	return nil
}

// HasURL reports whether any pooled record matches rawURL after
// normalization.
func (s *Snapshot) HasURL(rawURL string) bool {
	key := normalize.Normalize(rawURL)
	for _, rec := range s.Main {
		if normalize.Normalize(rec.URL) == key {
			return true
		}
	}
	_, _, ok := s.FindCandidate(rawURL)
	return ok
}

// FindCandidate locates the candidate matching rawURL and returns its
// keyword group and index within it.
func (s *Snapshot) FindCandidate(rawURL string) (keyword string, idx int, ok bool) {
	key := normalize.Normalize(rawURL)
	for kw, group := range s.Candidates {
		for i, rec := range group {
			if normalize.Normalize(rec.URL) == key {
				return kw, i, true
			}
		}
	}
	return "", 0, false
}

// RemoveCandidate deletes one record from a keyword group, dropping the
// group once it is empty.
func (s *Snapshot) RemoveCandidate(keyword string, idx int) {
	group := s.Candidates[keyword]
	if idx < 0 || idx >= len(group) {
		return
	}
	group = append(group[:idx], group[idx+1:]...)
	if len(group) == 0 {
		delete(s.Candidates, keyword)
	} else {
		s.Candidates[keyword] = group
	}
}

// CandidateCount returns the number of candidates across all groups.
func (s *Snapshot) CandidateCount() int {
	n := 0
	for _, group := range s.Candidates {
		n += len(group)
	}
	return n
}
