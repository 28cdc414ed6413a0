package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lewisedginton/financial_qa/pkg/logger"
)

// Reconcile rebuilds the index from the conversation files: orphaned files are
// indexed, entries whose file vanished or is corrupt are dropped and stale
// summaries are refreshed. It returns the number of entries changed.
func (s *Store) Reconcile(ctx context.Context) (changed int, err error) {
	start := time.Now()
	defer func() { s.observe("reconcile", start, err) }()

	names, err := s.files.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list conversations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	onDisk := make(map[string]*Conversation)
	for _, name := range names {
		if name == IndexFileName || strings.Contains(name, "/") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id := strings.TrimSuffix(name, fileExt)
		c, err := s.readConversation(ctx, id)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				return 0, err
			}
			continue
		}
		onDisk[id] = c
	}

	ix := s.index.clone()
	var ids []string
	for _, e := range s.index.Conversations {
		c, ok := onDisk[e.ID]
		if !ok {
			ix.remove(e.ID)
			ids = append(ids, e.ID)
			continue
		}
		if want := c.entry(); !sameEntry(e, want) {
			ix.upsert(want)
			ids = append(ids, e.ID)
		}
	}

	var orphans []*Conversation
	for id, c := range onDisk {
		if ix.find(id) < 0 {
			orphans = append(orphans, c)
		}
	}
	sort.Slice(orphans, func(i, j int) bool {
		if !orphans[i].CreatedAt.Equal(orphans[j].CreatedAt) {
			return orphans[i].CreatedAt.Before(orphans[j].CreatedAt)
		}
		return orphans[i].ID < orphans[j].ID
	})
	for _, c := range orphans {
		ix.upsert(c.entry())
		ids = append(ids, c.ID)
	}

	currentMoved := false
	if ix.Current != nil && ix.find(*ix.Current) < 0 {
		ix.Current = nil
		if len(ix.Conversations) > 0 {
			first := ix.Conversations[0].ID
			ix.Current = &first
		}
		currentMoved = true
	}

	if len(ids) == 0 && !currentMoved {
		return 0, nil
	}
	if err := s.commitLocked(ctx, ix, ids...); err != nil {
		s.index = ix
		return len(ids), err
	}
	s.log.Info("Reconciled conversation index",
		logger.IntField("changed", len(ids)),
		logger.IntField("conversations", len(ix.Conversations)))
	return len(ids), nil
}

func sameEntry(a, b IndexEntry) bool {
	return a.ID == b.ID && a.Title == b.Title && a.DatasetID == b.DatasetID &&
		a.CreatedAt.Equal(b.CreatedAt) && a.UpdatedAt.Equal(b.UpdatedAt) &&
		a.MessageCount == b.MessageCount
}
