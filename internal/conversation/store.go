package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lewisedginton/financial_qa/internal/storage"
	"github.com/lewisedginton/financial_qa/pkg/logger"
)

const (
	IndexFileName = "conversations_index.json"
	idPrefix      = "conversation_"
	idTimeLayout  = "20060102150405"
	fileExt       = ".json"
)

// Recorder receives per-operation outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	ConversationOperation(op string, err error, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ConversationOperation(string, error, time.Duration) {}

// Store is a file-backed conversation log. It is safe for concurrent use
// within one process. Writers of a conversation file hold that conversation's
// lock; index changes hold mu. Locks are always taken in that order.
type Store struct {
	files     storage.FileProvider
	exportDir string
	now       func() time.Time
	log       logger.Logger
	rec       Recorder

	mu    sync.Mutex
	index indexFile
	// dirty holds ids whose conversation file changed but whose index entry
	// could not be persisted.
	dirty map[string]struct{}

	locksMu sync.Mutex
	locks   map[string]*convLock
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func WithLogger(l logger.Logger) StoreOption {
	return func(s *Store) { s.log = l }
}

func WithRecorder(r Recorder) StoreOption {
	return func(s *Store) { s.rec = r }
}

// WithExportDir sets the directory used by Export when no destination is
// given. It defaults to "exports" under the conversations directory for local
// storage, and "exports" in the working directory otherwise.
func WithExportDir(dir string) StoreOption {
	return func(s *Store) { s.exportDir = dir }
}

// NewStore loads the index from files and reconciles it against the
// conversation files present.
func NewStore(files storage.FileProvider, opts ...StoreOption) (*Store, error) {
	s := &Store{
		files: files,
		now:   time.Now,
		log:   logger.NewNopLogger(),
		rec:   nopRecorder{},
		dirty: make(map[string]struct{}),
		locks: make(map[string]*convLock),
	}
	if local, ok := files.(*storage.LocalFileProvider); ok {
		s.exportDir = filepath.Join(local.BaseDir(), "exports")
	} else {
		s.exportDir = "exports"
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.NewNopLogger()
	}
	if s.rec == nil {
		s.rec = nopRecorder{}
	}

	ctx := context.Background()
	ix, err := s.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	s.index = ix
	if _, err := s.Reconcile(ctx); err != nil {
		if !errors.Is(err, ErrIndexWrite) {
			return nil, fmt.Errorf("reconcile conversation index: %w", err)
		}
		s.log.Warn("Conversation index left unsaved after reconcile", logger.ErrorField(err))
	}
	return s, nil
}

func (s *Store) observe(op string, start time.Time, err error) {
	s.rec.ConversationOperation(op, err, time.Since(start))
}

// convLock is a per-conversation mutex shared by refs holders or waiters.
type convLock struct {
	mu   sync.Mutex
	refs int
}

// lockConversation locks id and returns its unlock func. The entry is dropped
// from s.locks once nobody holds or waits on it.
func (s *Store) lockConversation(id string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &convLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.locksMu.Unlock()
	}
}

func validID(id string) bool {
	return id != "" && id+fileExt != IndexFileName &&
		!strings.ContainsAny(id, "/\\\x00") && !strings.Contains(id, "..")
}

// loadIndex reads the index file. A missing file is an empty index; a corrupt
// one is logged and rebuilt by Reconcile.
func (s *Store) loadIndex(ctx context.Context) (indexFile, error) {
	empty := indexFile{Conversations: []IndexEntry{}}
	data, err := s.files.Read(ctx, IndexFileName)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return empty, nil
		}
		return empty, fmt.Errorf("read conversation index: %w", err)
	}
	var ix indexFile
	if err := json.Unmarshal(data, &ix); err != nil {
		s.log.Warn("Conversation index is corrupt, rebuilding from files", logger.ErrorField(err))
		return empty, nil
	}
	return ix.clone(), nil
}

func (s *Store) writeIndex(ctx context.Context, ix indexFile) error {
	data, err := json.MarshalIndent(ix, "", "  ")
	if err != nil {
		return err
	}
	return s.files.Write(ctx, IndexFileName, data)
}

// commitLocked persists ix and adopts it. On failure the in-memory index is
// left as it was and ids are marked dirty. Callers hold mu.
func (s *Store) commitLocked(ctx context.Context, ix indexFile, ids ...string) error {
	if err := s.writeIndex(ctx, ix); err != nil {
		for _, id := range ids {
			s.dirty[id] = struct{}{}
		}
		s.log.Error("Conversation index write failed", logger.ErrorField(err), logger.Field("ids", ids))
		return fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}
	s.index = ix
	for _, id := range ids {
		delete(s.dirty, id)
	}
	return nil
}

func (s *Store) readConversation(ctx context.Context, id string) (*Conversation, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	start := time.Now()
	data, err := s.files.Read(ctx, id+fileExt)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("read conversation %q: %w", id, err)
	}
	var c Conversation
	if err := json.Unmarshal(data, &c); err != nil || c.ID != id {
		s.log.Warn("Corrupt conversation file", logger.StringField("id", id), logger.ErrorField(err))
		return nil, fmt.Errorf("%w: %q is unreadable", ErrNotFound, id)
	}
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	s.log.Debug("Loaded conversation",
		logger.StringField("id", id),
		logger.IntField("messages", len(c.Messages)),
		logger.DurationField("duration", time.Since(start)))
	return &c, nil
}

func (s *Store) writeConversation(ctx context.Context, c *Conversation) error {
	start := time.Now()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode conversation %q: %w", c.ID, err)
	}
	if err := s.files.Write(ctx, c.ID+fileExt, data); err != nil {
		return fmt.Errorf("write conversation %q: %w", c.ID, err)
	}
	s.log.Debug("Saved conversation",
		logger.StringField("id", c.ID),
		logger.IntField("messages", len(c.Messages)),
		logger.DurationField("duration", time.Since(start)))
	return nil
}

// nextIDLocked derives an id from the clock, suffixing _2, _3... while the id
// is already indexed. Callers hold mu.
func (s *Store) nextIDLocked(now time.Time) string {
	base := idPrefix + now.Format(idTimeLayout)
	id := base
	for n := 2; s.index.find(id) >= 0 || s.isDirty(id); n++ {
		id = fmt.Sprintf("%s_%d", base, n)
	}
	return id
}

func (s *Store) isDirty(id string) bool {
	_, ok := s.dirty[id]
	return ok
}

// Create writes a new empty conversation, indexes it and makes it current.
// An empty title defaults to "Conversation <timestamp>".
func (s *Store) Create(ctx context.Context, title, datasetID string) (id string, err error) {
	start := time.Now()
	defer func() { s.observe("create", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id = s.nextIDLocked(now)
	if title == "" {
		title = "Conversation " + now.Format(time.RFC3339)
	}
	c := &Conversation{
		ID:        id,
		Title:     title,
		DatasetID: datasetID,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []Message{},
	}
	if err := s.writeConversation(ctx, c); err != nil {
		return "", err
	}

	ix := s.index.clone()
	ix.upsert(c.entry())
	cur := id
	ix.Current = &cur
	if err := s.commitLocked(ctx, ix, id); err != nil {
		return id, err
	}
	s.log.Info("Conversation created", logger.StringField("id", id), logger.StringField("dataset_id", datasetID))
	return id, nil
}

// AppendMessage adds a message to conversation id. The conversation file is
// written before the index; if only the index write fails the stored message is
// returned together with an error wrapping ErrIndexWrite.
func (s *Store) AppendMessage(ctx context.Context, id string, msg NewMessage) (out Message, err error) {
	start := time.Now()
	defer func() { s.observe("append", start, err) }()

	if _, err := ParseRole(string(msg.Role)); err != nil {
		return Message{}, err
	}
	if !validID(id) {
		return Message{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	unlock := s.lockConversation(id)
	defer unlock()

	c, err := s.readConversation(ctx, id)
	if err != nil {
		return Message{}, err
	}
	now := s.now()
	if now.Before(c.UpdatedAt) {
		now = c.UpdatedAt
	}
	out = Message{
		ID:             fmt.Sprintf("msg_%d", len(c.Messages)+1),
		Role:           msg.Role,
		Content:        msg.Content,
		Timestamp:      now,
		ProcessingTime: msg.ProcessingTime,
		ChartData:      msg.ChartData,
	}
	c.Messages = append(c.Messages, out)
	c.UpdatedAt = now
	if err := s.writeConversation(ctx, c); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ix := s.index.clone()
	ix.upsert(c.entry())
	if err := s.commitLocked(ctx, ix, id); err != nil {
		return out, err
	}
	return out, nil
}

// Get returns the conversation or an error wrapping ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Conversation, error) {
	return s.readConversation(ctx, id)
}

// List returns index entries by updated_at, newest first. Entries marked
// dirty are first recomputed from their conversation files.
func (s *Store) List(ctx context.Context) (entries []IndexEntry, err error) {
	start := time.Now()
	defer func() { s.observe("list", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.dirty) > 0 {
		s.repairDirtyLocked(ctx)
	}
	entries = append([]IndexEntry(nil), s.index.Conversations...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].UpdatedAt.After(entries[j].UpdatedAt) })
	if entries == nil {
		entries = []IndexEntry{}
	}
	return entries, nil
}

// repairDirtyLocked folds the file state of dirty ids into the index. If the
// repaired index cannot be persisted it is still adopted in memory and the ids
// stay dirty. Callers hold mu.
func (s *Store) repairDirtyLocked(ctx context.Context) {
	ix := s.index.clone()
	ids := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
		c, err := s.readConversation(ctx, id)
		switch {
		case err == nil:
			ix.upsert(c.entry())
		case errors.Is(err, ErrNotFound):
			ix.remove(id)
		default:
			s.log.Warn("Cannot repair index entry", logger.StringField("id", id), logger.ErrorField(err))
		}
	}
	if err := s.commitLocked(ctx, ix, ids...); err != nil {
		s.index = ix
		return
	}
	s.log.Info("Repaired conversation index", logger.IntField("entries", len(ids)))
}

// Current returns the active conversation, or nil when there is none.
func (s *Store) Current(ctx context.Context) (*Conversation, error) {
	s.mu.Lock()
	var id string
	if s.index.Current != nil {
		id = *s.index.Current
	}
	s.mu.Unlock()

	if id == "" {
		return nil, nil
	}
	c, err := s.readConversation(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return c, err
}

// SetCurrent activates id. It reports false when no such conversation exists.
func (s *Store) SetCurrent(ctx context.Context, id string) (ok bool, err error) {
	start := time.Now()
	defer func() { s.observe("set_current", start, err) }()

	if !validID(id) {
		return false, nil
	}
	exists, err := s.files.Exists(ctx, id+fileExt)
	if err != nil {
		return false, fmt.Errorf("check conversation %q: %w", id, err)
	}
	if !exists {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ix := s.index.clone()
	cur := id
	ix.Current = &cur
	if err := s.commitLocked(ctx, ix); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the conversation file and its index entry. If it was
// current, the first remaining indexed conversation becomes current.
func (s *Store) Delete(ctx context.Context, id string) (ok bool, err error) {
	start := time.Now()
	defer func() { s.observe("delete", start, err) }()

	if !validID(id) {
		return false, nil
	}
	unlock := s.lockConversation(id)
	defer unlock()

	exists, err := s.files.Exists(ctx, id+fileExt)
	if err != nil {
		return false, fmt.Errorf("check conversation %q: %w", id, err)
	}
	if !exists {
		return false, nil
	}
	if err := s.files.Delete(ctx, id+fileExt); err != nil {
		return false, fmt.Errorf("delete conversation %q: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ix := s.index.clone()
	ix.remove(id)
	if err := s.commitLocked(ctx, ix, id); err != nil {
		return true, err
	}
	s.log.Info("Conversation deleted", logger.StringField("id", id))
	return true, nil
}
