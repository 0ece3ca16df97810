package app

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfchat/internal/model"
	"pdfchat/internal/platform/database"
	"pdfchat/internal/repository"
)

type memoryCache struct {
	mu          sync.Mutex
	entries     map[uint]*model.Conversation
	dirty       map[uint]bool
	invalidated []uint
	hits        int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[uint]*model.Conversation{}, dirty: map[uint]bool{}}
}

func (c *memoryCache) Get(_ context.Context, id uint) (*model.Conversation, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.entries[id]
	if ok {
		c.hits++
	}
	return conv, ok, nil
}

func (c *memoryCache) Set(_ context.Context, conversation *model.Conversation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[conversation.ID] = conversation
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, id uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

func (c *memoryCache) IsDirty(_ context.Context, id uint) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty[id], nil
}

func newTestService(t *testing.T, cache ConversationCache) *ConversationService {
	t.Helper()

	db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	return NewConversationService(repository.NewConversationRepository(db), cache, nil)
}

func TestAddMessageValidation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "")
	require.NoError(t, err)

	cases := []struct {
		name  string
		input AddMessageInput
		want  error
	}{
		{"missing role", AddMessageInput{ConversationID: conv.ID, Content: "hi"}, ErrRoleRequired},
		{"missing content", AddMessageInput{ConversationID: conv.ID, Role: "user"}, ErrContentRequired},
		{"unknown role", AddMessageInput{ConversationID: conv.ID, Role: "system", Content: "hi"}, ErrInvalidRole},
		{"missing conversation", AddMessageInput{ConversationID: 999, Role: "user", Content: "hi"}, ErrConversationNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AddMessage(ctx, tc.input)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	got, err := svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
}

func TestGetMissingConversation(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.Get(context.Background(), 12345)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestUpdateTitle(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "Original")
	require.NoError(t, err)

	_, err = svc.UpdateTitle(ctx, conv.ID, "  ")
	assert.ErrorIs(t, err, ErrTitleRequired)

	_, err = svc.UpdateTitle(ctx, 999, "Updated")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	updated, err := svc.UpdateTitle(ctx, conv.ID, "Updated")
	require.NoError(t, err)
	assert.Equal(t, "Updated", updated.Title)
}

func TestSearchRequiresQuery(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.Search(context.Background(), " ", 10)
	assert.ErrorIs(t, err, ErrQueryRequired)
}

func TestGenerateTitle(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.GenerateTitle(ctx, 999)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	conv, err := svc.Create(ctx, "")
	require.NoError(t, err)

	_, err = svc.GenerateTitle(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrNoUserMessage)

	_, err = svc.AddMessage(ctx, AddMessageInput{ConversationID: conv.ID, Role: "user", Content: "Tell me about Python programming"})
	require.NoError(t, err)

	title, err := svc.GenerateTitle(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tell me about Python programming", title)

	got, err := svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
}

func TestTitleFromMessage(t *testing.T) {
	assert.Equal(t, "short question", TitleFromMessage("  short   question \n"))

	long := strings.Repeat("a", 60)
	assert.Equal(t, strings.Repeat("a", 50)+"...", TitleFromMessage(long))

	exact := strings.Repeat("b", 50)
	assert.Equal(t, exact, TitleFromMessage(exact))

	// cut on runes, not bytes
	accents := strings.Repeat("é", 55)
	got := TitleFromMessage(accents)
	assert.Equal(t, strings.Repeat("é", 50)+"...", got)
}

func TestGetUsesCacheAndWritesInvalidate(t *testing.T) {
	cache := newMemoryCache()
	svc := newTestService(t, cache)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "Cached")
	require.NoError(t, err)

	_, err = svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	_, err = svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	_, err = svc.AddMessage(ctx, AddMessageInput{ConversationID: conv.ID, Role: "user", Content: "new"})
	require.NoError(t, err)
	assert.Contains(t, cache.invalidated, conv.ID)

	got, err := svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 1)
}

func TestGetSkipsCacheWhileDirty(t *testing.T) {
	cache := newMemoryCache()
	svc := newTestService(t, cache)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "Dirty")
	require.NoError(t, err)
	cache.dirty[conv.ID] = true

	_, err = svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, cache.entries)
}

type recordingPublisher struct {
	messages []model.Message
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, msg model.Message) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func TestTranscriptRecorderDirect(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	recorder := NewTranscriptRecorder(svc, nil, nil)

	conv, err := svc.Create(ctx, "")
	require.NoError(t, err)

	require.NoError(t, recorder.Record(ctx, conv.ID, model.RoleUser, "question"))
	require.NoError(t, recorder.Record(ctx, conv.ID, model.RoleAssistant, "answer"))
	require.NoError(t, recorder.Record(ctx, conv.ID, model.RoleAssistant, ""))

	got, err := svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "answer", got.Messages[1].Content)
}

func TestTranscriptRecorderPublishes(t *testing.T) {
	svc := newTestService(t, nil)
	publisher := &recordingPublisher{}
	recorder := NewTranscriptRecorder(svc, publisher, nil)

	require.NoError(t, recorder.Record(context.Background(), 3, model.RoleUser, "queued"))
	require.Len(t, publisher.messages, 1)
	assert.Equal(t, uint(3), publisher.messages[0].ConversationID)

	publisher.err = errors.New("broker down")
	err := recorder.Record(context.Background(), 3, model.RoleUser, "lost")
	assert.ErrorIs(t, err, ErrTranscriptEnqueue)
}
