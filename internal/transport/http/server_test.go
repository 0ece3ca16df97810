package http

import (
	"context"
	"encoding/json"
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pdfchat/internal/app"
	"pdfchat/internal/bootstrap"
	"pdfchat/internal/config"
	"pdfchat/internal/platform/database"
	"pdfchat/internal/rag"
	"pdfchat/internal/repository"
	"pdfchat/internal/vectorstore"
)

type fakeAgent struct {
	answer    string
	fragments []string
	sources   []rag.SourceCitation
	streamErr error
	resets    int
}

func (a *fakeAgent) Answer(_ context.Context, question string) (string, error) {
	return a.answer + " (" + question + ")", nil
}

func (a *fakeAgent) Chat(ctx context.Context, _ string) (*rag.ChatStream, error) {
	return rag.NewChatStream(ctx, func(ctx context.Context, emit func(string) error) ([]rag.SourceCitation, error) {
		for _, f := range a.fragments {
			if err := emit(f); err != nil {
				return nil, err
			}
		}
		if a.streamErr != nil {
			return nil, a.streamErr
		}
		return a.sources, nil
	}), nil
}

func (a *fakeAgent) Reset(context.Context) error {
	a.resets++
	return nil
}

type testServer struct {
	router  *gin.Engine
	app     *bootstrap.App
	docsDir string
}

func newTestServer(t *testing.T, agent rag.Service, agentErr error) *testServer {
	t.Helper()

	dir := t.TempDir()
	docsDir := filepath.Join(dir, "pdfs")
	require.NoError(t, os.MkdirAll(docsDir, 0o755))

	db, err := database.OpenSQLite(context.Background(), filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	cfg := &config.Config{
		App: config.AppConfig{
			Name:     "pdfchat",
			Env:      "test",
			GinMode:  gin.TestMode,
			Title:    "PDFChat Test",
			Subtitle: "Ask the fixtures",
		},
		Database:    config.DatabaseConfig{Driver: config.DriverSQLite},
		VectorStore: config.VectorStoreConfig{Driver: config.VectorStoreSQL, Collection: "test_docs", VectorSize: 3},
		Storage:     config.StorageConfig{DocumentsDir: docsDir, LinkPrefix: "/pdfs/"},
	}

	conversations := app.NewConversationService(repository.NewConversationRepository(db), nil, nil)
	application := &bootstrap.App{
		Config:        cfg,
		Logger:        zap.NewNop(),
		DB:            db,
		VectorStore:   vectorstore.NewSQLStore(db, cfg.VectorStore.Collection, cfg.VectorStore.VectorSize),
		Conversations: conversations,
		Recorder:      app.NewTranscriptRecorder(conversations, nil, nil),
		Agents: rag.NewProvider(func(context.Context) (rag.Service, error) {
			if agentErr != nil {
				return nil, agentErr
			}
			return agent, nil
		}),
		StartedAt: time.Now(),
	}

	router, err := NewRouter(application)
	require.NoError(t, err)
	return &testServer{router: router, app: application, docsDir: docsDir}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeAgent{}, nil)

	rec := s.do(t, stdhttp.MethodGet, "/api/health", "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = s.do(t, stdhttp.MethodGet, "/healthz", "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	deps := decode(t, rec)["dependencies"].(map[string]any)
	assert.Equal(t, true, deps["database"].(map[string]any)["ok"])
	assert.Equal(t, "disabled", deps["redis"].(map[string]any)["message"])
	assert.Equal(t, "disabled", deps["rabbitmq"].(map[string]any)["message"])
	assert.Equal(t, true, deps["vectorstore"].(map[string]any)["ok"])
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestServer(t, &fakeAgent{}, nil)

	rec := s.do(t, stdhttp.MethodPost, "/api/conversations", `{}`)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	created := decode(t, rec)
	assert.Equal(t, "New Conversation", created["title"])
	assert.True(t, strings.HasSuffix(created["created_at"].(string), "Z"))
	assert.Empty(t, created["messages"])
	id := int(created["id"].(float64))
	base := "/api/conversations/" + strconv.Itoa(id)

	rec = s.do(t, stdhttp.MethodPost, base+"/messages", `{"role":"user","content":"How do I install the tool?"}`)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Equal(t, "user", decode(t, rec)["role"])

	rec = s.do(t, stdhttp.MethodPost, base+"/messages", `{"role":"system","content":"x"}`)
	require.Equal(t, stdhttp.StatusBadRequest, rec.Code)
	assert.Equal(t, float64(40000), decode(t, rec)["code"])

	rec = s.do(t, stdhttp.MethodPost, base+"/messages", `{"role":"assistant"}`)
	require.Equal(t, stdhttp.StatusBadRequest, rec.Code)

	rec = s.do(t, stdhttp.MethodPost, base+"/title", "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Equal(t, "How do I install the tool?", decode(t, rec)["title"])

	rec = s.do(t, stdhttp.MethodPut, base, `{"title":"  "}`)
	require.Equal(t, stdhttp.StatusBadRequest, rec.Code)

	rec = s.do(t, stdhttp.MethodPut, base, `{"title":"Install notes"}`)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Equal(t, "Install notes", decode(t, rec)["title"])

	rec = s.do(t, stdhttp.MethodGet, base, "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	got := decode(t, rec)
	assert.Len(t, got["messages"], 1)

	rec = s.do(t, stdhttp.MethodGet, "/api/conversations/search?q=INSTALL", "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	var hits []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, float64(1), hits[0]["message_count"])

	rec = s.do(t, stdhttp.MethodGet, "/api/conversations/search", "")
	require.Equal(t, stdhttp.StatusBadRequest, rec.Code)

	rec = s.do(t, stdhttp.MethodGet, "/api/conversations/recent?limit=5", "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Install notes")

	rec = s.do(t, stdhttp.MethodDelete, base, "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"deleted"}`, rec.Body.String())

	rec = s.do(t, stdhttp.MethodGet, base, "")
	require.Equal(t, stdhttp.StatusNotFound, rec.Code)
	assert.Equal(t, float64(40401), decode(t, rec)["code"])

	rec = s.do(t, stdhttp.MethodDelete, base, "")
	assert.Equal(t, stdhttp.StatusOK, rec.Code)

	rec = s.do(t, stdhttp.MethodGet, "/api/conversations", "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestTitleWithoutUserMessage(t *testing.T) {
	s := newTestServer(t, &fakeAgent{}, nil)

	rec := s.do(t, stdhttp.MethodPost, "/api/conversations", `{"title":"Empty"}`)
	id := int(decode(t, rec)["id"].(float64))

	rec = s.do(t, stdhttp.MethodPost, "/api/conversations/"+strconv.Itoa(id)+"/title", "")
	assert.Equal(t, stdhttp.StatusNotFound, rec.Code)

	rec = s.do(t, stdhttp.MethodPost, "/api/conversations/999/messages", `{"role":"user","content":"hi"}`)
	assert.Equal(t, stdhttp.StatusNotFound, rec.Code)
}

func TestQuery(t *testing.T) {
	s := newTestServer(t, &fakeAgent{answer: "42"}, nil)

	rec := s.do(t, stdhttp.MethodPost, "/api/query", `{}`)
	require.Equal(t, stdhttp.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing 'question' in request body", decode(t, rec)["error"])

	rec = s.do(t, stdhttp.MethodPost, "/api/query", `{"question":"meaning?"}`)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.JSONEq(t, `{"answer":"42 (meaning?)"}`, rec.Body.String())
}

func TestAgentUnavailable(t *testing.T) {
	s := newTestServer(t, nil, errors.New("failed to load collection 'test_docs'. Have you run the indexer?"))

	for _, path := range []string{"/api/query", "/api/chat"} {
		rec := s.do(t, stdhttp.MethodPost, path, `{"question":"q","message":"m"}`)
		require.Equal(t, stdhttp.StatusInternalServerError, rec.Code, path)
		assert.Contains(t, decode(t, rec)["error"], "Have you run the indexer?")
	}
	rec := s.do(t, stdhttp.MethodPost, "/api/reset", "")
	assert.Equal(t, stdhttp.StatusInternalServerError, rec.Code)
}

func TestChatStreamsAndRecordsTranscript(t *testing.T) {
	agent := &fakeAgent{fragments: []string{"The answer", " is here."}}
	s := newTestServer(t, agent, nil)
	agent.sources = []rag.SourceCitation{
		{FileName: "guide.pdf", PageLabel: "3", FilePath: filepath.Join(s.docsDir, "guide.pdf")},
		{FileName: "guide.pdf", PageLabel: "3", FilePath: filepath.Join(s.docsDir, "guide.pdf")},
	}

	rec := s.do(t, stdhttp.MethodPost, "/api/conversations", `{}`)
	id := int(decode(t, rec)["id"].(float64))

	rec = s.do(t, stdhttp.MethodPost, "/api/chat", `{"message":"Where?","conversation_id":`+strconv.Itoa(id)+`}`)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	want := "The answer is here.\n\n---\n**Sources:**\n1. [guide.pdf (Page 3)](/pdfs/guide.pdf)\n"
	assert.Equal(t, want, rec.Body.String())

	conversation, err := s.app.Conversations.Get(context.Background(), uint(id))
	require.NoError(t, err)
	require.Len(t, conversation.Messages, 2)
	assert.Equal(t, "Where?", conversation.Messages[0].Content)
	assert.Equal(t, want, conversation.Messages[1].Content)
}

func TestChatErrorKeepsOnlyUserTurn(t *testing.T) {
	agent := &fakeAgent{fragments: []string{"a", "b"}, streamErr: errors.New("model crashed")}
	s := newTestServer(t, agent, nil)

	rec := s.do(t, stdhttp.MethodPost, "/api/conversations", `{}`)
	id := int(decode(t, rec)["id"].(float64))

	rec = s.do(t, stdhttp.MethodPost, "/api/chat", `{"message":"hi","conversation_id":`+strconv.Itoa(id)+`}`)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Equal(t, "ab\n\nError: model crashed", rec.Body.String())

	conversation, err := s.app.Conversations.Get(context.Background(), uint(id))
	require.NoError(t, err)
	require.Len(t, conversation.Messages, 1)
	assert.Equal(t, "user", conversation.Messages[0].Role)
}

func TestChatValidation(t *testing.T) {
	s := newTestServer(t, &fakeAgent{}, nil)

	rec := s.do(t, stdhttp.MethodPost, "/api/chat", `{}`)
	require.Equal(t, stdhttp.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing 'message' in request body", decode(t, rec)["error"])

	rec = s.do(t, stdhttp.MethodPost, "/api/chat", `{"message":"hi","conversation_id":404}`)
	assert.Equal(t, stdhttp.StatusNotFound, rec.Code)
}

func TestReset(t *testing.T) {
	agent := &fakeAgent{}
	s := newTestServer(t, agent, nil)

	rec := s.do(t, stdhttp.MethodPost, "/api/reset", "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"Chat history reset"}`, rec.Body.String())
	assert.Equal(t, 1, agent.resets)
}

func TestPagesAndDocuments(t *testing.T) {
	s := newTestServer(t, &fakeAgent{}, nil)
	require.NoError(t, os.WriteFile(filepath.Join(s.docsDir, "guide.pdf"), []byte("%PDF-1.4"), 0o644))

	rec := s.do(t, stdhttp.MethodGet, "/", "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "PDFChat Test")
	assert.Contains(t, rec.Body.String(), "Ask the fixtures")

	rec = s.do(t, stdhttp.MethodGet, "/pdfs/guide.pdf", "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4", rec.Body.String())

	rec = s.do(t, stdhttp.MethodPost, "/api/conversations", `{"title":"Reading list"}`)
	id := int(decode(t, rec)["id"].(float64))
	s.do(t, stdhttp.MethodPost, "/api/conversations/"+strconv.Itoa(id)+"/messages", `{"role":"assistant","content":"See **this**."}`)

	rec = s.do(t, stdhttp.MethodGet, "/history?id="+strconv.Itoa(id), "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Reading list")
	assert.Contains(t, rec.Body.String(), "<strong>this</strong>")
}
