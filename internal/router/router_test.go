package router

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"strings"
	"testing"

	"expensebot/internal/catalog"
	"expensebot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// stubProvider returns a canned reply and records the last request.
type stubProvider struct {
	reply    string
	err      error
	panicMsg string
	lastReq  domain.ChatRequest
}

func (s *stubProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	s.lastReq = req
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &domain.ChatResponse{Content: s.reply}, nil
}

func (s *stubProvider) Name() string                      { return "stub" }
func (s *stubProvider) Model() string                     { return "stub-model" }
func (s *stubProvider) Healthy(ctx context.Context) error { return nil }

func newTestRouter(p domain.Provider, c CatalogClient) *Router {
	return New(Config{
		Provider: p,
		Catalog:  c,
		Logger:   testLogger(),
	})
}

func catalogOn(t *testing.T, handler http.HandlerFunc) *catalog.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return catalog.New(catalog.Config{Endpoint: srv.URL, Logger: testLogger()})
}

func TestProcessTurn_TextResponse(t *testing.T) {
	p := &stubProvider{reply: "Your policy allows $50 per day for meals."}
	r := newTestRouter(p, nil)

	result := r.ProcessTurn(context.Background(), domain.Turn{
		ID: "t1", Channel: "cli", Text: "What is my expense policy?",
	})

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Response != "Your policy allows $50 per day for meals." {
		t.Errorf("unexpected response %q", result.Response)
	}
	if result.Metadata.Kind != domain.KindTextResponse {
		t.Errorf("expected text_response kind, got %q", result.Metadata.Kind)
	}
	if result.Error != "" {
		t.Error("success result must not carry an error string")
	}

	// Text-only turn: no multimodal parts in the request.
	for _, m := range p.lastReq.Messages {
		if m.IsMultimodal() {
			t.Error("text turn must not build multimodal messages")
		}
	}
	if p.lastReq.Messages[0].Role != "system" || p.lastReq.Messages[0].Content == "" {
		t.Error("expected a system persona as the first message")
	}
	if p.lastReq.Messages[1].Content != "What is my expense policy?" {
		t.Errorf("user text not forwarded: %q", p.lastReq.Messages[1].Content)
	}
}

func TestProcessTurn_ImageAnalysis(t *testing.T) {
	imageBytes := []byte("\xff\xd8\xff\xe0 receipt pixels")
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(imageBytes)
	}))
	defer imgSrv.Close()

	p := &stubProvider{reply: "Vendor: ACME, total: $12.50"}
	r := newTestRouter(p, nil)

	result := r.ProcessTurn(context.Background(), domain.Turn{
		ID: "t2", Channel: "webhook", Text: "",
		Attachments: []domain.Attachment{
			{ContentType: "image/jpeg", ContentURL: imgSrv.URL + "/receipt.jpg"},
		},
	})

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Metadata.Kind != domain.KindImageAnalysis {
		t.Errorf("expected image_analysis kind, got %q", result.Metadata.Kind)
	}

	// The model must have received a multimodal user message with the image
	// base64-encoded, at high detail, plus the default analysis prompt since
	// the turn text was empty.
	user := p.lastReq.Messages[len(p.lastReq.Messages)-1]
	if !user.IsMultimodal() {
		t.Fatal("expected a multimodal user message")
	}
	var sawText, sawImage bool
	for _, part := range user.Parts {
		switch part.Type {
		case domain.PartText:
			sawText = true
			if part.Text == "" {
				t.Error("empty turn text must fall back to the default analysis prompt")
			}
		case domain.PartImage:
			sawImage = true
			if part.ImageB64 != base64.StdEncoding.EncodeToString(imageBytes) {
				t.Error("image bytes not base64-encoded correctly")
			}
			if part.Detail != "high" {
				t.Errorf("expected high detail, got %q", part.Detail)
			}
		}
	}
	if !sawText || !sawImage {
		t.Errorf("expected text and image parts, got text=%v image=%v", sawText, sawImage)
	}
}

func TestProcessTurn_ImageDownloadFailure(t *testing.T) {
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer imgSrv.Close()

	p := &stubProvider{reply: "should never be called"}
	r := newTestRouter(p, nil)

	result := r.ProcessTurn(context.Background(), domain.Turn{
		ID: "t3", Channel: "webhook",
		Attachments: []domain.Attachment{
			{ContentType: "image/png", ContentURL: imgSrv.URL + "/gone.png"},
		},
	})

	if result.Success {
		t.Fatal("expected failure when the image cannot be downloaded")
	}
	if result.Error != "Failed to download image" {
		t.Errorf("unexpected error message %q", result.Error)
	}
	if result.Metadata.ErrorKind != domain.ErrKindImageDownload {
		t.Errorf("expected ImageDownloadError, got %q", result.Metadata.ErrorKind)
	}
	// Fetch failure short-circuits: the model is never invoked.
	if p.lastReq.Messages != nil {
		t.Error("model must not be called when the image download fails")
	}
}

func TestProcessTurn_CatalogDelegation(t *testing.T) {
	var askedQuestion string
	cat := catalogOn(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "running shoes") {
			askedQuestion = "running shoes"
		}
		io.WriteString(w, `{"answer":"Yes, aisle 5"}`)
	})

	p := &stubProvider{reply: `{"use_store_api": true, "query": "running shoes"}`}
	r := newTestRouter(p, cat)

	result := r.ProcessTurn(context.Background(), domain.Turn{
		ID: "t4", Channel: "telegram", Text: "do you have running shoes",
	})

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Response != "Yes, aisle 5" {
		t.Errorf("expected catalog answer, got %q", result.Response)
	}
	if askedQuestion != "running shoes" {
		t.Error("directive query was not forwarded to the catalog")
	}
}

func TestProcessTurn_CatalogFailure(t *testing.T) {
	cat := catalogOn(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusInternalServerError)
	})

	p := &stubProvider{reply: `{"use_store_api": true, "query": "running shoes"}`}
	r := newTestRouter(p, cat)

	result := r.ProcessTurn(context.Background(), domain.Turn{
		ID: "t5", Channel: "telegram", Text: "do you have running shoes",
	})

	if result.Success {
		t.Fatal("expected failure when the catalog is down")
	}
	if result.Error != "Unable to access store information at this time. Please try again later." {
		t.Errorf("unexpected error message %q", result.Error)
	}
	if result.Metadata.ErrorKind != domain.ErrKindCatalog {
		t.Errorf("expected CatalogUnavailable, got %q", result.Metadata.ErrorKind)
	}
}

func TestProcessTurn_UnparseableDirectiveFallsBack(t *testing.T) {
	raw := `{"use_store_api": true, "query": ` // marker present, JSON broken
	p := &stubProvider{reply: raw}
	r := newTestRouter(p, nil)

	result := r.ProcessTurn(context.Background(), domain.Turn{
		ID: "t6", Channel: "cli", Text: "do you sell shoes",
	})

	// Parse failures never surface; the user gets the raw model reply.
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Response != raw {
		t.Errorf("expected raw model output, got %q", result.Response)
	}
}

func TestProcessTurn_ModelFailure(t *testing.T) {
	p := &stubProvider{err: fmt.Errorf("connection refused")}
	r := newTestRouter(p, nil)

	result := r.ProcessTurn(context.Background(), domain.Turn{
		ID: "t7", Channel: "cli", Text: "hello",
	})

	if result.Success {
		t.Fatal("expected failure when the model call fails")
	}
	if result.Metadata.ErrorKind != domain.ErrKindModelInvocation {
		t.Errorf("expected ModelInvocationError, got %q", result.Metadata.ErrorKind)
	}
	if !strings.HasPrefix(result.ReplyText(), "Sorry, I encountered an error: ") {
		t.Errorf("reply text must carry the error prefix, got %q", result.ReplyText())
	}
}

func TestProcessTurn_PanicRecovery(t *testing.T) {
	p := &stubProvider{panicMsg: "boom"}
	r := newTestRouter(p, nil)

	result := r.ProcessTurn(context.Background(), domain.Turn{
		ID: "t8", Channel: "cli", Text: "hello",
	})

	if result.Success {
		t.Fatal("expected failure after panic")
	}
	if result.Metadata.ErrorKind != domain.ErrKindInternal {
		t.Errorf("expected InternalError, got %q", result.Metadata.ErrorKind)
	}
	if !strings.Contains(result.Error, "boom") {
		t.Errorf("expected panic value in error, got %q", result.Error)
	}
}

func TestProcessTurn_ImageTurnNeverDelegates(t *testing.T) {
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pixels"))
	}))
	defer imgSrv.Close()

	var catalogCalled bool
	cat := catalogOn(t, func(w http.ResponseWriter, r *http.Request) {
		catalogCalled = true
		io.WriteString(w, `{"answer":"nope"}`)
	})

	// Even if the model answers an image turn with a directive, it must be
	// treated as plain analysis output.
	p := &stubProvider{reply: `{"use_store_api": true, "query": "shoes"}`}
	r := newTestRouter(p, cat)

	result := r.ProcessTurn(context.Background(), domain.Turn{
		ID: "t9", Channel: "webhook",
		Attachments: []domain.Attachment{
			{ContentType: "image/jpeg", ContentURL: imgSrv.URL},
		},
	})

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if catalogCalled {
		t.Error("image turns must never delegate to the catalog")
	}
	if result.Metadata.Kind != domain.KindImageAnalysis {
		t.Errorf("expected image_analysis kind, got %q", result.Metadata.Kind)
	}
}

func TestProcessTurn_Idempotence(t *testing.T) {
	cat := catalogOn(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"answer":"Yes, aisle 5"}`)
	})
	p := &stubProvider{reply: `{"use_store_api": true, "query": "running shoes"}`}
	r := newTestRouter(p, cat)

	turn := domain.Turn{ID: "t10", Channel: "cli", Text: "do you have running shoes"}

	first := r.ProcessTurn(context.Background(), turn)
	second := r.ProcessTurn(context.Background(), turn)

	// Strip the per-invocation timing fields before comparing.
	second.Metadata.ProcessedAt = first.Metadata.ProcessedAt
	first.Metadata.LatencyMs, second.Metadata.LatencyMs = 0, 0

	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ across identical invocations:\n%+v\n%+v", first, second)
	}
}

func TestProcessDirect(t *testing.T) {
	p := &stubProvider{reply: "hello back"}
	r := newTestRouter(p, nil)

	reply := r.ProcessDirect(context.Background(), "hello", "cli", "local")
	if reply != "hello back" {
		t.Errorf("expected model reply, got %q", reply)
	}
}
