package gemini

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"

	"github.com/vango-go/resilios/pkg/core/chat"
	"github.com/vango-go/resilios/pkg/core/types"
)

type fakeGenerator struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func newTestProvider(t *testing.T, g *fakeGenerator, opts ...Option) *Provider {
	t.Helper()
	p, err := New(context.Background(), "test-key", append([]Option{withGenerator(g)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func textResponse(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: string(genai.RoleModel), Parts: parts},
		}},
	}
}

func TestGenerate_TextAndSticker(t *testing.T) {
	g := &fakeGenerator{resp: textResponse(
		&genai.Part{Text: "That's wonderful! "},
		&genai.Part{FunctionCall: &genai.FunctionCall{Name: StickerFunction, Args: map[string]any{"stickerName": "CELEBRATING"}}},
	)}
	p := newTestProvider(t, g, WithModel("gemini-test"))

	history := []types.Message{
		{Role: types.RoleUser, Text: "hi"},
		{Role: types.RoleModel, Text: "hello"},
		{Role: types.RoleModel, Text: "spoken line", IsLiveTranscription: true},
	}
	reply, err := p.Generate(context.Background(), history, chat.Request{Text: "I got the job"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply.Text != "That's wonderful!" || reply.Sticker != "CELEBRATING" {
		t.Fatalf("reply=%+v", reply)
	}

	if g.model != "gemini-test" {
		t.Fatalf("model=%q", g.model)
	}
	if len(g.contents) != 3 {
		t.Fatalf("contents=%d, want 3 (live transcription skipped)", len(g.contents))
	}
	if g.contents[2].Role != string(genai.RoleUser) || g.contents[2].Parts[0].Text != "I got the job" {
		t.Fatalf("last content=%+v", g.contents[2])
	}

	tools := g.config.Tools
	if len(tools) != 1 || len(tools[0].FunctionDeclarations) != 1 || tools[0].FunctionDeclarations[0].Name != StickerFunction {
		t.Fatalf("expected sticker function tool, got %+v", tools)
	}
	enum := tools[0].FunctionDeclarations[0].Parameters.Properties["stickerName"].Enum
	if len(enum) != 18 {
		t.Fatalf("sticker enum=%v", enum)
	}
	if g.config.ThinkingConfig != nil {
		t.Fatalf("thinking enabled without deep thinking")
	}
	if g.config.SystemInstruction == nil {
		t.Fatalf("missing system instruction")
	}
}

func TestGenerate_UnknownStickerIgnored(t *testing.T) {
	g := &fakeGenerator{resp: textResponse(
		&genai.Part{Text: "ok"},
		&genai.Part{FunctionCall: &genai.FunctionCall{Name: StickerFunction, Args: map[string]any{"stickerName": "DANCING"}}},
	)}
	reply, err := newTestProvider(t, g).Generate(context.Background(), nil, chat.Request{Text: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply.Sticker != "" {
		t.Fatalf("sticker=%q, want none", reply.Sticker)
	}
}

func TestGenerate_SearchMapsAndThinking(t *testing.T) {
	resp := textResponse(&genai.Part{Text: "Try the park nearby."})
	resp.Candidates[0].GroundingMetadata = &genai.GroundingMetadata{
		GroundingChunks: []*genai.GroundingChunk{
			{Web: &genai.GroundingChunkWeb{URI: "https://example.com/a", Title: "A"}},
			{Maps: &genai.GroundingChunkMaps{URI: "https://maps.example/b", Title: "Park"}},
			{Web: &genai.GroundingChunkWeb{}},
		},
	}
	g := &fakeGenerator{resp: resp}
	p := newTestProvider(t, g, WithThinkingBudget(1024))

	reply, err := p.Generate(context.Background(), nil, chat.Request{
		Text:         "Where can I walk?",
		UseSearch:    true,
		DeepThinking: true,
		Location:     &types.Location{Latitude: 40.7, Longitude: -74},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(reply.GroundingChunks) != 2 {
		t.Fatalf("grounding=%+v", reply.GroundingChunks)
	}
	if reply.GroundingChunks[1].Maps.Title != "Park" {
		t.Fatalf("maps chunk=%+v", reply.GroundingChunks[1])
	}

	tool := g.config.Tools[0]
	if tool.GoogleSearch == nil || tool.GoogleMaps == nil || len(tool.FunctionDeclarations) != 0 {
		t.Fatalf("tool=%+v", tool)
	}
	ll := g.config.ToolConfig.RetrievalConfig.LatLng
	if *ll.Latitude != 40.7 || *ll.Longitude != -74 {
		t.Fatalf("latlng=%v,%v", *ll.Latitude, *ll.Longitude)
	}
	if g.config.ThinkingConfig == nil || *g.config.ThinkingConfig.ThinkingBudget != 1024 {
		t.Fatalf("thinking=%+v", g.config.ThinkingConfig)
	}
}

func TestGenerate_InlineAttachment(t *testing.T) {
	g := &fakeGenerator{resp: textResponse(&genai.Part{Text: "Cute dog"})}
	att := types.NewAttachment("image/png", []byte{1, 2, 3})

	if _, err := newTestProvider(t, g).Generate(context.Background(), nil, chat.Request{Attachment: &att}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	parts := g.contents[0].Parts
	if len(parts) != 1 || parts[0].InlineData == nil || parts[0].InlineData.MIMEType != "image/png" {
		t.Fatalf("parts=%+v", parts)
	}
	if string(parts[0].InlineData.Data) != string([]byte{1, 2, 3}) {
		t.Fatalf("inline data=%v", parts[0].InlineData.Data)
	}
}

func TestBuildContents_MergesSameRole(t *testing.T) {
	history := []types.Message{
		{Role: types.RoleUser, Text: "one"},
		{Role: types.RoleUser, Text: "two"},
	}
	contents, err := buildContents(history, chat.Request{Text: "three"})
	if err != nil {
		t.Fatalf("buildContents: %v", err)
	}
	if len(contents) != 1 || len(contents[0].Parts) != 3 {
		t.Fatalf("contents=%+v", contents)
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"rate limited", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "slow down"}, ErrRateLimit},
		{"bad key", genai.APIError{Code: 400, Status: "INVALID_ARGUMENT", Message: "bad"}, ErrInvalidRequest},
		{"unavailable", genai.APIError{Code: 503, Status: "UNAVAILABLE"}, ErrOverloaded},
		{"transport", errors.New("dial tcp: refused"), ErrProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGenerator{err: tt.err}
			_, err := newTestProvider(t, g).Generate(context.Background(), nil, chat.Request{Text: "hi"})
			var gerr *Error
			if !errors.As(err, &gerr) {
				t.Fatalf("err=%T %v, want *Error", err, err)
			}
			if gerr.Type != tt.want {
				t.Fatalf("type=%s, want %s", gerr.Type, tt.want)
			}
		})
	}

	g := &fakeGenerator{err: context.DeadlineExceeded}
	if _, err := newTestProvider(t, g).Generate(context.Background(), nil, chat.Request{Text: "hi"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("context error not passed through: %v", err)
	}
}

func TestGenerate_EmptyAndBlocked(t *testing.T) {
	g := &fakeGenerator{resp: &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
	}}
	_, err := newTestProvider(t, g).Generate(context.Background(), nil, chat.Request{Text: "hi"})
	var gerr *Error
	if !errors.As(err, &gerr) || gerr.Type != ErrInvalidRequest {
		t.Fatalf("err=%v", err)
	}

	g = &fakeGenerator{resp: &genai.GenerateContentResponse{}}
	_, err = newTestProvider(t, g).Generate(context.Background(), nil, chat.Request{Text: "hi"})
	if !errors.As(err, &gerr) || gerr.Type != ErrProvider {
		t.Fatalf("err=%v", err)
	}
}
