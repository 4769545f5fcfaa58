package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const testModel = "gemini-2.5-flash"

type fakeChatCreator struct {
	mu    sync.Mutex
	calls []chatCallRecord
	queue map[string][]fakeChatResponse
}

type chatCallRecord struct {
	model  string
	config *genai.GenerateContentConfig
	chat   *fakeChat
}

type fakeChatResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeChat struct {
	mu       sync.Mutex
	response fakeChatResponse
	messages []string
}

func (f *fakeChat) SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, part := range parts {
		f.messages = append(f.messages, part.Text)
	}
	return f.response.resp, f.response.err
}

func newFakeChatCreator() *fakeChatCreator {
	return &fakeChatCreator{queue: make(map[string][]fakeChatResponse)}
}

func (f *fakeChatCreator) enqueue(model string, resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue[model] = append(f.queue[model], fakeChatResponse{resp: resp, err: err})
}

func (f *fakeChatCreator) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	responses := f.queue[model]
	if len(responses) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := responses[0]
	f.queue[model] = responses[1:]
	chat := &fakeChat{response: res}
	f.calls = append(f.calls, chatCallRecord{model: model, config: config, chat: chat})
	return chat, nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func newTestGenerator(chats chatCreator, retries int) *Generator {
	return &Generator{chats: chats, model: testModel, maxRetries: retries, logger: zap.NewNop()}
}

func noSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	original := wait
	wait = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	t.Cleanup(func() { wait = original })
	return &delays
}

func TestGeneratorRetriesServerErrors(t *testing.T) {
	delays := noSleep(t)

	chats := newFakeChatCreator()
	chats.enqueue(testModel, nil, genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"})
	chats.enqueue(testModel, textResponse(`{"matches": []}`), nil)

	output, err := newTestGenerator(chats, 3).GenerateContent(context.Background(), "rank jobs", `{"jobs": []}`)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if output != `{"matches": []}` {
		t.Fatalf("unexpected output: %q", output)
	}
	if len(chats.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(chats.calls))
	}
	if len(*delays) != 1 || (*delays)[0] != baseRetryDelay {
		t.Fatalf("expected one backoff of %v, got %v", baseRetryDelay, *delays)
	}

	for _, call := range chats.calls {
		if call.config == nil || call.config.SystemInstruction == nil {
			t.Fatalf("expected system instruction to be set")
		}
		if got := call.config.SystemInstruction.Parts[0].Text; got != "rank jobs" {
			t.Fatalf("unexpected system instruction: %q", got)
		}
		if len(call.chat.messages) != 1 || call.chat.messages[0] != `{"jobs": []}` {
			t.Fatalf("unexpected chat message: %+v", call.chat.messages)
		}
	}
}

func TestGeneratorGivesUpAfterMaxRetries(t *testing.T) {
	noSleep(t)

	chats := newFakeChatCreator()
	for i := 0; i < 2; i++ {
		chats.enqueue(testModel, nil, genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	}

	if _, err := newTestGenerator(chats, 2).GenerateContent(context.Background(), "sys", "msg"); err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if len(chats.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(chats.calls))
	}
}

func TestGeneratorDoesNotRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "long quota delay",
			err: genai.APIError{
				Code:    http.StatusTooManyRequests,
				Status:  "RESOURCE_EXHAUSTED",
				Message: "quota exhausted, retry after 60 seconds",
			},
		},
		{name: "client error", err: genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"}},
		{name: "non api error", err: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			noSleep(t)
			chats := newFakeChatCreator()
			chats.enqueue(testModel, nil, tt.err)

			if _, err := newTestGenerator(chats, 3).GenerateContent(context.Background(), "sys", "msg"); err == nil {
				t.Fatal("expected error")
			}
			if len(chats.calls) != 1 {
				t.Fatalf("expected single call, got %d", len(chats.calls))
			}
		})
	}
}

func TestGeneratorHonoursShortQuotaDelay(t *testing.T) {
	delays := noSleep(t)

	chats := newFakeChatCreator()
	chats.enqueue(testModel, nil, genai.APIError{Code: http.StatusTooManyRequests, Message: "please retry in 1.5s"})
	chats.enqueue(testModel, textResponse("ok"), nil)

	if _, err := newTestGenerator(chats, 3).GenerateContent(context.Background(), "sys", "msg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*delays) != 1 || (*delays)[0] != 1500*time.Millisecond {
		t.Fatalf("expected requested delay of 1.5s, got %v", *delays)
	}
}

func TestGeneratorRejectsEmptyResponse(t *testing.T) {
	chats := newFakeChatCreator()
	chats.enqueue(testModel, &genai.GenerateContentResponse{}, nil)

	if _, err := newTestGenerator(chats, 1).GenerateContent(context.Background(), "sys", "msg"); err == nil {
		t.Fatal("expected error for empty response")
	}
}

func TestGeneratorStopsBackoffOnDeadline(t *testing.T) {
	chats := newFakeChatCreator()
	for i := 0; i < 3; i++ {
		chats.enqueue(testModel, nil, genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newTestGenerator(chats, 3).GenerateContent(ctx, "sys", "msg")
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed >= baseRetryDelay/2 {
		t.Fatalf("expected the backoff to stop at the deadline, took %s", elapsed)
	}
	if len(chats.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(chats.calls))
	}
}
