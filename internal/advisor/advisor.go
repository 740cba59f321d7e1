package advisor

import (
	"context"
	"fmt"
	"log"

	"farewatch/internal/domain"
	"farewatch/internal/service"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LLMClient abstracts the OpenAI chat completions API for testability.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// RouteQuerier provides tracked route and price data for the advisor's context.
type RouteQuerier interface {
	ListRoutes(ctx context.Context, userID string) ([]*domain.TrackedRoute, error)
	Summarize(ctx context.Context, routeID string) (*service.Summary, error)
	Alerts(ctx context.Context, routeID string) ([]*domain.PriceAlert, error)
}

// ConversationStore persists and retrieves conversation messages.
type ConversationStore interface {
	AppendMessage(ctx context.Context, chatID int64, role, content string) error
	RecentMessages(ctx context.Context, chatID int64, limit int) ([]domain.ConversationMessage, error)
}

// AdvisorService answers free-form fare questions grounded in the user's
// tracked routes and recorded price history.
type AdvisorService struct {
	tracer     trace.Tracer
	llm        LLMClient
	routes     RouteQuerier
	convStore  ConversationStore
	model      string
	maxHistory int
}

func NewAdvisorService(
	tracer trace.Tracer,
	llm LLMClient,
	routes RouteQuerier,
	convStore ConversationStore,
	model string,
	maxHistory int,
) *AdvisorService {
	if maxHistory <= 0 {
		maxHistory = 20
	}
	return &AdvisorService{
		tracer:     tracer,
		llm:        llm,
		routes:     routes,
		convStore:  convStore,
		model:      model,
		maxHistory: maxHistory,
	}
}

func (s *AdvisorService) Ask(ctx context.Context, chatID int64, userID, userMessage string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "advisor.ask")
	defer span.End()
	span.SetAttributes(attribute.Int64("chat_id", chatID))

	if err := s.convStore.AppendMessage(ctx, chatID, "user", userMessage); err != nil {
		log.Printf("failed to store user message: %v", err)
	}

	// Narrow the context to mentioned city pairs when the message names any.
	mentioned := ExtractRoutePairs(userMessage)

	travelContext, err := s.gatherContext(ctx, userID, mentioned)
	if err != nil {
		log.Printf("failed to gather travel context: %v", err)
		travelContext = "Tracked route data temporarily unavailable."
	}

	systemPrompt := BuildSystemPrompt(travelContext)

	history, err := s.convStore.RecentMessages(ctx, chatID, s.maxHistory)
	if err != nil {
		log.Printf("failed to load conversation history: %v", err)
		history = nil
	}

	messages := s.buildMessages(systemPrompt, history)

	reply, err := s.callLLM(ctx, messages)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("advisor unavailable: %w", err)
	}

	if err := s.convStore.AppendMessage(ctx, chatID, "assistant", reply); err != nil {
		log.Printf("failed to store assistant reply: %v", err)
	}

	return reply, nil
}

func (s *AdvisorService) gatherContext(ctx context.Context, userID string, mentioned []RoutePair) (string, error) {
	ctx, span := s.tracer.Start(ctx, "advisor.gather-context")
	defer span.End()

	routes, err := s.routes.ListRoutes(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(mentioned) > 0 {
		routes = filterRoutes(routes, mentioned)
	}

	summaries := make(map[string]*service.Summary, len(routes))
	alerts := make(map[string][]*domain.PriceAlert, len(routes))
	for _, route := range routes {
		if summary, err := s.routes.Summarize(ctx, route.ID); err == nil {
			summaries[route.ID] = summary
		}
		if a, err := s.routes.Alerts(ctx, route.ID); err == nil && len(a) > 0 {
			alerts[route.ID] = a
		}
	}

	return FormatTravelContext(routes, summaries, alerts), nil
}

func filterRoutes(routes []*domain.TrackedRoute, pairs []RoutePair) []*domain.TrackedRoute {
	var out []*domain.TrackedRoute
	for _, route := range routes {
		for _, p := range pairs {
			if route.Origin == p.Origin && route.Destination == p.Destination {
				out = append(out, route)
				break
			}
		}
	}
	if len(out) == 0 {
		// Unknown pair mentioned: fall back to everything the user tracks.
		return routes
	}
	return out
}

func (s *AdvisorService) buildMessages(
	systemPrompt string,
	history []domain.ConversationMessage,
) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)

	messages = append(messages, openai.SystemMessage(systemPrompt))

	for _, msg := range history {
		switch msg.Role {
		case "user":
			messages = append(messages, openai.UserMessage(msg.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}

	return messages
}

func (s *AdvisorService) callLLM(
	ctx context.Context,
	messages []openai.ChatCompletionMessageParamUnion,
) (string, error) {
	ctx, span := s.tracer.Start(ctx, "advisor.llm-call")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", s.model),
		attribute.Int("llm.message_count", len(messages)),
	)

	completion, err := s.llm.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model:    s.model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices in LLM response")
	}

	reply := completion.Choices[0].Message.Content
	span.SetAttributes(attribute.Int("llm.reply_length", len(reply)))
	return reply, nil
}

// openaiClient wraps the official SDK's chat completions service.
type openaiClient struct {
	client openai.Client
}

func NewOpenAIClient(apiKey string) LLMClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &openaiClient{client: client}
}

func (c *openaiClient) CreateChatCompletion(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
