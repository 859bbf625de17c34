package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"quizmaster"
	"quizmaster/internal/config"

	openai "github.com/sashabaranov/go-openai"
)

const submitTopicTool = "submit_topic"

// TopicSuggestion represents a suggested quiz topic
type TopicSuggestion struct {
	Topic       string `json:"topic"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Difficulty  string `json:"difficulty"`
}

// TopicGenerator generates quiz topics using an LLM
type TopicGenerator struct {
	client *openai.Client
	model  string
}

// NewTopicGenerator creates a new topic generator
func NewTopicGenerator(apiKey, baseURL, model string) *TopicGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4o
	}
	return &TopicGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func buildTopicPrompt(existingTopics []string, category string) string {
	var sb strings.Builder

	sb.WriteString("Suggest one quiz topic that suits a short multiple choice quiz of up to 20 questions.\n")
	if category != "" {
		fmt.Fprintf(&sb, "The topic must belong to the category %q.\n", category)
	}

	if len(existingTopics) > 0 {
		sb.WriteString("\nIMPORTANT: these topics already have quizzes. Do not repeat them or suggest a close variant:\n")
		for _, topic := range existingTopics {
			fmt.Fprintf(&sb, "- %s\n", topic)
		}
	}

	sb.WriteString("\nThe topic should be:\n")
	sb.WriteString("- factual, so every question has one defensible answer\n")
	sb.WriteString("- broad enough for at least 10 distinct questions\n")
	sb.WriteString("- named in a few words, the way a quiz title would read\n")
	fmt.Fprintf(&sb, "\nReturn it with the %s tool, including a one sentence description, a category and a difficulty (easy, medium or hard).", submitTopicTool)
	return sb.String()
}

// GenerateFreshTopic generates a single quiz topic that is not in existingTopics
func (tg *TopicGenerator) GenerateFreshTopic(ctx context.Context, existingTopics []string, category string) (*TopicSuggestion, error) {
	resp, err := tg.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: tg.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "You pick topics for a trivia quiz service. Suggest topics that are not already covered.",
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: buildTopicPrompt(existingTopics, category),
				},
			},
			Tools: []openai.Tool{
				{
					Type: openai.ToolTypeFunction,
					Function: &openai.FunctionDefinition{
						Name:        submitTopicTool,
						Description: "Submit the generated quiz topic",
						Parameters: map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"topic": map[string]interface{}{
									"type":        "string",
									"description": "The quiz topic name",
								},
								"description": map[string]interface{}{
									"type":        "string",
									"description": "Brief description of what the quiz covers",
								},
								"category": map[string]interface{}{
									"type":        "string",
									"description": "Category of the topic (e.g., Science, History, Technology)",
								},
								"difficulty": map[string]interface{}{
									"type":        "string",
									"enum":        []string{"easy", "medium", "hard"},
									"description": "Suggested difficulty level",
								},
							},
							"required": []string{"topic", "description", "category", "difficulty"},
						},
					},
				},
			},
			ToolChoice: openai.ToolChoice{
				Type:     openai.ToolTypeFunction,
				Function: openai.ToolFunction{Name: submitTopicTool},
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate topic: %w", err)
	}
	return parseTopicResponse(resp, existingTopics)
}

func parseTopicResponse(resp openai.ChatCompletionResponse, existingTopics []string) (*TopicSuggestion, error) {
	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from LLM")
	}
	choice := resp.Choices[0]
	if len(choice.Message.ToolCalls) == 0 {
		return nil, errors.New("no tool calls in response")
	}

	toolCall := choice.Message.ToolCalls[0]
	if toolCall.Function.Name != submitTopicTool {
		return nil, fmt.Errorf("unexpected tool call: %s", toolCall.Function.Name)
	}

	var topic TopicSuggestion
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &topic); err != nil {
		return nil, fmt.Errorf("failed to parse topic: %w", err)
	}
	topic.Topic = strings.TrimSpace(topic.Topic)
	if topic.Topic == "" {
		return nil, errors.New("empty topic")
	}
	for _, existing := range existingTopics {
		if strings.EqualFold(strings.TrimSpace(existing), topic.Topic) {
			return nil, fmt.Errorf("topic %q already exists", topic.Topic)
		}
	}
	return &topic, nil
}

// requestFor builds the quiz request for a suggestion, preferring the
// suggested difficulty over the default.
func requestFor(topic *TopicSuggestion, defaultDifficulty string, numQuestions int) quizmaster.GenerationRequest {
	d := quizmaster.Difficulty(strings.ToLower(strings.TrimSpace(topic.Difficulty)))
	if !d.Valid() {
		d = quizmaster.Difficulty(defaultDifficulty)
	}
	return quizmaster.GenerationRequest{
		Topic:        topic.Topic,
		Difficulty:   d,
		NumQuestions: numQuestions,
	}
}

func main() {
	cfg := config.FromEnv()
	var (
		category     = flag.String("category", "", "Focus on specific category (optional)")
		count        = flag.Int("count", 1, "Number of fresh quizzes to create")
		numQuestions = flag.Int("questions", quizmaster.DefaultQuestions, "Number of questions per quiz")
		difficulty   = flag.String("difficulty", "medium", "Default difficulty level")
		driver       = flag.String("driver", cfg.DBDriver, "Store (sqlite, postgres)")
		dsn          = flag.String("db", cfg.DBDSN, "Database DSN")
		apiKey       = flag.String("api-key", cfg.OpenAIAPIKey, "OpenAI API key (or set OPENAI_API_KEY env var)")
		verbose      = flag.Bool("verbose", cfg.Verbose, "Enable verbose output")
	)

	flag.Parse()

	quizmaster.SetVerbose(*verbose)

	if *apiKey == "" {
		log.Fatal("OpenAI API key is required. Use -api-key flag or set OPENAI_API_KEY environment variable.")
	}

	ctx := context.Background()
	store, err := quizmaster.OpenStore(ctx, *driver, *dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	engine := quizmaster.NewEngine(store,
		quizmaster.NewQuizGenerator(quizmaster.NewQuestionMaker(quizmaster.MakerConfig{
			APIKey:      *apiKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
		})),
		quizmaster.WithLLMLogDir(cfg.LLMLogDir),
		quizmaster.WithGenerationTimeout(cfg.GenerationTimeout))

	existing, err := engine.ListQuizzes(ctx, 0)
	if err != nil {
		log.Fatalf("Failed to get existing quizzes: %v", err)
	}
	var existingTopics []string
	for _, quiz := range existing {
		existingTopics = append(existingTopics, quiz.Topic)
	}
	fmt.Printf("Found %d existing quiz topics in database\n", len(existingTopics))

	topicGen := NewTopicGenerator(*apiKey, cfg.OpenAIBaseURL, cfg.LLMModel)

	created := 0
	for i := 0; i < *count; i++ {
		tctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		topic, err := topicGen.GenerateFreshTopic(tctx, existingTopics, *category)
		cancel()
		if err != nil {
			log.Printf("Failed to generate topic: %v", err)
			continue
		}
		fmt.Printf("Generated fresh topic: %s (%s, %s)\n%s\n", topic.Topic, topic.Category, topic.Difficulty, topic.Description)

		quiz, err := engine.CreateQuiz(ctx, requestFor(topic, *difficulty, *numQuestions))
		if err != nil {
			log.Printf("Failed to create quiz for topic '%s': %v", topic.Topic, err)
			continue
		}
		existingTopics = append(existingTopics, quiz.Topic)
		created++
		fmt.Printf("Quiz created with ID: %s (%d questions)\n\n", quiz.ID, len(quiz.Questions))
	}

	fmt.Printf("Created %d of %d quizzes\n", created, *count)
}
