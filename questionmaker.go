package quizmaster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Generator produces a candidate quiz for a request. Implementations may
// return malformed drafts; callers check them before use.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest, logger *LLMLogger) (*Draft, error)
}

var errNoDraft = errors.New("no quiz in model response")

// MakerConfig configures the chat model used by QuestionMaker.
type MakerConfig struct {
	APIKey      string
	BaseURL     string // empty uses the OpenAI default
	Model       string
	Temperature float32
}

// QuestionMaker generates quizzes with an OpenAI compatible chat model.
type QuestionMaker struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewQuestionMaker creates a question maker from explicit configuration.
func NewQuestionMaker(cfg MakerConfig) *QuestionMaker {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}
	return &QuestionMaker{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
	}
}

const submitQuizTool = "submit_quiz"

var difficultyInstructions = map[Difficulty]string{
	DifficultyEasy:   "Make questions straightforward with basic concepts and clear answers.",
	DifficultyMedium: "Include questions that require some analysis and understanding of concepts.",
	DifficultyHard:   "Create challenging questions that require deep understanding and critical thinking.",
}

// Generate asks the model for a quiz and parses its answer.
func (qm *QuestionMaker) Generate(ctx context.Context, req GenerationRequest, logger *LLMLogger) (*Draft, error) {
	VerboseLog("Generating %d questions for topic: %s", req.NumQuestions, req.Topic)

	prompt := qm.buildPrompt(req)
	logger.LogLLMRequest("QuestionMaker", prompt)

	resp, err := qm.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       qm.model,
			Temperature: qm.temperature,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "You are an expert quiz question generator. Generate high-quality multiple choice questions with exactly 4 options each.",
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			Tools: []openai.Tool{
				{
					Type: openai.ToolTypeFunction,
					Function: &openai.FunctionDefinition{
						Name:        submitQuizTool,
						Description: "Submit the generated quiz",
						Parameters:  quizSchema(),
					},
				},
			},
			ToolChoice: openai.ToolChoice{
				Type: openai.ToolTypeFunction,
				Function: openai.ToolFunction{
					Name: submitQuizTool,
				},
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate quiz: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in model response: %w", errNoDraft)
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		logger.LogLLMResponse("QuestionMaker", call.Function.Arguments)
		if call.Function.Name != submitQuizTool {
			return nil, fmt.Errorf("unexpected tool call: %s", call.Function.Name)
		}
		var d Draft
		if err := json.Unmarshal([]byte(call.Function.Arguments), &d); err != nil {
			return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
		}
		return &d, nil
	}

	// Some compatible endpoints ignore tool_choice and answer in text.
	logger.LogLLMResponse("QuestionMaker", msg.Content)
	return ParseDraft(msg.Content)
}

// ParseDraft decodes the outermost JSON object found in free-form model
// output.
func ParseDraft(text string) (*Draft, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, errNoDraft
	}
	var d Draft
	if err := json.Unmarshal([]byte(text[start:end+1]), &d); err != nil {
		return nil, fmt.Errorf("failed to parse quiz json: %w", err)
	}
	return &d, nil
}

func (qm *QuestionMaker) buildPrompt(req GenerationRequest) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Create a quiz about %q with %d multiple choice questions.\n\n", req.Topic, req.NumQuestions))

	sb.WriteString(fmt.Sprintf("Difficulty level: %s\n", req.Difficulty))
	if instr, ok := difficultyInstructions[req.Difficulty]; ok {
		sb.WriteString(instr)
	} else {
		sb.WriteString("Use medium difficulty level.")
	}
	sb.WriteString("\n\n")

	sb.WriteString("Requirements:\n")
	sb.WriteString("- Each question must have exactly 4 options (A, B, C, D)\n")
	sb.WriteString("- Only one option should be correct; correct_answer is its 0-based index\n")
	sb.WriteString("- Provide a clear explanation for the correct answer\n")
	sb.WriteString("- Make sure questions are relevant to the topic\n")
	sb.WriteString("- Vary the difficulty within the specified level\n")
	sb.WriteString("- Use clear, unambiguous language\n")
	sb.WriteString(fmt.Sprintf("- Use the %s tool to return the quiz; if tools are unavailable, reply with the same JSON object only\n", submitQuizTool))

	return sb.String()
}

func quizSchema() map[string]interface{} {
	str := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "string", "description": desc}
	}
	levels := []string{string(DifficultyEasy), string(DifficultyMedium), string(DifficultyHard)}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"topic":      str("Quiz topic"),
			"difficulty": map[string]interface{}{"type": "string", "enum": levels},
			"questions": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"question": str("The question text"),
						"options": map[string]interface{}{
							"type":        "array",
							"items":       map[string]interface{}{"type": "string"},
							"description": "Array of exactly 4 multiple choice options",
						},
						"correct_answer": map[string]interface{}{
							"type":        "integer",
							"description": "0-based index of the correct option",
						},
						"explanation": str("Why the correct answer is right"),
						"difficulty":  map[string]interface{}{"type": "string", "enum": levels},
					},
					"required": []string{"question", "options", "correct_answer", "explanation", "difficulty"},
				},
			},
		},
		"required": []string{"topic", "difficulty", "questions"},
	}
}
