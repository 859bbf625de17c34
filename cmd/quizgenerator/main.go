package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"quizmaster"
	"quizmaster/internal/config"

	"github.com/google/uuid"
)

func main() {
	cfg := config.FromEnv()
	var (
		topic        = flag.String("topic", "", "Quiz topic (required unless -import)")
		numQuestions = flag.Int("questions", quizmaster.DefaultQuestions, "Number of questions to generate")
		difficulty   = flag.String("difficulty", "medium", "Difficulty level (easy, medium, hard)")
		outputFile   = flag.String("output", "", "Output file for quiz JSON (default: stdout)")
		apiKey       = flag.String("api-key", cfg.OpenAIAPIKey, "OpenAI API key (or set OPENAI_API_KEY env var)")
		baseURL      = flag.String("base-url", cfg.OpenAIBaseURL, "OpenAI-compatible API base URL")
		model        = flag.String("model", cfg.LLMModel, "Model name")
		playMode     = flag.Bool("play", false, "Play the quiz interactively")
		importFile   = flag.String("import", "", "Store a quiz JSON draft instead of generating one")
		driver       = flag.String("driver", cfg.DBDriver, "Store for -play and -import (memory, sqlite, postgres)")
		dsn          = flag.String("db", cfg.DBDSN, "Database DSN")
		verbose      = flag.Bool("verbose", cfg.Verbose, "Enable verbose debugging output")
	)

	flag.Parse()

	quizmaster.SetVerbose(*verbose)

	req := quizmaster.GenerationRequest{
		Topic:        *topic,
		Difficulty:   quizmaster.Difficulty(*difficulty),
		NumQuestions: *numQuestions,
	}

	var gen quizmaster.Generator
	if *apiKey != "" {
		gen = quizmaster.NewQuestionMaker(quizmaster.MakerConfig{
			APIKey:      *apiKey,
			BaseURL:     *baseURL,
			Model:       *model,
			Temperature: cfg.LLMTemperature,
		})
	} else {
		log.Printf("No OpenAI API key given, using sample questions")
	}
	generator := quizmaster.NewQuizGenerator(gen)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if *importFile != "" || *playMode {
		store, err := quizmaster.OpenStore(ctx, *driver, *dsn)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer store.Close()
		engine := quizmaster.NewEngine(store, generator,
			quizmaster.WithLLMLogDir(cfg.LLMLogDir),
			quizmaster.WithGenerationTimeout(cfg.GenerationTimeout))

		var quiz *quizmaster.Quiz
		if *importFile != "" {
			f, err := os.Open(*importFile)
			if err != nil {
				log.Fatalf("Failed to open %s: %v", *importFile, err)
			}
			quiz, err = importDraft(ctx, engine, f, req)
			f.Close()
			if err != nil {
				log.Fatalf("Failed to import quiz: %v", err)
			}
			fmt.Printf("Imported quiz %s: %s (%d questions)\n", quiz.ID, quiz.Topic, len(quiz.Questions))
		} else {
			fmt.Printf("Generating quiz on: %s\n", req.Topic)
			quiz, err = engine.CreateQuiz(ctx, req)
			if err != nil {
				log.Fatalf("Failed to create quiz: %v", err)
			}
		}

		if *playMode {
			if err := playQuiz(ctx, engine, quiz.ID, os.Stdin, os.Stdout); err != nil {
				log.Fatalf("Quiz aborted: %v", err)
			}
		}
		return
	}

	req, err := quizmaster.NormalizeRequest(req)
	if err != nil {
		log.Fatalf("Invalid request: %v", err)
	}

	var logger *quizmaster.LLMLogger
	if cfg.LLMLogDir != "" {
		logger, err = quizmaster.NewLLMLogger(cfg.LLMLogDir, uuid.NewString(), req)
		if err != nil {
			log.Printf("Failed to create logger: %v", err)
		}
	}
	defer logger.Close()

	draft := generator.Generate(ctx, req, logger)

	output, err := json.MarshalIndent(draft, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal quiz: %v", err)
	}

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, output, 0644); err != nil {
			log.Fatalf("Failed to write output file: %v", err)
		}
		log.Printf("Quiz saved to: %s", *outputFile)
	} else {
		fmt.Println(string(output))
	}
}

// importDraft stores a JSON draft. Flags fill in what the file leaves out.
func importDraft(ctx context.Context, engine *quizmaster.Engine, r io.Reader, req quizmaster.GenerationRequest) (*quizmaster.Quiz, error) {
	var d quizmaster.Draft
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to parse draft: %w", err)
	}
	if strings.TrimSpace(d.Topic) != "" {
		req.Topic = d.Topic
	}
	if quizmaster.Difficulty(strings.ToLower(d.Difficulty)).Valid() {
		req.Difficulty = quizmaster.Difficulty(strings.ToLower(d.Difficulty))
	}
	if n := len(d.Questions); n >= quizmaster.MinQuestions && n <= quizmaster.MaxQuestions {
		req.NumQuestions = n
	}
	return engine.CreateQuizFromDraft(ctx, req, &d)
}

func playQuiz(ctx context.Context, engine *quizmaster.Engine, quizID string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	letters := "ABCD"

	for {
		p, err := engine.CurrentQuestion(ctx, quizID)
		if err != nil {
			return err
		}
		if p.Completed {
			break
		}

		q := p.Question
		fmt.Fprintf(out, "Question %d/%d:\n%s\n\n", p.Position+1, p.Total, q.Text)
		for i, option := range q.Options {
			fmt.Fprintf(out, "%c) %s\n", letters[i], option)
		}
		fmt.Fprintln(out)

		selected := -1
		for selected < 0 {
			fmt.Fprint(out, "Your answer (A/B/C/D): ")
			if !scanner.Scan() {
				return io.ErrUnexpectedEOF
			}
			if ans := strings.ToUpper(strings.TrimSpace(scanner.Text())); len(ans) == 1 {
				selected = strings.Index(letters, ans)
			}
			if selected < 0 {
				fmt.Fprintln(out, "Please enter A, B, C, or D")
			}
		}

		res, err := engine.AnswerAt(ctx, quizID, p.Position, selected)
		if err != nil {
			return err
		}
		if res.Correct {
			fmt.Fprintln(out, "Correct!")
		} else {
			fmt.Fprintf(out, "Incorrect. The correct answer is %c) %s\n", letters[res.CorrectAnswer], q.Options[res.CorrectAnswer])
		}
		if res.Explanation != "" {
			fmt.Fprintf(out, "Explanation: %s\n", res.Explanation)
		}
		fmt.Fprintf(out, "Score: %d/%d\n\n%s\n\n", res.Score, res.NextPosition, strings.Repeat("-", 50))
	}

	results, err := engine.Results(ctx, quizID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Quiz completed!\nFinal score: %d/%d (%.1f%%)\n",
		results.Score, results.Total, results.Statistics.Percentage)
	switch {
	case results.Statistics.Percentage >= 80:
		fmt.Fprintln(out, "Excellent work!")
	case results.Statistics.Percentage >= 60:
		fmt.Fprintln(out, "Good job!")
	default:
		fmt.Fprintln(out, "Keep studying!")
	}
	return nil
}
