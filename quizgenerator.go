package quizmaster

import (
	"context"
	"log"
)

// QuizGenerator turns a request into a usable draft. Generate never fails:
// any error from the model, the parser or the checks yields FallbackDraft.
type QuizGenerator struct {
	gen Generator
}

// NewQuizGenerator wraps gen. A nil gen always produces the fallback draft.
func NewQuizGenerator(gen Generator) *QuizGenerator {
	return &QuizGenerator{gen: gen}
}

// Generate produces a checked draft for an already normalized request.
func (qg *QuizGenerator) Generate(ctx context.Context, req GenerationRequest, logger *LLMLogger) *Draft {
	log.Printf("Starting quiz generation for topic: %s, target questions: %d", req.Topic, req.NumQuestions)

	if qg == nil || qg.gen == nil {
		return qg.fallback(req, logger, "no generator configured")
	}

	draft, err := qg.gen.Generate(ctx, req, logger)
	if err != nil {
		log.Printf("Quiz generation failed for topic %q: %v", req.Topic, err)
		return qg.fallback(req, logger, err.Error())
	}
	return qg.Accept(draft, req, logger)
}

// Accept checks a draft from any source and substitutes the fallback when
// it is not usable.
func (qg *QuizGenerator) Accept(draft *Draft, req GenerationRequest, logger *LLMLogger) *Draft {
	prepared, err := PrepareDraft(draft, req)
	if err != nil {
		log.Printf("Rejected draft for topic %q: %v", req.Topic, err)
		return qg.fallback(req, logger, err.Error())
	}
	logger.LogDraftResult(len(prepared.Questions), false, "accepted")
	log.Printf("Quiz generation complete: %d questions for topic '%s'", len(prepared.Questions), prepared.Topic)
	if Verbose() {
		for i, q := range prepared.Questions {
			VerboseLog("Question %d: %s (answer %d)", i+1, q.Question, *q.CorrectAnswer)
		}
	}
	return prepared
}

func (qg *QuizGenerator) fallback(req GenerationRequest, logger *LLMLogger, reason string) *Draft {
	d := FallbackDraft(req)
	logger.LogDraftResult(len(d.Questions), true, reason)
	log.Printf("Using fallback quiz with %d questions for topic %q", len(d.Questions), req.Topic)
	return d
}
