package quizmaster

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeRequest(t *testing.T) {
	req, err := NormalizeRequest(GenerationRequest{Topic: "  Tides ", Difficulty: " HARD", NumQuestions: 20})
	if err != nil {
		t.Fatal(err)
	}
	if req.Topic != "Tides" || req.Difficulty != DifficultyHard {
		t.Fatalf("normalized: %+v", req)
	}

	req, err = NormalizeRequest(GenerationRequest{Topic: "Tides", NumQuestions: 1})
	if err != nil || req.Difficulty != DifficultyMedium {
		t.Fatalf("default difficulty: %+v, %v", req, err)
	}

	for _, bad := range []GenerationRequest{
		{Topic: "", NumQuestions: 5},
		{Topic: "x", Difficulty: "expert", NumQuestions: 5},
		{Topic: "x", NumQuestions: 0},
		{Topic: "x", NumQuestions: 21},
	} {
		if _, err := NormalizeRequest(bad); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%+v: err = %v", bad, err)
		}
	}
}

func TestFallbackDraft(t *testing.T) {
	cases := []struct {
		n, want int
	}{{1, 1}, {2, 2}, {3, 3}, {10, 3}, {0, 1}}
	for _, c := range cases {
		d := FallbackDraft(GenerationRequest{Topic: "Owls", Difficulty: DifficultyEasy, NumQuestions: c.n})
		if len(d.Questions) != c.want {
			t.Errorf("n=%d: got %d questions", c.n, len(d.Questions))
		}
		if !d.Fallback {
			t.Error("Fallback flag not set")
		}
		if err := CheckDraft(d); err != nil {
			t.Errorf("n=%d: fallback draft invalid: %v", c.n, err)
		}
	}

	d := FallbackDraft(GenerationRequest{Topic: "Owls", NumQuestions: 2})
	q := d.Questions[1]
	if q.Question != "Sample question 2 about Owls" || q.Explanation != "This is a sample explanation for question 2" {
		t.Fatalf("unexpected text: %+v", q)
	}
	if *q.CorrectAnswer != 0 || q.Options[3] != "Option D" || d.Difficulty != "medium" {
		t.Fatalf("unexpected question: %+v", q)
	}
}

func TestCheckDraftRejects(t *testing.T) {
	cases := map[string]struct {
		mutate func(d *Draft)
		field  string
	}{
		"missing option":      {func(d *Draft) { d.Questions[0].Options = d.Questions[0].Options[:3] }, "options"},
		"blank option":        {func(d *Draft) { d.Questions[1].Options[2] = "  " }, "options[2]"},
		"no correct answer":   {func(d *Draft) { d.Questions[0].CorrectAnswer = nil }, "correct_answer"},
		"answer out of range": {func(d *Draft) { d.Questions[0].CorrectAnswer = intp(4) }, "correct_answer"},
		"no text":             {func(d *Draft) { d.Questions[0].Question = " " }, "question"},
		"bad difficulty":      {func(d *Draft) { d.Questions[0].Difficulty = "insane" }, "difficulty"},
		"no topic":            {func(d *Draft) { d.Topic = "" }, "topic"},
		"no questions":        {func(d *Draft) { d.Questions = nil }, "questions"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			d := testDraft("Owls", 0, 1)
			c.mutate(d)
			err := CheckDraft(d)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if ve.Field != c.field || !errors.Is(err, ErrInvalidDraft) {
				t.Fatalf("field = %q, err = %v", ve.Field, err)
			}
		})
	}
	if err := CheckDraft(nil); !errors.Is(err, ErrInvalidDraft) {
		t.Fatalf("nil draft: %v", err)
	}
}

func TestCheckDraftNormalizes(t *testing.T) {
	d := testDraft("Owls", 2)
	d.Difficulty = " Easy "
	d.Questions[0].Options[0] = "  w  "
	d.Questions[0].Explanation = "   "
	if err := CheckDraft(d); err != nil {
		t.Fatal(err)
	}
	if d.Difficulty != "easy" || d.Questions[0].Difficulty != "easy" || d.Questions[0].Options[0] != "w" || d.Questions[0].Explanation != "" {
		t.Fatalf("not normalized: %+v", d)
	}
}

func TestInvalidDraftFallsBack(t *testing.T) {
	d := testDraft("Owls", 0, 1, 2, 3)
	d.Questions[2].Options = []string{"a", "b", "c"}

	got := NewQuizGenerator(nil).Accept(d, GenerationRequest{Topic: "Owls", Difficulty: DifficultyHard, NumQuestions: 4}, nil)
	if !got.Fallback {
		t.Fatal("expected fallback draft")
	}
	if n := len(got.Questions); n < 1 || n > MaxFallbackQuestions {
		t.Fatalf("fallback has %d questions", n)
	}
	if err := CheckDraft(got); err != nil {
		t.Fatalf("fallback invalid: %v", err)
	}
}

func TestPrepareDraft(t *testing.T) {
	d := testDraft("Owls", 0, 1, 2, 3)
	d.Topic = ""
	d.Difficulty = ""
	d.Questions[1].Question = "OWLS question number 1 ?!"

	got, err := PrepareDraft(d, GenerationRequest{Topic: "Owls", Difficulty: DifficultyHard, NumQuestions: 2})
	if err != nil {
		t.Fatal(err)
	}
	if got.Topic != "Owls" || got.Difficulty != "hard" {
		t.Fatalf("defaults not applied: %q %q", got.Topic, got.Difficulty)
	}
	if len(got.Questions) != 2 {
		t.Fatalf("got %d questions", len(got.Questions))
	}
	if got.Questions[1].Question != "Owls question number 3?" {
		t.Fatalf("duplicate kept: %q", got.Questions[1].Question)
	}
}

func TestDedupQuestions(t *testing.T) {
	qs := testDraft("Owls", 0, 1, 2).Questions
	qs[2].Question = "  owls Question number 1?"
	got := DedupQuestions(qs)
	if len(got) != 2 {
		t.Fatalf("got %d questions", len(got))
	}
}

func TestParseDraft(t *testing.T) {
	text := "Here is your quiz:\n```json\n" + `{"topic":"Owls","difficulty":"easy","questions":[{"text":"Which owl?","option_a":"Barn","option_b":"Snowy","option_c":"Eagle","option_d":"Tawny","correct_answer":1,"explanation":"Snowy owls are white."}]}` + "\n```\nEnjoy!"
	d, err := ParseDraft(text)
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckDraft(d); err != nil {
		t.Fatalf("parsed draft invalid: %v", err)
	}
	q := d.Questions[0]
	if q.Question != "Which owl?" || len(q.Options) != 4 || q.Options[1] != "Snowy" || *q.CorrectAnswer != 1 {
		t.Fatalf("parsed: %+v", q)
	}

	for _, bad := range []string{"", "no json here", "{not json}", "} {"} {
		if _, err := ParseDraft(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Index: 1, Field: "options", Reason: "expected 4, got 3"}
	if !strings.Contains(err.Error(), "question 2") || !strings.Contains(err.Error(), "options") {
		t.Fatalf("message: %q", err.Error())
	}
}
