package main

import (
	"embed"
	"encoding/gob"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quizmaster"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/sessions"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	cookieName  = "quiz-session"
	lastQuizKey = "last_quiz_id"
)

type Server struct {
	engine         *quizmaster.Engine
	store          *sessions.CookieStore
	templates      map[string]*template.Template
	corsOrigins    []string
	requestTimeout time.Duration
}

type Flash struct {
	Kind string // error|success|info
	Text string
}

func init() {
	gob.Register(Flash{})
}

func newServer(engine *quizmaster.Engine, secret string, corsOrigins []string, requestTimeout time.Duration) (*Server, error) {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	funcMap := template.FuncMap{
		"add": func(a, b int) int {
			return a + b
		},
		"letter": optionLetter,
		"percent": func(v float64) string {
			return strconv.FormatFloat(v, 'f', 1, 64)
		},
	}

	templates := make(map[string]*template.Template)
	for _, name := range []string{"index", "question", "results"} {
		t, err := template.New(name).Funcs(funcMap).ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		templates[name] = t
	}

	return &Server{
		engine:         engine,
		store:          store,
		templates:      templates,
		corsOrigins:    corsOrigins,
		requestTimeout: requestTimeout,
	}, nil
}

// optionLetter maps 0..3 to A..D.
func optionLetter(i int) string {
	if i < 0 || i >= quizmaster.NumOptions {
		return strconv.Itoa(i)
	}
	return string(rune('A' + i))
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer, middleware.StripSlashes)
	r.Use(middleware.Timeout(s.requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/", s.handleIndex)
	r.Post("/generate", s.handleGenerate)
	r.Route("/quiz/{id}", func(qr chi.Router) {
		qr.Get("/", s.handleQuiz)
		qr.Post("/submit", s.handleSubmit)
		qr.Get("/results", s.handleResults)
		qr.Get("/restart", s.handleRestart)
		qr.Post("/restart", s.handleRestart)
	})

	r.Route("/api", func(ar chi.Router) {
		ar.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			ExposedHeaders: []string{"Content-Length"},
			MaxAge:         300,
		}))
		ar.Get("/quizzes", listQuizzesHandler(s.engine))
		ar.Post("/quizzes", createQuizHandler(s.engine))
		ar.Route("/quiz/{id}", func(qr chi.Router) {
			qr.Get("/status", statusHandler(s.engine))
			qr.Get("/question", questionHandler(s.engine))
			qr.Post("/answer", answerHandler(s.engine))
			qr.Get("/results", resultsHandler(s.engine))
			qr.Post("/restart", restartHandler(s.engine))
			qr.Post("/statistics", recomputeHandler(s.engine))
			qr.Delete("/", deleteQuizHandler(s.engine))
		})
	})
	return r
}

func (s *Server) session(r *http.Request) *sessions.Session {
	// A bad or rotated cookie still yields a usable empty session.
	sess, err := s.store.Get(r, cookieName)
	if err != nil {
		quizmaster.VerboseLog("Ignoring bad session cookie: %v", err)
	}
	return sess
}

func (s *Server) flash(w http.ResponseWriter, r *http.Request, kind, text string) {
	sess := s.session(r)
	sess.AddFlash(Flash{Kind: kind, Text: text})
	if err := sess.Save(r, w); err != nil {
		log.Printf("Session save error: %v", err)
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data map[string]interface{}) {
	sess := s.session(r)
	var flashes []Flash
	for _, f := range sess.Flashes() {
		if fl, ok := f.(Flash); ok {
			flashes = append(flashes, fl)
		}
	}
	if len(flashes) > 0 {
		if err := sess.Save(r, w); err != nil {
			log.Printf("Session save error: %v", err)
		}
	}
	data["Flashes"] = flashes

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates[name].ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Template error in %s: %v", name, err)
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}

// fail reports an engine error on an HTML route. Unknown quizzes get a
// 404; anything else goes back to the index with a message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, what string, err error) {
	msg := fmt.Sprintf("Error %s: %v", what, err)
	if errors.Is(err, quizmaster.ErrNotFound) {
		msg = fmt.Sprintf("Error %s: quiz not found", what)
	}
	log.Printf("Error %s: %v", what, err)
	s.flash(w, r, "error", msg)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	quizzes, err := s.engine.ListQuizzes(r.Context(), 10)
	if err != nil {
		log.Printf("Failed to get quizzes: %v", err)
		http.Error(w, "Failed to get quizzes", http.StatusInternalServerError)
		return
	}
	lastID, _ := s.session(r).Values[lastQuizKey].(string)
	s.render(w, r, "index", map[string]interface{}{
		"Quizzes":    quizzes,
		"LastQuizID": lastID,
	})
}

// formRequest reads the generate form. Unknown difficulties become medium
// and an out-of-range count becomes the default.
func formRequest(r *http.Request) quizmaster.GenerationRequest {
	req := quizmaster.GenerationRequest{
		Topic:      strings.TrimSpace(r.FormValue("topic")),
		Difficulty: quizmaster.Difficulty(strings.ToLower(r.FormValue("difficulty"))),
	}
	if !req.Difficulty.Valid() {
		req.Difficulty = quizmaster.DifficultyMedium
	}
	n, err := strconv.Atoi(strings.TrimSpace(r.FormValue("num_questions")))
	if err != nil || n < quizmaster.MinQuestions || n > quizmaster.MaxQuestions {
		n = quizmaster.DefaultQuestions
	}
	req.NumQuestions = n
	return req
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	req := formRequest(r)
	if req.Topic == "" {
		s.flash(w, r, "error", "Topic is required")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	quiz, err := s.engine.CreateQuiz(r.Context(), req)
	if err != nil {
		s.fail(w, r, "generating quiz", err)
		return
	}

	sess := s.session(r)
	sess.Values[lastQuizKey] = quiz.ID
	if err := sess.Save(r, w); err != nil {
		log.Printf("Session save error: %v", err)
	}
	http.Redirect(w, r, "/quiz/"+quiz.ID, http.StatusSeeOther)
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	quiz, err := s.engine.GetQuiz(r.Context(), id)
	if err != nil {
		s.fail(w, r, "loading quiz", err)
		return
	}
	p, err := s.engine.CurrentQuestion(r.Context(), id)
	if err != nil {
		s.fail(w, r, "loading quiz", err)
		return
	}
	if p.Completed {
		http.Redirect(w, r, "/quiz/"+id+"/results", http.StatusSeeOther)
		return
	}

	s.render(w, r, "question", map[string]interface{}{
		"QuizID":             id,
		"Topic":              quiz.Topic,
		"Difficulty":         quiz.Difficulty,
		"Progress":           p,
		"ProgressPercentage": float64(p.Position) / float64(p.Total) * 100,
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	back := "/quiz/" + id
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	raw := r.FormValue("selected_option")
	if raw == "" {
		s.flash(w, r, "error", "Please select an answer")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	selected, err := strconv.Atoi(raw)
	if err != nil {
		s.flash(w, r, "error", "Invalid answer")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	var res *quizmaster.AnswerResult
	if pos, perr := strconv.Atoi(r.FormValue("position")); perr == nil {
		res, err = s.engine.AnswerAt(r.Context(), id, pos, selected)
	} else {
		res, err = s.engine.Answer(r.Context(), id, selected)
	}
	switch {
	case errors.Is(err, quizmaster.ErrInvalidState):
		http.Redirect(w, r, back+"/results", http.StatusSeeOther)
		return
	case errors.Is(err, quizmaster.ErrInvalidInput):
		s.flash(w, r, "error", err.Error())
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	case err != nil:
		s.fail(w, r, "submitting answer", err)
		return
	}

	if !res.Duplicate {
		if res.Correct {
			s.flash(w, r, "success", "Correct!")
		} else {
			s.flash(w, r, "info", fmt.Sprintf("Incorrect. The answer was %s.", optionLetter(res.CorrectAnswer)))
		}
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.engine.Results(r.Context(), id)
	if err != nil {
		s.fail(w, r, "loading results", err)
		return
	}
	if !res.Completed {
		http.Redirect(w, r, "/quiz/"+id, http.StatusSeeOther)
		return
	}
	s.render(w, r, "results", map[string]interface{}{
		"Results": res,
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.Restart(r.Context(), id); err != nil {
		s.fail(w, r, "restarting quiz", err)
		return
	}
	s.flash(w, r, "success", "Quiz restarted successfully!")
	http.Redirect(w, r, "/quiz/"+id, http.StatusSeeOther)
}
