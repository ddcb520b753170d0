package model

import "strconv"

// QuizType enumerates the kinds of assessment the platform serves.
type QuizType string

const (
	QuizTypeQuiz     QuizType = "quiz"
	QuizTypeExam     QuizType = "exam"
	QuizTypePractice QuizType = "practice"
)

// Quiz is the assessment definition as served by the platform API.
// It is treated as immutable once fetched.
type Quiz struct {
	ID           string     `json:"id" validate:"required"`
	Title        string     `json:"title"`
	Type         QuizType   `json:"type" validate:"omitempty,oneof=quiz exam practice"`
	Questions    []Question `json:"questions" validate:"unique=ID,dive"`
	TimeLimit    *int       `json:"timeLimit,omitempty"`
	AttemptLimit int        `json:"attemptLimit,omitempty"`
	TotalPoints  int        `json:"totalPoints,omitempty"`
}

// Question is a fixed-choice, single-answer question.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"question" validate:"required"`
	Options []string `json:"options" validate:"min=2,dive,required"`
	// CorrectOption is carried through from the platform but scoring is server-side only.
	CorrectOption *int   `json:"correctAnswer,omitempty"`
	Points        int    `json:"points,omitempty"`
	Competency    string `json:"competency,omitempty"`
	Level         string `json:"level,omitempty"`
}

// NormalizeIDs assigns positional identifiers to questions that arrive without one.
// The fallback is the zero-based index in decimal; when another question already
// carries that id, a numeric suffix is added until it is free.
// Duplicate explicit ids are left alone for validation to reject.
func (q *Quiz) NormalizeIDs() {
	taken := make(map[string]bool, len(q.Questions))
	for _, question := range q.Questions {
		if question.ID != "" {
			taken[question.ID] = true
		}
	}
	for i := range q.Questions {
		if q.Questions[i].ID != "" {
			continue
		}
		id := strconv.Itoa(i)
		for n := 1; taken[id]; n++ {
			id = strconv.Itoa(i) + "_" + strconv.Itoa(n)
		}
		taken[id] = true
		q.Questions[i].ID = id
	}
}

// QuestionView is a question as shown to the candidate: no correct answer.
type QuestionView struct {
	ID         string   `json:"id"`
	Prompt     string   `json:"prompt"`
	Options    []string `json:"options"`
	Points     int      `json:"points"`
	Competency string   `json:"competency,omitempty"`
	Level      string   `json:"level,omitempty"`
}

// View strips the correct answer from a question.
func (q Question) View() QuestionView {
	return QuestionView{
		ID:         q.ID,
		Prompt:     q.Prompt,
		Options:    append([]string(nil), q.Options...),
		Points:     q.Points,
		Competency: q.Competency,
		Level:      q.Level,
	}
}
