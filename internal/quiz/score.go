package quiz

import (
	"errors"
	"fmt"
	"math"

	"birthdaysite/internal/content/model"
)

// Unanswered marks a question the visitor skipped.
const Unanswered = -1

var ErrInvalidAnswers = errors.New("invalid quiz answers")

// Result is one scored attempt.
type Result struct {
	Score      int `json:"score"`
	Total      int `json:"totalQuestions"`
	Percentage int `json:"percentage"`
}

// Score counts the answers that match the question's correct option. Missing
// trailing answers count as unanswered.
func Score(questions []model.Question, answers []int) (Result, error) {
	if len(answers) > len(questions) {
		return Result{}, fmt.Errorf("%w: %d answers for %d questions", ErrInvalidAnswers, len(answers), len(questions))
	}
	res := Result{Total: len(questions)}
	for i, a := range answers {
		if a == Unanswered {
			continue
		}
		if a < 0 || a >= len(questions[i].Options) {
			return Result{}, fmt.Errorf("%w: answer %d to question %d is not an option", ErrInvalidAnswers, a, i)
		}
		if a == questions[i].Correct {
			res.Score++
		}
	}
	res.Percentage = percentage(res.Score, res.Total)
	return res, nil
}

// percentage rounds half up, as the page displays it.
func percentage(score, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Floor(float64(score)*100/float64(total) + 0.5))
}
