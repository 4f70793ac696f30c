// Package score computes the percentage score of a quiz submission.
package score

import (
	stderrors "errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/victornm/emstudy/internal/domain"
)

// Places is the number of decimal places a percentage is rounded to.
const Places = 2

var hundred = decimal.NewFromInt(100)

// ErrQuestionNotInQuiz is returned by Compute when a selected answer belongs to a question the quiz
// definition does not contain.
var ErrQuestionNotInQuiz = stderrors.New("question not in quiz")

// Result is the outcome of scoring one submission.
type Result struct {
	// Earned is the sum of the credit awarded per question.
	Earned decimal.Decimal
	// Total is the sum of the points of every question in the quiz.
	Total decimal.Decimal
	// Percent is Earned over Total in [0, 100], rounded to Places. Zero when Total is zero.
	Percent decimal.Decimal
}

// Compute scores the selected answers against the quiz definition.
//
// A single-select question awards its full points once when a correct answer is selected, even if
// its definition flags more than one answer as correct. A multi-select question awards
// points/correctCount for every correct answer selected. Incorrect selections are worth nothing
// and never subtract.
func Compute(q domain.Quiz, selected []domain.Answer) (Result, error) {
	var (
		total     int64
		questions = make(map[int64]domain.Question, len(q.Questions))
	)
	for _, qs := range q.Questions {
		total += int64(qs.Points)
		questions[qs.QuestionID] = qs
	}

	picked := make(map[int64]int)
	for _, a := range selected {
		if _, ok := questions[a.QuestionID]; !ok {
			return Result{}, fmt.Errorf("%w: quiz=%d question=%d answer=%d", ErrQuestionNotInQuiz, q.QuizID, a.QuestionID, a.AnswerID)
		}
		if a.Correct {
			picked[a.QuestionID]++
		}
	}

	earned := decimal.Zero
	for id, n := range picked {
		earned = earned.Add(Credit(questions[id], n))
	}

	r := Result{
		Earned:  earned,
		Total:   decimal.NewFromInt(total),
		Percent: decimal.Zero,
	}
	if total <= 0 {
		return r, nil
	}

	r.Percent = earned.Mul(hundred).Div(r.Total).Round(Places)
	return r, nil
}

// Credit returns the points a question awards when correctPicked of its correct answers are selected.
func Credit(q domain.Question, correctPicked int) decimal.Decimal {
	if correctPicked <= 0 || q.Points <= 0 {
		return decimal.Zero
	}

	points := decimal.NewFromInt(int64(q.Points))

	switch q.Type {
	case domain.QuestionTypeMultiSelect:
		correct := q.CorrectCount()
		if correct == 0 {
			return decimal.Zero
		}
		if correctPicked > correct {
			correctPicked = correct
		}
		return points.Mul(decimal.NewFromInt(int64(correctPicked))).Div(decimal.NewFromInt(int64(correct)))
	default:
		return points
	}
}
