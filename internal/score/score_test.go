package score_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/emstudy/internal/domain"
	"github.com/victornm/emstudy/internal/score"
)

// quiz 7: q1 single-select worth 10 (a11 correct), q2 multi-select worth 10 (a21, a22 correct).
func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		QuizID: 7,
		Questions: []domain.Question{
			{
				QuestionID: 1, QuizID: 7, Points: 10, Type: domain.QuestionTypeSingleSelect,
				Answers: []domain.Answer{
					{AnswerID: 11, QuestionID: 1, QuizID: 7, Correct: true},
					{AnswerID: 12, QuestionID: 1, QuizID: 7},
				},
			},
			{
				QuestionID: 2, QuizID: 7, Points: 10, Type: domain.QuestionTypeMultiSelect,
				Answers: []domain.Answer{
					{AnswerID: 21, QuestionID: 2, QuizID: 7, Correct: true},
					{AnswerID: 22, QuestionID: 2, QuizID: 7, Correct: true},
					{AnswerID: 23, QuestionID: 2, QuizID: 7},
				},
			},
		},
	}
}

func pick(q domain.Quiz, ids ...int64) []domain.Answer {
	var out []domain.Answer
	for _, qs := range q.Questions {
		for _, a := range qs.Answers {
			for _, id := range ids {
				if a.AnswerID == id {
					out = append(out, a)
				}
			}
		}
	}
	return out
}

func TestCompute(t *testing.T) {
	tests := map[string]struct {
		quiz     func() domain.Quiz
		selected []int64
		want     string
	}{
		"single-select correct plus one of two multi-select correct yields 75": {
			quiz:     sampleQuiz,
			selected: []int64{11, 21},
			want:     "75",
		},
		"every correct answer yields 100": {
			quiz:     sampleQuiz,
			selected: []int64{11, 21, 22},
			want:     "100",
		},
		"incorrect selections are worth nothing and never subtract": {
			quiz:     sampleQuiz,
			selected: []int64{12, 23, 21},
			want:     "25",
		},
		"only incorrect selections yield 0": {
			quiz:     sampleQuiz,
			selected: []int64{12, 23},
			want:     "0",
		},
		"quiz whose questions are all worth zero points yields 0": {
			quiz: func() domain.Quiz {
				q := sampleQuiz()
				for i := range q.Questions {
					q.Questions[i].Points = 0
				}
				return q
			},
			selected: []int64{11, 21, 22},
			want:     "0",
		},
		"quiz without questions yields 0": {
			quiz:     func() domain.Quiz { return domain.Quiz{QuizID: 7} },
			selected: nil,
			want:     "0",
		},
		"thirds are rounded to two places": {
			quiz: func() domain.Quiz {
				return domain.Quiz{
					QuizID: 9,
					Questions: []domain.Question{{
						QuestionID: 5, QuizID: 9, Points: 3, Type: domain.QuestionTypeMultiSelect,
						Answers: []domain.Answer{
							{AnswerID: 51, QuestionID: 5, QuizID: 9, Correct: true},
							{AnswerID: 52, QuestionID: 5, QuizID: 9, Correct: true},
							{AnswerID: 53, QuestionID: 5, QuizID: 9, Correct: true},
						},
					}},
				}
			},
			selected: []int64{51},
			want:     "33.33",
		},
		"single-select flagging two correct answers awards its points once": {
			quiz: func() domain.Quiz {
				q := sampleQuiz()
				q.Questions[0].Answers[1].Correct = true
				return q
			},
			selected: []int64{11, 12},
			want:     "50",
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			q := tt.quiz()
			got, err := score.Compute(q, pick(q, tt.selected...))
			require.NoError(t, err)

			want := decimal.RequireFromString(tt.want)
			assert.True(t, want.Equal(got.Percent), "want %s, got %s", want, got.Percent)
			assert.True(t, got.Percent.GreaterThanOrEqual(decimal.Zero))
			assert.True(t, got.Percent.LessThanOrEqual(decimal.NewFromInt(100)))
		})
	}
}

func TestCompute_PointsBreakdown(t *testing.T) {
	q := sampleQuiz()

	got, err := score.Compute(q, pick(q, 11, 21))
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(15).Equal(got.Earned), "got %s", got.Earned)
	assert.True(t, decimal.NewFromInt(20).Equal(got.Total), "got %s", got.Total)
}

func TestCredit(t *testing.T) {
	multi := sampleQuiz().Questions[1]
	single := sampleQuiz().Questions[0]

	assert.True(t, decimal.NewFromInt(5).Equal(score.Credit(multi, 1)))
	assert.True(t, decimal.NewFromInt(10).Equal(score.Credit(multi, 2)))
	assert.True(t, decimal.NewFromInt(10).Equal(score.Credit(multi, 3)), "credit is capped at the question's points")
	assert.True(t, decimal.NewFromInt(10).Equal(score.Credit(single, 1)))
	assert.True(t, decimal.NewFromInt(10).Equal(score.Credit(single, 2)), "single-select awards its points once")
	assert.True(t, decimal.Zero.Equal(score.Credit(single, 0)))
}

func TestCompute_AnswerOutsideQuiz(t *testing.T) {
	full := sampleQuiz()
	selected := pick(full, 11, 21, 22)

	partial := sampleQuiz()
	partial.Questions = partial.Questions[:1]

	_, err := score.Compute(partial, selected)
	require.ErrorIs(t, err, score.ErrQuestionNotInQuiz)
}
