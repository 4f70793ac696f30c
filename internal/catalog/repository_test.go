package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/victornm/emstudy/internal/domain"
	"github.com/victornm/emstudy/internal/errors"
	"github.com/victornm/emstudy/internal/event"
)

func TestRepository_ResolveStudent(t *testing.T) {
	r := makeRepository(t)
	ctx := context.Background()

	s, err := r.ResolveStudent(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, &domain.Student{UserID: 42, Username: "alice"}, s)

	_, err = r.ResolveStudent(ctx, 5)
	require.True(t, errors.Is(err, errors.CodeNotFound), "a teacher is not a student")

	_, err = r.ResolveStudent(ctx, 404)
	require.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestRepository_ResolveQuiz(t *testing.T) {
	r := makeRepository(t)
	ctx := context.Background()

	q, err := r.ResolveQuiz(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, int64(7), q.QuizID)
	assert.Equal(t, int64(3), q.CourseID)
	assert.Equal(t, domain.ItemKindQuiz, q.Kind)
	assert.Equal(t, 30, q.DurationInMinutes)
	assert.Equal(t, 30*time.Minute, q.Duration())
	require.Len(t, q.Questions, 2)
	assert.Equal(t, domain.QuestionTypeSingleSelect, q.Questions[0].Type)
	assert.Equal(t, domain.QuestionTypeMultiSelect, q.Questions[1].Type)
	assert.Equal(t, 2, q.Questions[1].CorrectCount())
	for _, qs := range q.Questions {
		for _, a := range qs.Answers {
			assert.Equal(t, int64(7), a.QuizID)
		}
	}

	_, err = r.ResolveQuiz(ctx, 8)
	require.True(t, errors.Is(err, errors.CodeNotFound), "course material is not a quiz")
}

func TestRepository_ResolveAnswersByIDs(t *testing.T) {
	r := makeRepository(t)
	ctx := context.Background()

	answers, err := r.ResolveAnswersByIDs(ctx, []int64{21, 11, 91, 404})
	require.NoError(t, err)

	require.Equal(t, []domain.Answer{
		{AnswerID: 11, QuestionID: 1, QuizID: 7, Text: "4", Correct: true},
		{AnswerID: 21, QuestionID: 2, QuizID: 7, Text: "red", Correct: true},
		{AnswerID: 91, QuestionID: 9, QuizID: 10, Text: "other", Correct: true},
	}, answers)

	answers, err = r.ResolveAnswersByIDs(ctx, []int64{11, 11})
	require.NoError(t, err)
	require.Len(t, answers, 1, "duplicates collapse so callers can detect them by length")
}

func TestRepository_IsActivelyEnrolled(t *testing.T) {
	r := makeRepository(t)
	ctx := context.Background()

	tests := map[string]struct {
		student, course int64
		want            bool
	}{
		"active enrollment":    {student: 42, course: 3, want: true},
		"completed enrollment": {student: 43, course: 3, want: false},
		"no enrollment":        {student: 42, course: 4, want: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := r.IsActivelyEnrolled(ctx, tt.student, tt.course)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRepository_IsCourseTeacher(t *testing.T) {
	r := makeRepository(t)
	ctx := context.Background()

	ok, err := r.IsCourseTeacher(ctx, 5, 3)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.IsCourseTeacher(ctx, 42, 3)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRepository_MarkCompleted(t *testing.T) {
	r := makeRepository(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, r.MarkCompleted(ctx, 42, 3, 7, at))
	require.NoError(t, r.MarkCompleted(ctx, 42, 3, 7, at.Add(time.Hour)), "marking twice is a no-op")

	ids, err := r.CompletedItems(ctx, 42, 3)
	require.NoError(t, err)
	require.Equal(t, []int64{7}, ids)
}

func TestRepository_CompleteOnSubmit(t *testing.T) {
	r := makeRepository(t)
	eb := event.NewBus()
	r.CompleteOnSubmit(eb)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	eb.Publish(context.Background(), domain.EventSubmissionSubmitted{
		Submission: domain.Submission{StudentID: 42, QuizID: 7, Submitted: true, SubmitTime: &at},
		CourseID:   3,
	})
	eb.Stop()

	ids, err := r.CompletedItems(context.Background(), 42, 3)
	require.NoError(t, err)
	require.Equal(t, []int64{7}, ids)
}

func makeRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "catalog.db")), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	r := NewRepository(Config{DB: db})
	require.NoError(t, r.Migrate(context.Background()))

	seed(t, db)
	return r
}

// seed creates course 3 taught by user 5 with quiz 7 and material 8, and course 4 with quiz 10.
// Student 42 is actively enrolled in course 3, student 43 completed it.
func seed(t *testing.T, db *gorm.DB) {
	t.Helper()

	completed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []any{
		&[]userModel{
			{UserID: 5, Username: "teacher", Role: string(domain.RoleTeacher)},
			{UserID: 42, Username: "alice", Role: string(domain.RoleStudent)},
			{UserID: 43, Username: "bob", Role: string(domain.RoleStudent)},
		},
		&[]courseModel{
			{CourseID: 3, Title: "Go", TeacherID: 5, JoinCode: "GO-123"},
			{CourseID: 4, Title: "SQL", TeacherID: 6, JoinCode: "SQL-456"},
		},
		&[]courseItemModel{
			{ItemID: 7, CourseID: 3, Title: "Quiz 1", ItemType: string(domain.ItemKindQuiz)},
			{ItemID: 8, CourseID: 3, Title: "Slides", ItemType: string(domain.ItemKindMaterial)},
			{ItemID: 10, CourseID: 4, Title: "Quiz 2", ItemType: string(domain.ItemKindQuiz)},
		},
		&[]quizModel{
			{ItemID: 7, DurationInMinutes: 30},
			{ItemID: 8, DurationInMinutes: 0},
			{ItemID: 10, DurationInMinutes: 10},
		},
		&[]questionModel{
			{QuestionID: 1, QuizID: 7, QuestionText: "2+2?", Points: 10, QuestionType: string(domain.QuestionTypeSingleSelect)},
			{QuestionID: 2, QuizID: 7, QuestionText: "Primary colors?", Points: 10, QuestionType: string(domain.QuestionTypeMultiSelect)},
			{QuestionID: 9, QuizID: 10, QuestionText: "Other", Points: 5, QuestionType: string(domain.QuestionTypeSingleSelect)},
		},
		&[]answerModel{
			{AnswerID: 11, QuestionID: 1, AnswerText: "4", Correct: true},
			{AnswerID: 12, QuestionID: 1, AnswerText: "5"},
			{AnswerID: 21, QuestionID: 2, AnswerText: "red", Correct: true},
			{AnswerID: 22, QuestionID: 2, AnswerText: "blue", Correct: true},
			{AnswerID: 23, QuestionID: 2, AnswerText: "green"},
			{AnswerID: 91, QuestionID: 9, AnswerText: "other", Correct: true},
		},
		&[]enrollmentModel{
			{EnrollmentID: 1, StudentID: 42, CourseID: 3},
			{EnrollmentID: 2, StudentID: 43, CourseID: 3, CompletionDate: &completed},
		},
	}

	for _, r := range rows {
		require.NoError(t, db.Omit(clause.Associations).Create(r).Error)
	}
}
