// Package catalog resolves the course data a submission depends on: students, quizzes with their
// questions and answers, enrollments and completed course items.
package catalog

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/victornm/emstudy/internal/domain"
	"github.com/victornm/emstudy/internal/errors"
	"github.com/victornm/emstudy/internal/event"
)

type Config struct {
	DB *gorm.DB
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(c Config) *Repository {
	return &Repository{
		db: c.DB,
	}
}

// Migrate creates the catalog tables when they are missing.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(
		&userModel{},
		&courseModel{},
		&courseItemModel{},
		&quizModel{},
		&questionModel{},
		&answerModel{},
		&enrollmentModel{},
		&completedItemModel{},
	)
}

// ResolveStudent returns the student with the given user ID. Teachers are not students.
func (r *Repository) ResolveStudent(ctx context.Context, id int64) (*domain.Student, error) {
	var m userModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND role = ?", id, string(domain.RoleStudent)).
		First(&m).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("student not found: id=%d", id))
	}
	if err != nil {
		return nil, fmt.Errorf("resolve student: %w", err)
	}

	return &domain.Student{
		UserID:   m.UserID,
		Username: m.Username,
	}, nil
}

// ResolveQuiz returns the quiz with its questions and their candidate answers.
func (r *Repository) ResolveQuiz(ctx context.Context, id int64) (*domain.Quiz, error) {
	var m quizModel
	err := r.db.WithContext(ctx).
		Preload("Item").
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("question_id") }).
		Preload("Questions.Answers", func(db *gorm.DB) *gorm.DB { return db.Order("answer_id") }).
		Where("item_id = ?", id).
		First(&m).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("quiz not found: id=%d", id))
	}
	if err != nil {
		return nil, fmt.Errorf("resolve quiz: %w", err)
	}

	q := m.toDomain()
	if !q.Gradable() {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("quiz not found: id=%d", id))
	}

	return &q, nil
}

// ResolveAnswersByIDs returns the distinct answers matching ids. Unknown ids are skipped, so callers
// detect misses by comparing lengths.
func (r *Repository) ResolveAnswersByIDs(ctx context.Context, ids []int64) ([]domain.Answer, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []answerRow
	err := r.db.WithContext(ctx).
		Table("answers AS a").
		Select("a.answer_id, a.question_id, q.quiz_id, a.answer_text, a.correct").
		Joins("JOIN questions AS q ON q.question_id = a.question_id").
		Where("a.answer_id IN ?", ids).
		Order("a.answer_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("resolve answers: %w", err)
	}

	answers := make([]domain.Answer, 0, len(rows))
	for _, row := range rows {
		answers = append(answers, domain.Answer{
			AnswerID:   row.AnswerID,
			QuestionID: row.QuestionID,
			QuizID:     row.QuizID,
			Text:       row.AnswerText,
			Correct:    row.Correct,
		})
	}

	return answers, nil
}

// IsActivelyEnrolled reports whether the student has an enrollment in the course that is not completed.
func (r *Repository) IsActivelyEnrolled(ctx context.Context, studentID, courseID int64) (bool, error) {
	var rows []enrollmentModel
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		Find(&rows).Error
	if err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}

	for _, m := range rows {
		if m.toDomain().Active() {
			return true, nil
		}
	}

	return false, nil
}

// IsCourseTeacher reports whether the user teaches the course.
func (r *Repository) IsCourseTeacher(ctx context.Context, userID, courseID int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&courseModel{}).
		Where("course_id = ? AND teacher_id = ?", courseID, userID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check course teacher: %w", err)
	}

	return n > 0, nil
}

// MarkCompleted records that the student completed the course item. Repeated calls keep the first record.
func (r *Repository) MarkCompleted(ctx context.Context, studentID, courseID, itemID int64, at time.Time) error {
	m := completedItemModel{
		StudentID:    studentID,
		CourseID:     courseID,
		CourseItemID: itemID,
		CompletedAt:  at,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "course_item_id"}},
			DoNothing: true,
		}).
		Create(&m).Error
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	return nil
}

// CompletedItems lists the ids of the items the student completed in the course.
func (r *Repository) CompletedItems(ctx context.Context, studentID, courseID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&completedItemModel{}).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		Order("course_item_id").
		Pluck("course_item_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list completed items: %w", err)
	}

	return ids, nil
}

// CompleteOnSubmit marks the quiz of every closed submission as completed by its student.
func (r *Repository) CompleteOnSubmit(eb *event.Bus) {
	eb.Subscribe(domain.EventNameSubmissionSubmitted, func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventSubmissionSubmitted)
		sub := ev.Submission

		at := sub.StartTime
		if sub.SubmitTime != nil {
			at = *sub.SubmitTime
		}

		return r.MarkCompleted(ctx, sub.StudentID, ev.CourseID, sub.QuizID, at)
	})
}
