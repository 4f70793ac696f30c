package catalog

import (
	"time"

	"github.com/victornm/emstudy/internal/domain"
)

type userModel struct {
	UserID   int64  `gorm:"column:user_id;primaryKey"`
	Username string `gorm:"column:username;not null"`
	Role     string `gorm:"column:role;not null"`
}

func (userModel) TableName() string { return "users" }

type courseModel struct {
	CourseID  int64  `gorm:"column:course_id;primaryKey"`
	Title     string `gorm:"column:title;not null"`
	TeacherID int64  `gorm:"column:teacher_id;not null;index"`
	JoinCode  string `gorm:"column:join_code;uniqueIndex"`
}

func (courseModel) TableName() string { return "courses" }

type courseItemModel struct {
	ItemID   int64     `gorm:"column:item_id;primaryKey"`
	CourseID int64     `gorm:"column:course_id;not null;index"`
	Title    string    `gorm:"column:title"`
	ItemType string    `gorm:"column:item_type;not null"`
	AddDate  time.Time `gorm:"column:add_date"`
}

func (courseItemModel) TableName() string { return "course_items" }

type quizModel struct {
	ItemID             int64           `gorm:"column:item_id;primaryKey"`
	DurationInMinutes  int             `gorm:"column:duration_in_minutes;not null"`
	ShowCorrectAnswers bool            `gorm:"column:show_correct_answers;not null"`
	Item               courseItemModel `gorm:"foreignKey:ItemID;references:ItemID"`
	Questions          []questionModel `gorm:"foreignKey:QuizID;references:ItemID"`
}

func (quizModel) TableName() string { return "quizzes" }

type questionModel struct {
	QuestionID   int64         `gorm:"column:question_id;primaryKey"`
	QuizID       int64         `gorm:"column:quiz_id;not null;index"`
	QuestionText string        `gorm:"column:question_text"`
	Points       int           `gorm:"column:points;not null"`
	QuestionType string        `gorm:"column:question_type;not null"`
	Answers      []answerModel `gorm:"foreignKey:QuestionID;references:QuestionID"`
}

func (questionModel) TableName() string { return "questions" }

type answerModel struct {
	AnswerID   int64  `gorm:"column:answer_id;primaryKey"`
	QuestionID int64  `gorm:"column:question_id;not null;index"`
	AnswerText string `gorm:"column:answer_text"`
	Correct    bool   `gorm:"column:correct;not null"`
}

func (answerModel) TableName() string { return "answers" }

type enrollmentModel struct {
	EnrollmentID   int64      `gorm:"column:enrollment_id;primaryKey"`
	StudentID      int64      `gorm:"column:student_id;not null;index:idx_enrollments_student_course"`
	CourseID       int64      `gorm:"column:course_id;not null;index:idx_enrollments_student_course"`
	EnrollmentDate time.Time  `gorm:"column:enrollment_date"`
	CompletionDate *time.Time `gorm:"column:completion_date"`
}

func (enrollmentModel) TableName() string { return "enrollments" }

func (m enrollmentModel) toDomain() domain.Enrollment {
	return domain.Enrollment{
		EnrollmentID: m.EnrollmentID,
		StudentID:    m.StudentID,
		CourseID:     m.CourseID,
		EnrolledAt:   m.EnrollmentDate,
		CompletedAt:  m.CompletionDate,
	}
}

type completedItemModel struct {
	CompletedCourseItemID int64     `gorm:"column:completed_course_item_id;primaryKey"`
	StudentID             int64     `gorm:"column:student_id;not null;uniqueIndex:idx_completed_student_item"`
	CourseID              int64     `gorm:"column:course_id;not null"`
	CourseItemID          int64     `gorm:"column:course_item_id;not null;uniqueIndex:idx_completed_student_item"`
	CompletedAt           time.Time `gorm:"column:completed_at"`
}

func (completedItemModel) TableName() string { return "completed_course_items" }

// answerRow is an answer joined with the quiz of its question.
type answerRow struct {
	AnswerID   int64
	QuestionID int64
	QuizID     int64
	AnswerText string
	Correct    bool
}

func (m quizModel) toDomain() domain.Quiz {
	q := domain.Quiz{
		CourseItem: domain.CourseItem{
			ItemID:   m.Item.ItemID,
			CourseID: m.Item.CourseID,
			Title:    m.Item.Title,
			Kind:     domain.ItemKind(m.Item.ItemType),
			AddedAt:  m.Item.AddDate,
		},
		QuizID:             m.ItemID,
		DurationInMinutes:  m.DurationInMinutes,
		ShowCorrectAnswers: m.ShowCorrectAnswers,
		Questions:          make([]domain.Question, 0, len(m.Questions)),
	}

	for _, qm := range m.Questions {
		qs := domain.Question{
			QuestionID: qm.QuestionID,
			QuizID:     qm.QuizID,
			Text:       qm.QuestionText,
			Points:     qm.Points,
			Type:       domain.QuestionType(qm.QuestionType),
			Answers:    make([]domain.Answer, 0, len(qm.Answers)),
		}
		for _, am := range qm.Answers {
			qs.Answers = append(qs.Answers, domain.Answer{
				AnswerID:   am.AnswerID,
				QuestionID: am.QuestionID,
				QuizID:     qm.QuizID,
				Text:       am.AnswerText,
				Correct:    am.Correct,
			})
		}
		q.Questions = append(q.Questions, qs)
	}

	return q
}
