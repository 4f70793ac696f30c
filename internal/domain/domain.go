package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleStudent Role = "Student"
	RoleTeacher Role = "Teacher"
)

// User is a platform account. Students and teachers share these fields and differ by Role.
type User struct {
	UserID   int64
	Username string
	Role     Role
}

type Student struct {
	UserID   int64
	Username string
}

type Enrollment struct {
	EnrollmentID int64
	StudentID    int64
	CourseID     int64
	EnrolledAt   time.Time
	CompletedAt  *time.Time
}

// Active reports whether the enrollment still grants access to the course.
func (e Enrollment) Active() bool { return e.CompletedAt == nil }

type ItemKind string

const (
	ItemKindQuiz     ItemKind = "Q"
	ItemKindMaterial ItemKind = "CM"
)

// CourseItem holds the fields shared by every item of a course. Kind tells which variant it is.
type CourseItem struct {
	ItemID   int64
	CourseID int64
	Title    string
	Kind     ItemKind
	AddedAt  time.Time
}

// Gradable reports whether students can be scored on the item.
func (i CourseItem) Gradable() bool { return i.Kind == ItemKindQuiz }

type QuestionType string

const (
	QuestionTypeSingleSelect QuestionType = "SINGLE_SELECT"
	QuestionTypeMultiSelect  QuestionType = "MULTI_SELECT"
)

// Quiz is a gradable course item. QuizID equals the embedded ItemID.
type Quiz struct {
	CourseItem
	QuizID             int64
	DurationInMinutes  int
	ShowCorrectAnswers bool
	Questions          []Question
}

func (q Quiz) Duration() time.Duration {
	return time.Duration(q.DurationInMinutes) * time.Minute
}

type Question struct {
	QuestionID int64
	QuizID     int64
	Text       string
	Points     int
	Type       QuestionType
	Answers    []Answer
}

// CorrectCount returns how many candidate answers are marked correct.
func (q Question) CorrectCount() int {
	n := 0
	for _, a := range q.Answers {
		if a.Correct {
			n++
		}
	}
	return n
}

// Answer is a candidate answer. QuizID is the quiz owning the answer's question.
type Answer struct {
	AnswerID   int64
	QuestionID int64
	QuizID     int64
	Text       string
	Correct    bool
}

type SubmissionState string

const (
	SubmissionOpen   SubmissionState = "OPEN"
	SubmissionClosed SubmissionState = "CLOSED"
)

// Submission is one student's timed attempt at a quiz.
type Submission struct {
	SubmissionID string
	StudentID    int64
	QuizID       int64
	StartTime    time.Time
	EndTime      time.Time
	Submitted    bool
	SubmitTime   *time.Time
	Score        decimal.Decimal
	Answers      []Answer
}

func (s Submission) State() SubmissionState {
	if s.Submitted {
		return SubmissionClosed
	}
	return SubmissionOpen
}

// Expired reports whether now is past the end of the submission window. The end time itself is
// still inside the window.
func (s Submission) Expired(now time.Time) bool {
	return now.After(s.EndTime)
}

// Remaining returns the time left before the deadline, zero once closed or expired.
func (s Submission) Remaining(now time.Time) time.Duration {
	if s.Submitted || s.Expired(now) {
		return 0
	}
	return s.EndTime.Sub(now)
}

// Leaderboard is the ranking of closed submissions within a quiz.
// The list is sorted by score in descending order.
type Leaderboard struct {
	QuizID  int64
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	StudentID int64
	Score     float64
}
