package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/emstudy/internal/domain"
)

func TestSubmission_Remaining(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := domain.Submission{StartTime: start, EndTime: start.Add(30 * time.Minute)}

	assert.Equal(t, 30*time.Minute, s.Remaining(start))
	assert.Equal(t, time.Duration(0), s.Remaining(s.EndTime), "window ends exactly at end time")
	assert.False(t, s.Expired(s.EndTime))
	assert.True(t, s.Expired(s.EndTime.Add(time.Second)))

	s.Submitted = true
	assert.Equal(t, time.Duration(0), s.Remaining(start))
	assert.Equal(t, domain.SubmissionClosed, s.State())
}

func TestCourseItem_Gradable(t *testing.T) {
	assert.True(t, domain.CourseItem{Kind: domain.ItemKindQuiz}.Gradable())
	assert.False(t, domain.CourseItem{Kind: domain.ItemKindMaterial}.Gradable())
}
