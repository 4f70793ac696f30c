package domain

const (
	EventNameSubmissionStarted   = "submission.started"
	EventNameSubmissionSubmitted = "submission.submitted"
	EventNameLeaderboardUpdated  = "leaderboard.updated"
)

type EventSubmissionStarted struct {
	Submission Submission
}

func (EventSubmissionStarted) Name() string { return EventNameSubmissionStarted }

// EventSubmissionSubmitted is published once a submission is closed and scored.
type EventSubmissionSubmitted struct {
	Submission Submission
	CourseID   int64
}

func (EventSubmissionSubmitted) Name() string { return EventNameSubmissionSubmitted }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
