package domain

import "time"

// ProgressRecord is the locally saved playback position of one lesson.
type ProgressRecord struct {
	CurrentTime float64   `json:"currentTime"`
	Duration    float64   `json:"duration"`
	LastWatched time.Time `json:"lastWatched"`
}

// CourseProgressRecords maps lesson ids to their saved positions.
type CourseProgressRecords map[LessonID]ProgressRecord

func (r CourseProgressRecords) Clone() CourseProgressRecords {
	c := make(CourseProgressRecords, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

type LessonState int

const (
	LessonNotStarted LessonState = iota
	LessonInProgress
	LessonCompleted
)

func (s LessonState) String() string {
	switch s {
	case LessonInProgress:
		return "in progress"
	case LessonCompleted:
		return "completed"
	default:
		return "not started"
	}
}

const progressKeyPrefix = "videoProgress_"

// ProgressKey is the storage key holding a course's progress records.
func ProgressKey(id CourseID) string {
	return progressKeyPrefix + string(id)
}

// ProgressKeyPrefix is shared by all progress keys.
func ProgressKeyPrefix() string {
	return progressKeyPrefix
}

// CourseIDFromProgressKey reverses ProgressKey.
func CourseIDFromProgressKey(key string) (CourseID, bool) {
	if len(key) <= len(progressKeyPrefix) || key[:len(progressKeyPrefix)] != progressKeyPrefix {
		return "", false
	}
	return CourseID(key[len(progressKeyPrefix):]), true
}

// CredentialKey names both the cookie and the durable key holding the token.
const CredentialKey = "token"
