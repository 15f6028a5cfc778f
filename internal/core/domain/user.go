package domain

import "time"

type UserID string

type Role string

const (
	RoleLearner Role = "learner"
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleLearner, RoleCreator, RoleAdmin:
		return true
	}
	return false
}

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

type CreatorApplication struct {
	Status          ApplicationStatus `json:"status,omitempty"`
	AppliedAt       *time.Time        `json:"appliedAt,omitempty"`
	RejectionReason string            `json:"rejectionReason,omitempty"`
	Motivation      string            `json:"motivation,omitempty"`
	Expertise       []string          `json:"expertise,omitempty"`
	Experience      string            `json:"experience,omitempty"`
	Portfolio       string            `json:"portfolio,omitempty"`
}

// User is the authenticated identity as returned by the backend.
type User struct {
	ID                 UserID              `json:"_id"`
	Name               string              `json:"name"`
	Email              string              `json:"email"`
	Role               Role                `json:"role"`
	Bio                string              `json:"bio,omitempty"`
	Avatar             string              `json:"avatar,omitempty"`
	AccountStatus      string              `json:"accountStatus,omitempty"`
	IsBlocked          bool                `json:"isBlocked,omitempty"`
	BlockReason        string              `json:"blockReason,omitempty"`
	CreatorApplication *CreatorApplication `json:"creatorApplication,omitempty"`
	CreatedAt          *time.Time          `json:"createdAt,omitempty"`
}

// HomePath is the landing page for the user's role.
func (u *User) HomePath() string {
	if u == nil {
		return PathLearnerHome
	}
	switch u.Role {
	case RoleCreator:
		return PathCreatorHome
	case RoleAdmin:
		return PathAdminHome
	default:
		return PathLearnerHome
	}
}

// LoginRequest carries the role picked on the login form. The backend's
// answer decides the session role; this field is only a hint.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role,omitempty"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role,omitempty"`
}

type ProfileUpdate struct {
	Name   string `json:"name,omitempty"`
	Bio    string `json:"bio,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

type PasswordChange struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type CreatorApplicationRequest struct {
	Motivation string   `json:"motivation"`
	Expertise  []string `json:"expertise,omitempty"`
	Experience string   `json:"experience,omitempty"`
	Portfolio  string   `json:"portfolio,omitempty"`
}

// AuthPayload is the data of a successful login or registration.
type AuthPayload struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}
