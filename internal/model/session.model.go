package model

import "time"

// Role scopes what a session may do. It is stored explicitly on the
// session record and checked by the authorization guards, never
// inferred from which login path was used.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleEmployee Role = "employee"
)

// Session is the server-side state behind an opaque cookie identifier.
type Session struct {
	ID        string    `json:"id"`
	SubjectID int64     `json:"subject_id"`
	Role      Role      `json:"role"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity is the authenticated principal returned by /auth/me.
type Identity struct {
	SubjectID int64  `json:"subject_id"`
	Role      Role   `json:"role"`
	Username  string `json:"username"`
}
