// Package model defines the data structures shared by the directory, the
// services and the HTTP layer.
package model

// User is the profile a caller presents when creating, joining or writing to
// a group. Groups keep a copy of it: a member snapshot never changes after
// the join, even if the same user later sends a different name.
type User struct {
	ID        int64    `json:"user_id"`
	Name      string   `json:"name"`
	Age       int      `json:"age"`
	Gender    string   `json:"gender"`
	Interests []string `json:"interests"`
	Bio       string   `json:"bio,omitempty"`
}

// Clone returns a copy that shares no memory with u.
func (u User) Clone() User {
	if u.Interests != nil {
		u.Interests = append([]string(nil), u.Interests...)
	}
	return u
}
