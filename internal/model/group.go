package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// AgeRange is an inclusive [Min, Max] age bound. On the wire it is the
// two-element array [min, max].
type AgeRange struct {
	Min int
	Max int
}

// Valid reports whether Min <= Max and neither bound is negative.
func (r AgeRange) Valid() bool {
	return r.Min >= 0 && r.Min <= r.Max
}

// Contains reports whether age lies within the inclusive range.
func (r AgeRange) Contains(age int) bool {
	return r.Min <= age && age <= r.Max
}

func (r AgeRange) String() string {
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

func (r AgeRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{r.Min, r.Max})
}

func (r *AgeRange) UnmarshalJSON(b []byte) error {
	var pair []int
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("age_range must be [min, max]: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("age_range must have exactly 2 elements, got %d", len(pair))
	}
	r.Min, r.Max = pair[0], pair[1]
	return nil
}

// Group is a time-boxed, age-gated gathering at a location.
//
// Invariants, held by the directory at all times:
//   - Members has no duplicate user ids
//   - Members[0] is the host
//   - AgeRange.Min <= AgeRange.Max
//   - every ChatHistory sender was a member when the message was appended
type Group struct {
	ID          uuid.UUID     `json:"group_id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	AgeRange    AgeRange      `json:"age_range"`
	Date        Date          `json:"date"`
	HostID      int64         `json:"host_id"`
	Members     []User        `json:"members"`
	ChatHistory []ChatMessage `json:"chat_history"`
}

// HasMember reports whether userID appears among the members.
func (g *Group) HasMember(userID int64) bool {
	for _, m := range g.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of g. Snapshots handed to readers are clones, so
// later joins, sends or deletions never show through them.
func (g *Group) Clone() Group {
	c := *g
	c.Members = make([]User, len(g.Members))
	for i, m := range g.Members {
		c.Members[i] = m.Clone()
	}
	c.ChatHistory = append(make([]ChatMessage, 0, len(g.ChatHistory)), g.ChatHistory...)
	return c
}

// NearbyGroup is a group annotated with the location that holds it, as
// returned by proximity queries.
type NearbyGroup struct {
	Group
	LocationID string `json:"location_id"`
}
