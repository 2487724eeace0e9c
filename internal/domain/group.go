package domain

import "time"

type ChatGroup struct {
	ID          int64     `json:"groupId"`
	Name        string    `json:"groupName"`
	Description string    `json:"description,omitempty"`
	OwnerID     int64     `json:"ownerId"`
	MemberIDs   []int64   `json:"memberIds"`
	MemberCount int       `json:"memberCount"`
	IsPublic    bool      `json:"isPublic"`
	CreatedAt   time.Time `json:"createdTime"`
	UpdatedAt   time.Time `json:"updatedTime"`
}

// GroupMembership es la relacion grupo -> miembros usada para el fan-out.
type GroupMembership struct {
	GroupID   int64
	MemberIDs []int64
}
