package group

import "time"

type InCreateGroup struct {
	Name         string `json:"name" validate:"required,max=64"`
	JoinPassword string `json:"joinPassword" validate:"max=72"`
}

type OutCreateGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type OutGetGroup struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Avatar      string    `json:"avatar"`
	OwnerID     string    `json:"ownerId"`
	HasPassword bool      `json:"hasPassword"`
	CreatedAt   time.Time `json:"createdAt"`
	MemberCount int       `json:"memberCount"`
}

type InTarget struct {
	GroupName    string `json:"groupName" validate:"required"`
	TargetUserID string `json:"targetUserId" validate:"required"`
}

type InGroupName struct {
	GroupName string `json:"groupName" validate:"required"`
}

type InUpdateInfo struct {
	GroupName string `json:"groupName" validate:"required"`
	NewName   string `json:"newName" validate:"max=64"`
	NewAvatar string `json:"newAvatar" validate:"omitempty,url"`
}

type InUpdatePassword struct {
	GroupName   string `json:"groupName" validate:"required"`
	NewPassword string `json:"newPassword" validate:"max=72"`
}

type InCreateMsg struct {
	Message string `json:"message" validate:"required"`
}
