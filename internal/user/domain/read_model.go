package domain

import "time"

// BanView is the read-side projection of BanStatus.
type BanView struct {
	Reason   string     `json:"reason"`
	Type     BanType    `json:"type"`
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
	BannedAt time.Time  `json:"banned_at"`
	// Active is whether the ban was in force when the view was built.
	Active bool `json:"active"`
}

// UserReadModel is the projection returned by queries and commands.
type UserReadModel struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	Username    string      `json:"username"`
	Role        string      `json:"role"`
	EmailStatus EmailStatus `json:"email_status"`
	Ban         *BanView    `json:"ban,omitempty"`
	Badges      []string    `json:"badges"`
	JoinedAt    time.Time   `json:"joined_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ReadModel projects u as of now.
func (u *User) ReadModel(now time.Time) UserReadModel {
	rm := UserReadModel{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		Role:        string(u.Role),
		EmailStatus: u.EmailStatus,
		Badges:      append([]string{}, u.Badges...),
		JoinedAt:    u.JoinedAt,
		UpdatedAt:   u.UpdatedAt,
	}
	if u.Ban != nil {
		bv := &BanView{Reason: u.Ban.Reason, Type: u.Ban.Type, BannedAt: u.Ban.BannedAt, Active: u.Ban.Active(now)}
		if u.Ban.Type == BanDefinite {
			from, to := u.Ban.From, u.Ban.To
			bv.From, bv.To = &from, &to
		}
		rm.Ban = bv
	}
	return rm
}

// PageInfo describes a cursor page.
type PageInfo struct {
	HasNextPage bool   `json:"has_next_page"`
	EndCursor   string `json:"end_cursor,omitempty"`
}

// UserConnection is one page of users.
type UserConnection struct {
	Nodes    []UserReadModel `json:"nodes"`
	PageInfo PageInfo        `json:"page_info"`
}
