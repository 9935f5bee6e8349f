package model

import "time"

// Profile holds one set of remote API credentials
type Profile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Sess     string `json:"sess"`
	Cookie   string `json:"cookie"`
	IsActive bool   `json:"isActive"`

	CreatedAt time.Time `json:"createdAt"`
}

// ProfileRequest is used to create or replace a profile
type ProfileRequest struct {
	Name   string `json:"name" validate:"required,min=1,max=64"`
	Sess   string `json:"sess" validate:"required,max=4096"`
	Cookie string `json:"cookie" validate:"required,max=8192"`
}

// ProfileListResponse lists a user's profiles in creation order
type ProfileListResponse struct {
	Profiles []Profile `json:"profiles"`
}
