package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by ledgers when the referenced job or bid does not exist.
var ErrNotFound = errors.New("not found")

type JobStatus string

const (
	JobStatusPending  JobStatus = "PENDING"
	JobStatusAssigned JobStatus = "ASSIGNED"
	JobStatusExpired  JobStatus = "EXPIRED"
)

func (s JobStatus) Terminal() bool {
	return s == JobStatusAssigned || s == JobStatusExpired
}

// jobSources lists, for every target status, the statuses it may be entered from.
var jobSources = map[JobStatus][]JobStatus{
	JobStatusAssigned: {JobStatusPending},
	JobStatusExpired:  {JobStatusPending},
}

func JobSources(next JobStatus) []JobStatus {
	return jobSources[next]
}

func CanTransitionJob(from, to JobStatus) bool {
	for _, s := range jobSources[to] {
		if s == from {
			return true
		}
	}
	return false
}

type Job struct {
	ID              string    `json:"id"`
	RestaurantID    string    `json:"restaurant_id,omitempty"`
	Pickup          string    `json:"pickup"`
	Dropoff         string    `json:"dropoff"`
	MenuItem        string    `json:"menu_item,omitempty"`
	Reward          float64   `json:"reward"`
	EstimatedTime   string    `json:"estimated_time,omitempty"`
	Origin          Position  `json:"origin"`
	Status          JobStatus `json:"status"`
	AssignedCourier *string   `json:"assigned_courier,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
