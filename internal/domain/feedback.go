package domain

import (
	"strings"
	"time"
)

type Report struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	Message    string    `json:"message"`
	MovieID    string    `json:"movieId,omitempty"`
	MovieTitle string    `json:"movieTitle,omitempty"`
	Resolved   bool      `json:"resolved"`
	CreatedAt  time.Time `json:"createdAt"`
}

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestCompleted RequestStatus = "completed"
	RequestRejected  RequestStatus = "rejected"
)

func ParseRequestStatus(raw string) (RequestStatus, bool) {
	switch RequestStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case RequestPending:
		return RequestPending, true
	case RequestCompleted:
		return RequestCompleted, true
	case RequestRejected:
		return RequestRejected, true
	default:
		return "", false
	}
}

// Request is a title a visitor asked the curators to add.
type Request struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}
