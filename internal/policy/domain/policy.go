package domain

import "time"

// Policy is a stored Rego module for the authorization engine. Enabled modules replace the built-in policy.
type Policy struct {
	ID        string
	Name      string
	Rules     string
	Enabled   bool
	CreatedAt time.Time
}
