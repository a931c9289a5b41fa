package model

import "time"

// Role is the caller's resolved role, supplied by the upstream identity layer.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleAdvisor Role = "advisor"
)

// Caller is the resolved identity fact attached to a request.
type Caller struct {
	ID        string `json:"caller_id"`
	Role      Role   `json:"role"`
	AdvisorID string `json:"advisor_id,omitempty"`
}

// Advisor is the extended metadata kept for an advisor (contact details).
type Advisor struct {
	AdvisorID       string     `json:"advisor_id" validate:"required,max=50"`
	Name            string     `json:"name"`
	Email           string     `json:"email" validate:"omitempty,email"`
	Phone           string     `json:"phone,omitempty"`
	ManagerID       string     `json:"manager_id,omitempty"`
	HireDate        *time.Time `json:"hire_date,omitempty"`
	TerminationDate *time.Time `json:"termination_date,omitempty"`
}

// FirstName returns the first word of the advisor's name.
func (a Advisor) FirstName() string {
	for i, r := range a.Name {
		if r == ' ' {
			return a.Name[:i]
		}
	}
	return a.Name
}
