package staffing

import (
	"time"

	"github.com/google/uuid"
)

type Employee struct {
	ID             uuid.UUID `json:"id"`
	EmployeeNumber string    `json:"employee_number"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	HireDate       time.Time `json:"hire_date"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

func (e *Employee) FullName() string {
	switch {
	case e.FirstName == "":
		return e.LastName
	case e.LastName == "":
		return e.FirstName
	default:
		return e.FirstName + " " + e.LastName
	}
}
