package models

import (
	"strings"

	"github.com/noah-isme/sma-gradebook/pkg/identity"
)

// StudentStatus represents the lifecycle state of a student record.
type StudentStatus string

// Supported student statuses.
const (
	StudentStatusActive    StudentStatus = "active"
	StudentStatusInactive  StudentStatus = "inactive"
	StudentStatusArchived  StudentStatus = "archived"
	StudentStatusGraduated StudentStatus = "graduated"
	StudentStatusDropped   StudentStatus = "dropped"
)

// UnnamedStudent labels students whose name fields are all empty.
const UnnamedStudent = "Estudiante sin nombre"

// Student represents a learner registered in the institution.
type Student struct {
	ID        identity.ID   `db:"id" json:"id"`
	FirstName string        `db:"first_name" json:"first_name"`
	LastName  string        `db:"last_name" json:"last_name"`
	FullName  string        `db:"full_name" json:"full_name"`
	Status    StudentStatus `db:"status" json:"status"`
}

// DisplayName prefers the stored full name and falls back to first/last name.
func (s Student) DisplayName() string {
	if name := strings.TrimSpace(s.FullName); name != "" {
		return name
	}
	if name := strings.TrimSpace(strings.TrimSpace(s.FirstName) + " " + strings.TrimSpace(s.LastName)); name != "" {
		return name
	}
	return UnnamedStudent
}
