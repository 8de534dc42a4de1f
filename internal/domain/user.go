package domain

import "strings"

const (
	RoleStudent = "student"
	RoleStaff   = "staff"
)

// Caller identifica a quien ejecuta una operacion. La identidad la emite un
// proveedor externo; aqui solo se consume.
type Caller struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (c Caller) IsZero() bool {
	return strings.TrimSpace(c.UserID) == ""
}

func (c Caller) IsStaff() bool {
	return c.Role == RoleStaff
}
