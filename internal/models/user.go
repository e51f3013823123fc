package models

import (
	"time"
)

// UserRole represents the role of a user in the org hierarchy
type UserRole string

const (
	RoleWorker     UserRole = "worker"
	RoleSupervisor UserRole = "supervisor"
	RoleAdmin      UserRole = "admin"
)

// User represents a field worker, supervisor or admin account.
// SupervisorID forms the org hierarchy used by escalation.
type User struct {
	ID           uint     `gorm:"column:id;primaryKey" json:"id"`
	Username     string   `gorm:"column:username;size:100;uniqueIndex;not null" json:"username"`
	Password     string   `gorm:"column:password;size:255;not null" json:"-"`
	FullName     string   `gorm:"column:full_name;size:100" json:"full_name"`
	Email        string   `gorm:"column:email;size:255" json:"email"`
	Phone        string   `gorm:"column:phone;size:50" json:"phone"`
	Role         UserRole `gorm:"column:role;size:20;not null;default:'worker'" json:"role"`
	SupervisorID *uint    `gorm:"column:supervisor_id;index" json:"supervisor_id,omitempty"`
	Supervisor   *User    `gorm:"foreignKey:SupervisorID" json:"supervisor,omitempty"`
	IsActive     bool     `gorm:"column:is_active;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
