package users

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// RoleType is the user category that drives client routing.
type RoleType string

const (
	RolePatient     RoleType = "patient"
	RoleDentist     RoleType = "dentist"
	RoleAdmin       RoleType = "admin"
	RoleClinicStaff RoleType = "clinic_staff"
)

// StatusType is the account status.
type StatusType string

const (
	StatusActive    StatusType = "active"
	StatusInactive  StatusType = "inactive"
	StatusSuspended StatusType = "suspended"
)

const DefaultLanguage = "id"

// User is the authenticated identity held by a session. Profile fields are
// role specific and optional.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // never serialize
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Phone        string     `json:"phone,omitempty"`
	Role         RoleType   `json:"role"`
	Status       StatusType `json:"status"`
	IsActive     bool       `json:"isActive"`
	IsVerified   bool       `json:"isVerified"`
	Language     string     `json:"preferredLanguage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt,omitempty"`

	Profile
}

// Profile carries the optional role-specific registration fields.
type Profile struct {
	// Patient
	DateOfBirth           string `json:"dateOfBirth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Gender                string `json:"gender,omitempty"`
	Address               string `json:"address,omitempty"`
	EmergencyContactName  string `json:"emergencyContactName,omitempty"`
	EmergencyContactPhone string `json:"emergencyContactPhone,omitempty"`
	Allergies             string `json:"allergies,omitempty"`
	MedicalHistory        string `json:"medicalHistory,omitempty"`

	// Dentist
	LicenseNumber     string `json:"licenseNumber,omitempty"`
	Specialization    string `json:"specialization,omitempty"`
	YearsOfExperience *int   `json:"yearsOfExperience,omitempty" validate:"omitempty,gte=0"`
	ClinicName        string `json:"clinicName,omitempty"`
	ClinicAddress     string `json:"clinicAddress,omitempty"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Active reports whether the account may sign in.
func (u *User) Active() bool {
	return u.Status == "" || u.Status == StatusActive
}

// Valid reports whether r is one of the known roles.
func (r RoleType) Valid() bool {
	switch r {
	case RolePatient, RoleDentist, RoleAdmin, RoleClinicStaff:
		return true
	}
	return false
}

// ParseRole maps a backend role name such as "DENTIST" or "clinic-staff" to
// a RoleType. Unknown names map to RolePatient.
func ParseRole(s string) RoleType {
	r := RoleType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if r.Valid() {
		return r
	}
	return RolePatient
}

// BackendName is the upper-case role name used by the database and REST API.
func (r RoleType) BackendName() string {
	return strings.ToUpper(string(r))
}

// ParseStatus maps a backend status name to a StatusType. Unknown names map
// to StatusInactive.
func ParseStatus(s string) StatusType {
	switch st := StatusType(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusInactive, StatusSuspended:
		return st
	}
	return StatusInactive
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least minLength characters long
// - Contains a letter and a number
func ValidatePasswordStrength(password string, minLength int) error {
	if len(password) < minLength {
		return fmt.Errorf("password must be at least %d characters long", minLength)
	}

	var (
		hasLetter bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsLetter(char) {
			hasLetter = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasLetter {
		return fmt.Errorf("password must contain at least one letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
