package types

import "time"

// User represents an account in the system.
// It contains identity, contact details, and audit metadata.
type User struct {
	// ID is the opaque identifier of the user. It never changes after creation.
	ID string `json:"id" db:"id"`

	// Name is the unique display name chosen by the user.
	Name string `json:"name" db:"name"`

	// Email is the user's unique email address, used to log in.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	PhoneNumber string `json:"phone_number" db:"phone_number"`

	Address string `json:"address" db:"address"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Profile is the public view of a User.
type Profile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
	Address     string    `json:"address"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Profile projects u without its password hash.
func (u User) Profile() Profile {
	return Profile{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		Address:     u.Address,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// UserPatch lists the fields of a partial update. Nil fields are left
// untouched.
type UserPatch struct {
	Name         *string
	Email        *string
	PasswordHash *string
	PhoneNumber  *string
	Address      *string
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.PasswordHash == nil && p.PhoneNumber == nil && p.Address == nil
}

// Fields returns the names of the supplied fields.
func (p UserPatch) Fields() []string {
	var fields []string
	if p.Name != nil {
		fields = append(fields, "name")
	}
	if p.Email != nil {
		fields = append(fields, "email")
	}
	if p.PasswordHash != nil {
		fields = append(fields, "password")
	}
	if p.PhoneNumber != nil {
		fields = append(fields, "phone_number")
	}
	if p.Address != nil {
		fields = append(fields, "address")
	}
	return fields
}
