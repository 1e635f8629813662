package domain

import "time"

// Contact is a single address book entry owned by one user.
type Contact struct {
	ID        int64      `json:"id"`
	OwnerID   int64      `json:"-"`
	Name      string     `json:"name"`
	Surname   string     `json:"surname"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	Birthday  *time.Time `json:"birthday,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ContactFilter narrows List results.
type ContactFilter struct {
	// Query matches name, surname, or email as a case-insensitive substring.
	Query  string
	Limit  int
	Offset int
}
