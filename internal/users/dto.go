package users

import "time"

// Summary is the external representation of a principal. It never includes
// the credential digest.
type Summary struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	Active    bool      `json:"active"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSummary maps a principal to its external shape.
func NewSummary(p *Principal) Summary {
	return Summary{
		ID:        p.ID,
		Name:      p.Name,
		Contact:   p.Contact,
		Active:    p.Active,
		Roles:     p.RoleNames(),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// UpdateRequest carries a partial administrative update. A non-nil Roles
// slice replaces the principal's entire role set.
type UpdateRequest struct {
	Name    *string   `json:"name" validate:"omitempty,min=3,max=80"`
	Contact *string   `json:"contact" validate:"omitempty,email,max=120"`
	Secret  *string   `json:"secret" validate:"omitempty,min=4"`
	Active  *bool     `json:"active"`
	Roles   *[]string `json:"roles"`
}
