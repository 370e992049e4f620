package dto

// UserListQuery filters the admin user listing.
type UserListQuery struct {
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
	Search string `form:"search"`
}

// UpdateUserRoleRequest switches a user between the two roles.
type UpdateUserRoleRequest struct {
	Role string `json:"role" binding:"required" validate:"required,oneof=ADMIN SCHOOL"`
}

// UpdateUserEmailRequest changes a user's login email.
type UpdateUserEmailRequest struct {
	Email string `json:"email" binding:"required" validate:"required,email"`
}

// GrantCreditsRequest is an admin credit grant to one user.
type GrantCreditsRequest struct {
	Credits int    `json:"credits" binding:"required" validate:"required,gt=0"`
	Note    string `json:"note"`
}

// GrantCreditsResponse returns the user's balance after the grant.
type GrantCreditsResponse struct {
	UserID  string `json:"user_id"`
	Granted int    `json:"granted"`
	Balance int    `json:"balance"`
}
