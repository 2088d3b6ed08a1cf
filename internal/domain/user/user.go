package user

import "errors"

// User is a row of the users table.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// ErrEmailTaken is returned when another row already holds the email.
var ErrEmailTaken = errors.New("email already registered")

// bounds mirror the column sizes of the users table
type CreateUserRequest struct {
	FirstName string `json:"firstName" binding:"required,max=25"`
	LastName  string `json:"lastName" binding:"required,max=25"`
	Email     string `json:"email" binding:"required,max=55"`
}

// a full overwrite of every mutable column
type UpdateUserRequest struct {
	FirstName string `json:"firstName" binding:"required,max=25"`
	LastName  string `json:"lastName" binding:"required,max=25"`
	Email     string `json:"email" binding:"required,max=55"`
}

func NewFromCreateRequest(id int64, req CreateUserRequest) User {
	return User{
		ID:        id,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	}
}
