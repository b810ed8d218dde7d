package model

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

var (
	ErrInvalidUser   = errors.New("model: invalid user")
	ErrInvalidGender = fmt.Errorf("%w: gender", ErrInvalidUser)
)

var Genders = []string{"Male", "Female", "Other"}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Gender   string `json:"gender"`
	Profile  string `json:"profile,omitempty"`
	Bio      string `json:"bio,omitempty"`
}

func (u User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidUser)
	}
	if strings.TrimSpace(u.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidUser)
	}
	if strings.TrimSpace(u.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidUser)
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return fmt.Errorf("%w: email %q", ErrInvalidUser, u.Email)
	}
	if strings.TrimSpace(u.Gender) == "" {
		return fmt.Errorf("%w: gender is required", ErrInvalidUser)
	}
	for _, g := range Genders {
		if strings.EqualFold(g, u.Gender) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidGender, u.Gender)
}
