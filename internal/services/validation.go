package services

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"task-gateway/internal/models"
)

const (
	DefaultListLimit  = 100
	MaxListLimit      = 100
	MinPasswordLength = 8
)

// Lengths are counted in code points, not bytes.
func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if utf8.RuneCountInString(title) > models.TaskTitleMaxLength {
		return &ValidationError{
			Field:   "title",
			Message: fmt.Sprintf("title must be at most %d characters", models.TaskTitleMaxLength),
		}
	}
	return nil
}

func validateDescription(description string) error {
	if utf8.RuneCountInString(description) > models.TaskDescriptionMaxLength {
		return &ValidationError{
			Field:   "description",
			Message: fmt.Sprintf("description must be at most %d characters", models.TaskDescriptionMaxLength),
		}
	}
	return nil
}

func (in TaskInput) Validate() error {
	if err := validateTitle(in.Title); err != nil {
		return err
	}
	return validateDescription(in.Description)
}

// Validate checks only the fields that are set.
func (u TaskUpdate) Validate() error {
	if u.Title != nil {
		if err := validateTitle(*u.Title); err != nil {
			return err
		}
	}
	if u.Description != nil {
		if err := validateDescription(*u.Description); err != nil {
			return err
		}
	}
	return nil
}

// Normalize fills defaults and rejects out of range values.
func (o ListOptions) Normalize() (ListOptions, error) {
	if o.Skip < 0 {
		return o, &ValidationError{Field: "skip", Message: "skip must not be negative"}
	}
	if o.Limit == 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit < 1 || o.Limit > MaxListLimit {
		return o, &ValidationError{
			Field:   "limit",
			Message: fmt.Sprintf("limit must be between 1 and %d", MaxListLimit),
		}
	}
	return o, nil
}

func validateRegistration(email, password string) error {
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return &ValidationError{Field: "email", Message: "a valid email address is required"}
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return &ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("password must be at least %d characters", MinPasswordLength),
		}
	}
	return nil
}
