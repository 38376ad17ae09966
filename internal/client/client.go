// Package client stores the customer accounts shown on the dashboard.
//
// Clients are CRM metadata only; nothing in the counting pipeline reads
// them.
package client

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

// Domain errors for the client package.
var (
	ErrClientNotFound = errors.New("client: not found")
	ErrEmailTaken     = errors.New("client: email already registered")
	ErrInvalidClient  = errors.New("client: invalid")
)

// Defaults applied by Create when a field is empty.
const (
	DefaultPlan   = "Pro"
	DefaultStatus = "active"

	maxNameLength = 200
)

// Client is a customer account.
type Client struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Plan           string    `json:"plan"`
	Status         string    `json:"status"`
	LocationsCount int       `json:"locationsCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Normalize trims fields, lower-cases the email and fills defaults.
func (c *Client) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Plan = strings.TrimSpace(c.Plan)
	c.Status = strings.TrimSpace(c.Status)
	if c.Plan == "" {
		c.Plan = DefaultPlan
	}
	if c.Status == "" {
		c.Status = DefaultStatus
	}
}

// Validate checks required fields.
func (c *Client) Validate() error {
	if c.Name == "" || utf8.RuneCountInString(c.Name) > maxNameLength {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidClient, maxNameLength)
	}
	if c.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidClient)
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return fmt.Errorf("%w: email %q is not valid", ErrInvalidClient, c.Email)
	}
	if c.LocationsCount < 0 {
		return fmt.Errorf("%w: locationsCount must be non-negative", ErrInvalidClient)
	}
	return nil
}
