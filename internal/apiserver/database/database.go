package database

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Database defines the persistence operations of the admin back-office that
// the notification channel depends on.
type Database interface {
	// Close closes the database connection.
	Close() error

	// Transaction runs fn inside a transaction carried by ctx.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error

	// CreateUser creates a new admin user.
	CreateUser(ctx context.Context, user *User) error

	// UpdateUser saves all fields of an existing user.
	UpdateUser(ctx context.Context, user *User) error

	// GetUserByUsername gets a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// GetUserByID gets a user by primary key.
	GetUserByID(ctx context.Context, id uint) (*User, error)

	// CreateContact stores a contact form submission.
	CreateContact(ctx context.Context, contact *Contact) error

	// CreateOffer stores a new offer.
	CreateOffer(ctx context.Context, offer *Offer) error

	// UpsertContent creates or replaces the content block identified by key.
	// It reports whether the block already existed.
	UpsertContent(ctx context.Context, content *Content) (bool, error)
}
