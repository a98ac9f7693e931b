// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// User records an account that may own bots.
type User struct {
	ID              int64      `db:"id"`
	Fullname        string     `db:"fullname"`
	Email           string     `db:"email"`
	Username        string     `db:"username"`
	Role            Role       `db:"role"`
	AuthCode        *string    `db:"auth_code"`
	EmailVerifiedAt *time.Time `db:"email_verified_at"`
	Password        string     `db:"password"`
	RememberToken   *string    `db:"remember_token"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       *time.Time `db:"updated_at"`
	DeletedAt       *time.Time `db:"deleted_at"`
}

// ToJSON renders the user for API responses. The minified form carries the
// public identity fields only.
func (u *User) ToJSON(minified bool) map[string]interface{} {
	resp := map[string]interface{}{
		"username": u.Username,
		"fullname": u.Fullname,
		"email":    u.Email,
	}
	if !minified {
		resp["role"] = u.Role
		resp["hashed_password"] = u.Password
		resp["auth_code"] = u.AuthCode
		resp["created_at"] = u.CreatedAt.Format(TimeFormat)
		resp["updated_at"] = formatTime(u.UpdatedAt)
		resp["deleted_at"] = formatTime(u.DeletedAt)
	}
	return resp
}

const userColumns = `id, fullname, email, username, role, auth_code, email_verified_at,
	password, remember_token, created_at, updated_at, deleted_at`

const insertUserQuery = `INSERT INTO users
	(fullname, email, username, role, auth_code, email_verified_at, password, remember_token,
	 created_at, updated_at, deleted_at)
	VALUES
	(:fullname, :email, :username, :role, :auth_code, :email_verified_at, :password, :remember_token,
	 :created_at, :updated_at, :deleted_at)`

// UserByID retrieves a user by id. Returns nil when no such user exists.
func (t *Tx) UserByID(ctx context.Context, id int64) (*User, error) {
	var user User
	query := t.tx.Rebind("SELECT " + userColumns + " FROM users WHERE id = ?")
	if err := t.tx.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not retrieve user %d", id)
	}
	return &user, nil
}

// InsertUser persists a new user record and fills in its surrogate id.
// User accounts are usually managed by an external system sharing the
// database, this is primarily here to bootstrap standalone deployments.
func (t *Tx) InsertUser(ctx context.Context, user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.Role == "" {
		user.Role = RoleUser
	}
	id, err := t.insert(ctx, insertUserQuery, user)
	if err != nil {
		return errors.Wrapf(err, "could not insert user %s", user.Username)
	}
	user.ID = id
	return nil
}
