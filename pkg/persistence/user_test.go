// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx := begin(t, db)
	user := &User{
		Fullname: "Jane Doe",
		Email:    "jane@example.com",
		Username: "jane",
		Role:     RoleAdmin,
		Password: "$2y$10$hash",
	}
	require.NoError(t, tx.InsertUser(ctx, user))
	require.NotZero(t, user.ID)
	require.NoError(t, tx.Commit())

	tx = begin(t, db)
	defer tx.Rollback()
	got, err := tx.UserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Jane Doe", got.Fullname)
	assert.Equal(t, "jane@example.com", got.Email)
	assert.Equal(t, "jane", got.Username)
	assert.Equal(t, RoleAdmin, got.Role)
	assert.Equal(t, "$2y$10$hash", got.Password)
	assert.Nil(t, got.AuthCode)
	assert.Nil(t, got.EmailVerifiedAt)
}

func TestUserByIDMissing(t *testing.T) {
	db := openTestDB(t)

	tx := begin(t, db)
	defer tx.Rollback()
	user, err := tx.UserByID(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestInsertUserDefaultsRole(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx := begin(t, db)
	user := &User{
		Fullname: "John Doe",
		Email:    "john@example.com",
		Username: "john",
		Password: "hashed",
	}
	require.NoError(t, tx.InsertUser(ctx, user))
	require.NoError(t, tx.Commit())

	tx = begin(t, db)
	defer tx.Rollback()
	got, err := tx.UserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, RoleUser, got.Role)
}

func TestUserToJSON(t *testing.T) {
	user := &User{
		Fullname: "Jane Doe",
		Email:    "jane@example.com",
		Username: "jane",
		Role:     RoleUser,
		Password: "hashed",
	}

	minified := user.ToJSON(true)
	assert.Equal(t, map[string]interface{}{
		"username": "jane",
		"fullname": "Jane Doe",
		"email":    "jane@example.com",
	}, minified)

	full := user.ToJSON(false)
	assert.Equal(t, RoleUser, full["role"])
	assert.Equal(t, "hashed", full["hashed_password"])
}
