// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package main

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/rentloop/rentloop/internal/access"
	"github.com/rentloop/rentloop/internal/httpapi"
)

// NewTokenCmd creates the token subcommand, which mints bearer tokens
// signed with the configured secret for local development and smoke tests.
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		Args:  cobra.NoArgs,
		RunE:  runToken,
	}
	cmd.Flags().String("subject", "", "user id (ULID); a new one is generated when empty")
	cmd.Flags().String("role", string(access.RoleOwner), "role claim (user, owner or admin)")
	cmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	return cmd
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	auth, err := httpapi.NewAuthenticator(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	roleName, _ := cmd.Flags().GetString("role")
	role, ok := access.ParseRole(roleName)
	if !ok {
		return oops.Code("INVALID_ROLE").With("role", roleName).Errorf("unknown role %q", roleName)
	}
	ttl, _ := cmd.Flags().GetDuration("ttl")
	if ttl <= 0 {
		return oops.Code("INVALID_TTL").Errorf("--ttl must be positive")
	}

	id := ulid.Make()
	if subject, _ := cmd.Flags().GetString("subject"); subject != "" {
		id, err = ulid.Parse(subject)
		if err != nil {
			return oops.Code("INVALID_SUBJECT").With("subject", subject).Wrap(err)
		}
	}

	token, err := auth.Sign(access.Actor{ID: id, Role: role}, ttl)
	if err != nil {
		return err
	}
	cmd.Println(token)
	return nil
}
