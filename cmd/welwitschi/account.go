// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/welwitschi/welwitschi/internal/account"
	"github.com/welwitschi/welwitschi/internal/vault"
)

// generatedPasswordBytes is the entropy of passwords generated by create.
const generatedPasswordBytes = 12

func newAccountCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Administer accounts",
	}

	cmd.AddCommand(newAccountCreateCmd(opts))
	cmd.AddCommand(newAccountConfirmCmd(opts))
	cmd.AddCommand(newAccountResetPasswordCmd(opts))
	cmd.AddCommand(newAccountAPIKeyCmd(opts))
	cmd.AddCommand(newAccountDeleteCmd(opts))
	cmd.AddCommand(newAccountShowCmd(opts))

	return cmd
}

// withDirectory opens the backend for the duration of fn.
func withDirectory(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, dir *account.Directory) error) error {
	cfg, logger, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	backend, err := opts.deps.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	return fn(ctx, backend.Directory)
}

// findAccount resolves an id, username or email. Numeric references are
// tried as ids first.
func findAccount(ctx context.Context, dir *account.Directory, ref string) (*account.Account, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		acct, err := dir.LookupByID(ctx, id)
		if !errors.Is(err, account.ErrNotFound) {
			return acct, err
		}
	}
	return dir.LookupByLogin(ctx, ref)
}

func newAccountCreateCmd(opts *rootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "create <username> <email>",
		Short: "Create an unconfirmed account",
		Long: `Create an account and print its confirmation token. A random
password is generated and printed when --password is not given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd, opts, func(ctx context.Context, dir *account.Directory) error {
				pw := password
				if pw == "" {
					generated, err := vault.RandomToken(generatedPasswordBytes)
					if err != nil {
						return err
					}
					pw = generated
				}

				ok, err := dir.CreateAccount(ctx, args[0], args[1], pw)
				if err != nil {
					return err
				}
				if !ok {
					return oops.Code("ACCOUNT_TAKEN").
						With("username", args[0]).
						Errorf("username or email already in use")
				}

				acct, err := dir.LookupByUsername(ctx, args[0])
				if err != nil {
					return err
				}
				token, _ := acct.PendingConfirmationToken()

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "id: %d\n", acct.ID())
				if password == "" {
					fmt.Fprintf(out, "password: %s\n", pw)
				}
				fmt.Fprintf(out, "confirmation token: %s\n", token)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "initial password (generated when empty)")
	return cmd
}

func newAccountConfirmCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <account> <token>",
		Short: "Confirm an account with its confirmation token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd, opts, func(ctx context.Context, dir *account.Directory) error {
				acct, err := findAccount(ctx, dir, args[0])
				if err != nil {
					return err
				}
				ok, err := acct.Confirm(ctx, args[1])
				if err != nil {
					return err
				}
				if !ok {
					return oops.Code("CONFIRM_REJECTED").
						With("account_id", acct.ID()).
						Errorf("confirmation token rejected")
				}
				cmd.Printf("confirmed %s\n", acct.Username())
				return nil
			})
		},
	}
}

func newAccountResetPasswordCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password <account>",
		Short: "Replace the password with a random one and end all sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd, opts, func(ctx context.Context, dir *account.Directory) error {
				acct, err := findAccount(ctx, dir, args[0])
				if err != nil {
					return err
				}
				pw, err := acct.ResetPassword(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "password: %s\n", pw)
				return nil
			})
		},
	}
}

func newAccountAPIKeyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "api-key <account>",
		Short: "Issue a new API key, replacing the previous one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd, opts, func(ctx context.Context, dir *account.Directory) error {
				acct, err := findAccount(ctx, dir, args[0])
				if err != nil {
					return err
				}
				key, ok, err := acct.GenerateNewAPIKey(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return oops.Code("API_KEY_REJECTED").
						With("account_id", acct.ID()).
						Errorf("account is not confirmed")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "api key: %s\n", key)
				return nil
			})
		},
	}
}

func newAccountDeleteCmd(opts *rootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "delete <account>",
		Short: "Delete an account and its sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd, opts, func(ctx context.Context, dir *account.Directory) error {
				acct, err := findAccount(ctx, dir, args[0])
				if err != nil {
					return err
				}
				ok, err := dir.DeleteAccount(ctx, acct, password)
				if err != nil {
					return err
				}
				if !ok {
					return oops.Code("DELETE_REJECTED").
						With("account_id", acct.ID()).
						Errorf("password does not match")
				}
				cmd.Printf("deleted %s\n", acct.Username())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "the account's current password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newAccountShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <account>",
		Short: "Show an account by id, username or email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd, opts, func(ctx context.Context, dir *account.Directory) error {
				acct, err := findAccount(ctx, dir, args[0])
				if err != nil {
					return err
				}
				writeAccount(cmd.OutOrStdout(), acct.Record())
				return nil
			})
		},
	}
}

func writeAccount(w io.Writer, rec account.Record) {
	fmt.Fprintf(w, "id:        %d\n", rec.ID)
	fmt.Fprintf(w, "username:  %s\n", rec.Username)
	fmt.Fprintf(w, "email:     %s\n", rec.Email)
	fmt.Fprintf(w, "confirmed: %t\n", rec.IsConfirmed())
	fmt.Fprintf(w, "created:   %s\n", rec.CreatedAt.UTC().Format(time.RFC3339))
}
