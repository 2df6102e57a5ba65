package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/shopauth/internal/auth/app"
	"github.com/aussiebroadwan/shopauth/internal/auth/cache"
	"github.com/aussiebroadwan/shopauth/internal/auth/service"
	"github.com/aussiebroadwan/shopauth/internal/auth/store"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
)

type loggerFunc func() *slog.Logger

// issuer builds an Issuer from the configured key. Tokens signed with an
// ephemeral key would not verify against the running server, so a key is
// required.
func issuer(log *slog.Logger) (*jwtx.Issuer, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	cfg.AllowEphemeralKeys = false

	km, err := app.InitKeyManager(cfg, log)
	if err != nil {
		return nil, err
	}
	return jwtx.NewIssuer(km, jwtx.IssuerOptions{
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		Leeway:     cfg.TokenLeeway,
		ServiceTTL: cfg.ServiceTokenTTL,
	}), nil
}

func tokenCmd(newLogger loggerFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint and inspect tokens with the configured signing key",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "service <name>",
		Short: "Mint a service token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			iss, err := issuer(newLogger())
			if err != nil {
				return err
			}
			tok, err := iss.CreateServiceToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "verify <token>",
		Short: "Verify a token signature and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			iss, err := issuer(newLogger())
			if err != nil {
				return err
			}
			claims, err := iss.DecodeToken(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, claims)
		},
	})

	return cmd
}

type backends struct {
	cfg   app.Config
	store store.Store
	cache cache.Cache
}

func (b *backends) Close() {
	if b.cache != nil {
		_ = b.cache.Close()
	}
	if b.store != nil {
		_ = b.store.Close()
	}
}

func openBackends(ctx context.Context, log *slog.Logger, withCache bool) (*backends, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	b := &backends{cfg: cfg}

	if b.store, err = app.OpenStore(ctx, cfg, log); err != nil {
		return nil, err
	}
	if withCache {
		if b.cache, err = app.OpenCache(ctx, cfg, log); err != nil {
			b.Close()
			return nil, err
		}
	}
	return b, nil
}

func usersCmd(newLogger loggerFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users",
	}

	var (
		email    string
		password string
		staff    bool
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			b, err := openBackends(cmd.Context(), log, true)
			if err != nil {
				return err
			}
			defer b.Close()

			sessions := service.NewSessionRegistry(b.store, b.cache, log, nil)
			dir, err := app.NewUserDirectory(b.cfg, b.store, sessions, log)
			if err != nil {
				return err
			}
			u, err := dir.CreateUser(cmd.Context(), email, password, staff)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"id": u.ID, "email": u.Email, "is_staff": u.IsStaff})
		},
	}
	create.Flags().StringVar(&email, "email", "", "email address")
	create.Flags().StringVar(&password, "password", "", "initial password")
	create.Flags().BoolVar(&staff, "staff", false, "grant the admin scope")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	setActive := func(use, short string, active bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <user-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				log := newLogger()
				b, err := openBackends(cmd.Context(), log, true)
				if err != nil {
					return err
				}
				defer b.Close()

				sessions := service.NewSessionRegistry(b.store, b.cache, log, nil)
				dir := &service.UserDirectory{Store: b.store, Logger: log, Sessions: sessions}
				if err := dir.SetActive(cmd.Context(), args[0], active); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("no user %s", args[0])
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %sd\n", args[0], use)
				return nil
			},
		}
	}

	cmd.AddCommand(
		create,
		setActive("disable", "Disable a user and revoke their sessions", false),
		setActive("enable", "Re-enable a user", true),
	)
	return cmd
}

func sessionsCmd(newLogger loggerFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Session maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Revoke every session past its expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			b, err := openBackends(cmd.Context(), log, true)
			if err != nil {
				return err
			}
			defer b.Close()

			sessions := service.NewSessionRegistry(b.store, b.cache, log, nil)
			n := sessions.CleanupExpiredSessions(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %d expired sessions\n", n)
			return nil
		},
	})

	var olderThan time.Duration
	archive := &cobra.Command{
		Use:   "archive",
		Short: "Delete revoked session rows older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			b, err := openBackends(cmd.Context(), newLogger(), false)
			if err != nil {
				return err
			}
			defer b.Close()

			n, err := b.store.Sessions().DeleteRevokedSessionsBefore(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d revoked sessions\n", n)
			return nil
		},
	}
	archive.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "minimum age since revocation")
	cmd.AddCommand(archive)

	return cmd
}

func guardCmd(newLogger loggerFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Brute-force guard maintenance",
	}

	var identifier string
	reset := &cobra.Command{
		Use:   "reset <ip>",
		Short: "Lift a block and clear the failed-attempt counters of an ip",
		Long:  "Only meaningful with a shared cache (AUTH_CACHE_DRIVER=redis); the memory cache lives inside the server process.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			b, err := openBackends(cmd.Context(), log, true)
			if err != nil {
				return err
			}
			defer b.Close()
			if b.cfg.CacheDriver != "redis" {
				log.Warn("guard state is held in the server's memory cache, nothing to reset from here")
			}

			opts := service.DefaultGuardOptions()
			opts.Policy = service.FailClosed
			guard := service.NewBruteforceGuard(b.cache, opts, log, nil)

			if err := guard.Unblock(cmd.Context(), args[0]); err != nil {
				return err
			}
			if identifier != "" && !guard.ResetAttempts(cmd.Context(), args[0], identifier) {
				return errors.New("failed to reset attempt counters")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", args[0])
			return nil
		},
	}
	reset.Flags().StringVar(&identifier, "identifier", "", "also clear the ip+identifier counter (login email)")
	cmd.AddCommand(reset)

	return cmd
}
