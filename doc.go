// Package account implements the account lifecycle of a user-facing web
// application: registration with email confirmation, password sign-in with
// lockout on repeated failures, password reset through emailed tokens and
// role administration.
//
// The package is organized around a few collaborating components:
//
//   - Identities (CredentialStore) persists identity records and bcrypt hashes.
//   - TokenIssuer mints purpose-scoped, time-bounded tokens backed by a ledger
//     table so that tokens are single use and newer tokens supersede older ones.
//   - LockoutPolicy tracks failed attempts and lockout windows using
//     compare-and-swap writes on the identity concurrency stamp.
//   - Lifecycle orchestrates register, confirm, login, forgot and reset.
//   - Notifier composes confirmation and reset messages and hands them to a
//     NotificationGateway without blocking the request.
//   - RoleAdmin manages roles and memberships.
//
// Persistence is done with bun. The schema ships as per dialect SQL
// migrations under data/sql/migrations, exposed by GetMigrationsFS for a
// migration runner. Migrate applies the same files directly, which suits
// embedded and in-memory databases:
//
//	if err := account.Migrate(ctx, db); err != nil {
//		return err
//	}
//	repo := account.NewRepositoryManager(db)
//
//	tokens := account.NewTokenIssuer(repo, cfg.GetTokens())
//	lockout := account.NewLockoutPolicy(repo, cfg.GetLockout())
//	sessions := account.NewJWTSessions(cfg.GetTokens(), cfg.GetSession(), account.NewMemorySessionStore())
//	notifier := account.NewNotifier(gateway, baseURL)
//
//	lifecycle := account.NewLifecycle(repo, tokens, lockout, sessions, notifier)
//
// All errors returned by the package are *errors.Error values from
// github.com/goliatone/go-errors carrying a TextCode, use Kind or IsKind to
// branch on them.
package account
