// gridiron is a command-line front end for the client core: it drives the
// passwordless email flows, Apple sign-in, profile management, and
// entitlement checks against a gridiron backend, persisting the session in
// a local credential store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/gridironhq/gridiron/internal/app"
	"github.com/gridironhq/gridiron/internal/config"
	"github.com/gridironhq/gridiron/internal/domain/entitlement"
	"github.com/gridironhq/gridiron/internal/domain/session"
	"github.com/gridironhq/gridiron/internal/domain/user"
	"github.com/gridironhq/gridiron/internal/infrastructure/identity"
	"github.com/gridironhq/gridiron/internal/observability"
	"github.com/gridironhq/gridiron/internal/platform/logging"
	"github.com/gridironhq/gridiron/internal/usecase"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("a command is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewJSON(cfg.LogLevel)
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		return fmt.Errorf("init uptrace: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	stopProfiler, err := observability.InitPyroscope(cfg, logger)
	if err != nil {
		return fmt.Errorf("init pyroscope: %w", err)
	}
	defer func() { _ = stopProfiler() }()

	application, err := app.New(ctx, cfg, logger, appleProvider())
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = application.Close(closeCtx)
	}()

	command := strings.ToLower(strings.TrimSpace(args[0]))
	rest := args[1:]

	switch command {
	case "send-code":
		return runSendCode(ctx, application, rest)
	case "signup":
		return runSignup(ctx, application, rest)
	case "signin":
		return runSignin(ctx, application, rest)
	case "apple":
		return runApple(ctx, application, rest)
	case "whoami":
		return runWhoami(ctx, application)
	case "update-profile":
		return runUpdateProfile(ctx, application, rest)
	case "features":
		return runFeatures(ctx, application, rest)
	case "signout":
		return application.Sessions.SignOut(ctx)
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func runSendCode(ctx context.Context, application *app.App, args []string) error {
	flags := pflag.NewFlagSet("send-code", pflag.ContinueOnError)
	email := flags.String("email", "", "email address to verify")
	signIn := flags.Bool("signin", false, "request a sign-in code instead of a signup code")
	if err := flags.Parse(args); err != nil {
		return err
	}

	purpose := session.PurposeSignUp
	if *signIn {
		purpose = session.PurposeSignIn
	}

	pending, err := application.Sessions.SendVerificationCode(ctx, *email, purpose)
	if err != nil {
		return err
	}
	fmt.Printf("code sent to %s, expires %s\n", pending.Email, pending.ExpiresAt.Format(time.RFC3339))
	return nil
}

func runSignup(ctx context.Context, application *app.App, args []string) error {
	flags := pflag.NewFlagSet("signup", pflag.ContinueOnError)
	email := flags.String("email", "", "email address the code was sent to")
	code := flags.String("code", "", "6-digit verification code")
	roleFlag := flags.String("role", "", "player or coach")
	positionFlag := flags.String("position", "", "player position: QB, WR, LB, or RB")
	age := flags.Int("age", 0, "player age")
	firstName := flags.String("first-name", "", "first name")
	lastName := flags.String("last-name", "", "last name")
	if err := flags.Parse(args); err != nil {
		return err
	}

	role, ok := user.RoleFromWire(*roleFlag)
	if !ok {
		return fmt.Errorf("invalid --role %q: expected player or coach", *roleFlag)
	}
	var position user.Position
	if role == user.RolePlayer {
		position, ok = user.PositionFromWire(*positionFlag)
		if !ok {
			return fmt.Errorf("invalid --position %q: expected QB, WR, LB, or RB", *positionFlag)
		}
	}

	// Mirror the onboarding flow so its transitions stay exercised end to end.
	onboarding := application.Onboarding
	onboarding.SetRole(role)
	if role == user.RolePlayer {
		onboarding.SetPosition(position, *age)
	}
	onboarding.GoToEmailVerification()

	profile, err := application.Sessions.VerifySignUpCode(ctx, usecase.VerifySignUpInput{
		Email:     *email,
		Code:      *code,
		FirstName: *firstName,
		LastName:  *lastName,
		Role:      role,
		Position:  position,
		Age:       *age,
	})
	if err != nil {
		return err
	}
	onboarding.CompleteOnboarding()

	fmt.Printf("signed up as %s (%s)\n", profile.DisplayName(), profile.Email)
	return nil
}

func runSignin(ctx context.Context, application *app.App, args []string) error {
	flags := pflag.NewFlagSet("signin", pflag.ContinueOnError)
	email := flags.String("email", "", "email address the code was sent to")
	code := flags.String("code", "", "6-digit verification code")
	if err := flags.Parse(args); err != nil {
		return err
	}

	profile, isNew, err := application.Sessions.VerifySignInCode(ctx, *email, *code)
	if err != nil {
		return err
	}
	if isNew {
		fmt.Printf("welcome, %s\n", profile.DisplayName())
	} else {
		fmt.Printf("welcome back, %s\n", profile.DisplayName())
	}
	return nil
}

func runApple(ctx context.Context, application *app.App, args []string) error {
	flags := pflag.NewFlagSet("apple", pflag.ContinueOnError)
	roleFlag := flags.String("role", "", "player or coach")
	positionFlag := flags.String("position", "", "player position: QB, WR, LB, or RB")
	age := flags.Int("age", 0, "player age")
	if err := flags.Parse(args); err != nil {
		return err
	}

	role, ok := user.RoleFromWire(*roleFlag)
	if !ok {
		return fmt.Errorf("invalid --role %q: expected player or coach", *roleFlag)
	}
	var position user.Position
	if role == user.RolePlayer {
		position, ok = user.PositionFromWire(*positionFlag)
		if !ok {
			return fmt.Errorf("invalid --position %q: expected QB, WR, LB, or RB", *positionFlag)
		}
	}

	outcome, err := application.Sessions.SignInWithApple(ctx, role, position, *age)
	if err != nil {
		return err
	}
	if outcome.Canceled {
		fmt.Println("sign in with Apple was canceled")
		return nil
	}
	fmt.Printf("signed in with Apple as %s\n", outcome.User.DisplayName())
	return nil
}

func runWhoami(ctx context.Context, application *app.App) error {
	profile, err := application.Sessions.RefreshProfile(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%s <%s>\n", profile.DisplayName(), profile.Email)
	fmt.Printf("role: %s", profile.Role)
	if profile.Role == user.RolePlayer {
		fmt.Printf(", position: %s, age: %d", profile.Position, profile.Age)
	}
	fmt.Printf("\ntier: %s\n", profile.Tier)
	if current := application.Sessions.CurrentSession(); current.Authenticated() && !current.CreatedAt.IsZero() {
		fmt.Printf("signed in since: %s\n", current.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func runUpdateProfile(ctx context.Context, application *app.App, args []string) error {
	flags := pflag.NewFlagSet("update-profile", pflag.ContinueOnError)
	firstName := flags.String("first-name", "", "new first name")
	lastName := flags.String("last-name", "", "new last name")
	positionFlag := flags.String("position", "", "new player position")
	if err := flags.Parse(args); err != nil {
		return err
	}

	current, ok := application.Sessions.CurrentUser()
	if !ok {
		return fmt.Errorf("not signed in")
	}
	if *firstName != "" {
		current.FirstName = *firstName
	}
	if *lastName != "" {
		current.LastName = *lastName
	}
	if *positionFlag != "" {
		position, valid := user.PositionFromWire(*positionFlag)
		if !valid {
			return fmt.Errorf("invalid --position %q: expected QB, WR, LB, or RB", *positionFlag)
		}
		current.Position = position
	}

	saved, err := application.Sessions.UpdateProfile(ctx, current)
	if err != nil {
		return err
	}
	fmt.Printf("profile updated for %s\n", saved.DisplayName())
	return nil
}

func runFeatures(_ context.Context, application *app.App, args []string) error {
	flags := pflag.NewFlagSet("features", pflag.ContinueOnError)
	products := flags.StringSlice("products", nil, "active store product IDs, comma separated")
	if err := flags.Parse(args); err != nil {
		return err
	}

	tier := application.Entitlements.ResolveTier(*products)
	fmt.Printf("tier: %s\n", tier)
	for _, feature := range application.Entitlements.FeaturesFor(tier, *products) {
		fmt.Printf("  %s\n", feature)
	}
	if !application.Entitlements.HasAccess(tier, *products, entitlement.FeatureExtraPositionDB) {
		fmt.Println("  (extra position database not purchased)")
	}
	return nil
}

// appleProvider returns the identity provider used for the apple command.
// The CLI has no Apple sign-in sheet, so a stub identity is used; real
// front ends inject their platform implementation through app.New.
func appleProvider() usecase.IdentityProvider {
	if os.Getenv("APPLE_FAKE_USER_ID") == "" {
		return nil
	}
	return &identity.StaticProvider{
		UserID:    os.Getenv("APPLE_FAKE_USER_ID"),
		Email:     os.Getenv("APPLE_FAKE_EMAIL"),
		FirstName: os.Getenv("APPLE_FAKE_FIRST_NAME"),
		LastName:  os.Getenv("APPLE_FAKE_LAST_NAME"),
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: gridiron <command> [flags]

commands:
  send-code       request an email verification code
  signup          exchange a code plus profile details for a session
  signin          exchange a code for a session
  apple           sign in with Apple
  whoami          show the current profile
  update-profile  change profile fields
  features        resolve tier and features for purchased products
  signout         clear the stored session`)
}
