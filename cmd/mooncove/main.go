package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sandeepkv93/mooncove/internal/account"
	"github.com/sandeepkv93/mooncove/internal/app"
	"github.com/sandeepkv93/mooncove/internal/config"
	"github.com/sandeepkv93/mooncove/internal/credential"
	"github.com/sandeepkv93/mooncove/internal/logging"
	"github.com/sandeepkv93/mooncove/internal/model"
	"github.com/sandeepkv93/mooncove/internal/report"
	"github.com/sandeepkv93/mooncove/internal/sessions"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "mooncove",
		Short:         "Plan study sessions and unlock a puzzle gallery",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file path")

	root.AddCommand(newTUICmd(&configPath))
	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newSignUpCmd(&configPath))
	root.AddCommand(newLoginCmd(&configPath))
	root.AddCommand(newLogoutCmd())
	root.AddCommand(newReportCmd(&configPath))
	root.AddCommand(newSessionCmd(&configPath))
	root.AddCommand(newGalleryCmd(&configPath))
	return root
}

// loadApp reads the config and builds the app. Console logs go to console;
// pass io.Discard while the terminal UI owns the screen.
func loadApp(ctx context.Context, configPath string, console io.Writer) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Console:    console,
	})
	if err != nil {
		return nil, err
	}
	return app.New(ctx, app.Options{Config: cfg, Logger: logger})
}

func activeUser() (string, error) {
	creds, err := credential.Open(config.Dir())
	if err != nil {
		return "", err
	}
	userID, err := creds.ActiveUser()
	if errors.Is(err, credential.ErrNoActiveUser) {
		return "", fmt.Errorf("%w: run mooncove signup or mooncove login first", err)
	}
	return userID, err
}

func runTUI(ctx context.Context, configPath string) error {
	userID, err := activeUser()
	if err != nil {
		return err
	}
	a, err := loadApp(ctx, configPath, io.Discard)
	if err != nil {
		return err
	}
	defer a.Close()
	defer func() { _ = a.Log.Sync() }()
	return a.RunTUI(ctx, userID)
}

func newTUICmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Run the terminal UI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), *configPath)
		},
	}
}

func newServeCmd(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), *configPath, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			defer func() { _ = a.Log.Sync() }()
			if addr == "" {
				addr = a.Config.API.Addr
			}
			return a.Serve(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to api.addr)")
	return cmd
}

func newSignUpCmd(configPath *string) *cobra.Command {
	var req account.SignUp
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a user and sign in as them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Username == "" || req.Email == "" || req.Gender == "" {
				if err := signUpForm(&req).RunWithContext(cmd.Context()); err != nil {
					return err
				}
			}
			a, err := loadApp(cmd.Context(), *configPath, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			user, err := a.Accounts.SignUp(cmd.Context(), req)
			if err != nil {
				return err
			}
			creds, err := credential.Open(config.Dir())
			if err != nil {
				return err
			}
			if err := creds.SetActiveUser(user.ID); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "signed up %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Username, "username", "", "display name")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	cmd.Flags().StringVar(&req.Gender, "gender", "", "Male|Female|Other")
	cmd.Flags().StringVar(&req.Bio, "bio", "", "short bio (optional)")
	return cmd
}

func signUpForm(req *account.SignUp) *huh.Form {
	options := make([]huh.Option[string], 0, len(model.Genders))
	for _, g := range model.Genders {
		options = append(options, huh.NewOption(g, g))
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Value(&req.Username).
				Validate(required("username")),
			huh.NewInput().
				Title("Email").
				Placeholder("luna@example.com").
				Value(&req.Email).
				Validate(required("email")),
			huh.NewSelect[string]().
				Title("Gender").
				Options(options...).
				Value(&req.Gender),
			huh.NewText().
				Title("Bio").
				Value(&req.Bio),
		),
	)
}

func required(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func newLoginCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login <user-id>",
		Short: "Sign in as an existing user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), *configPath, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			user, err := a.Accounts.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			creds, err := credential.Open(config.Dir())
			if err != nil {
				return err
			}
			if err := creds.SetActiveUser(user.ID); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", user.Username)
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the signed in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds, err := credential.Open(config.Dir())
			if err != nil {
				return err
			}
			if err := creds.SignOut(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

// withUser loads the app for the signed in user's commands.
func withUser(ctx context.Context, configPath string, fn func(a *app.App, ws *app.Workspace) error) error {
	userID, err := activeUser()
	if err != nil {
		return err
	}
	a, err := loadApp(ctx, configPath, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	if _, err := a.Accounts.Get(ctx, userID); err != nil {
		return err
	}
	return fn(a, a.Workspace(ctx, userID))
}

func newReportCmd(configPath *string) *cobra.Command {
	var view, format string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print average session progress per period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := report.ParseView(view)
			if err != nil {
				return err
			}
			return withUser(cmd.Context(), *configPath, func(a *app.App, ws *app.Workspace) error {
				if err := ws.Sessions.LoadAll(cmd.Context()); err != nil {
					return err
				}
				bars, err := report.Aggregate(ws.Sessions.Days(), v, a.ReportOptions())
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), format, map[string]any{"view": v, "bars": bars})
			})
		},
	}
	cmd.Flags().StringVar(&view, "view", string(report.ViewYearly), "yearly|monthly|weekly")
	cmd.Flags().StringVar(&format, "format", "yaml", "yaml|json")
	return cmd
}

func printValue(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func newSessionCmd(configPath *string) *cobra.Command {
	session := &cobra.Command{Use: "session", Short: "Manage the sessions of a day"}

	var date, format string
	session.PersistentFlags().StringVar(&date, "date", "", "day as YYYY-MM-DD (defaults to today)")

	day := func(a *app.App) string {
		if date != "" {
			return date
		}
		return a.Today()
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions with their progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUser(cmd.Context(), *configPath, func(a *app.App, ws *app.Workspace) error {
				d := day(a)
				if err := ws.Sessions.Load(cmd.Context(), d); err != nil {
					return err
				}
				list := ws.Sessions.Sessions(d)
				rating, _ := report.DayRating(list)
				return printValue(cmd.OutOrStdout(), format, map[string]any{
					"date":      d,
					"sessions":  list,
					"breakdown": report.Breakdown(report.SessionTasks(list)),
					"rating":    rating,
				})
			})
		},
	}
	listCmd.Flags().StringVar(&format, "format", "yaml", "yaml|json")

	addCmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Create a session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := ""
			if len(args) == 1 {
				title = args[0]
			}
			return withUser(cmd.Context(), *configPath, func(a *app.App, ws *app.Workspace) error {
				d := day(a)
				if err := ws.Sessions.Load(cmd.Context(), d); err != nil {
					return err
				}
				sess, err := ws.Sessions.AddSession(cmd.Context(), d, title)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added session %s (%s)\n", sess.Title, sess.ID)
				return nil
			})
		},
	}

	taskCmd := &cobra.Command{
		Use:   "task <session-id> <title>",
		Short: "Add a task to a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), *configPath, func(a *app.App, ws *app.Workspace) error {
				d := day(a)
				if err := ws.Sessions.Load(cmd.Context(), d); err != nil {
					return err
				}
				sess, task, err := ws.Sessions.AddTask(cmd.Context(), d, args[0], args[1])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added task %s (%s), session at %d%%\n", task.Title, task.ID, sess.Progress)
				return nil
			})
		},
	}

	toggleCmd := &cobra.Command{
		Use:   "toggle <session-id> <task-id>",
		Short: "Mark a task done or back in progress",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), *configPath, func(a *app.App, ws *app.Workspace) error {
				d := day(a)
				if err := ws.Sessions.Load(cmd.Context(), d); err != nil {
					return err
				}
				task, err := ws.Sessions.ToggleStatus(cmd.Context(), d, args[0], args[1])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", task.Title, task.Status)
				select {
				case res := <-ws.Reveals:
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "revealed piece %d, %d/%d open\n",
						res.Piece, len(res.Item.OpenIndex), model.PieceCount)
				default:
				}
				return nil
			})
		},
	}

	var yes bool
	deleteCmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), *configPath, func(a *app.App, ws *app.Workspace) error {
				d := day(a)
				if err := ws.Sessions.Load(cmd.Context(), d); err != nil {
					return err
				}
				confirm := sessions.ConfirmFunc(func(prompt string) (bool, error) {
					if yes {
						return true, nil
					}
					ok := false
					err := huh.NewConfirm().
						Title(prompt).
						Affirmative("Delete").
						Negative("Keep").
						Value(&ok).
						Run()
					return ok, err
				})
				if err := ws.Sessions.DeleteSession(cmd.Context(), d, args[0], confirm); err != nil {
					if errors.Is(err, sessions.ErrNotConfirmed) {
						_, _ = fmt.Fprintln(cmd.OutOrStdout(), "kept session")
						return nil
					}
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "deleted session")
				return nil
			})
		},
	}
	deleteCmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	session.AddCommand(listCmd, addCmd, taskCmd, toggleCmd, deleteCmd)
	return session
}

func newGalleryCmd(configPath *string) *cobra.Command {
	gallery := &cobra.Command{Use: "gallery", Short: "Show and unlock puzzle pictures"}

	var format string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List gallery items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUser(cmd.Context(), *configPath, func(_ *app.App, ws *app.Workspace) error {
				items, err := ws.Gallery.Items(cmd.Context())
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), format, items)
			})
		},
	}
	listCmd.Flags().StringVar(&format, "format", "yaml", "yaml|json")

	revealCmd := &cobra.Command{
		Use:   "reveal",
		Short: "Open one piece of the active picture",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUser(cmd.Context(), *configPath, func(_ *app.App, ws *app.Workspace) error {
				res, err := ws.Gallery.RevealActive(cmd.Context())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "revealed piece %d, %d/%d open\n",
					res.Piece, len(res.Item.OpenIndex), model.PieceCount)
				if res.Completed {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "picture complete")
				}
				return nil
			})
		},
	}

	gallery.AddCommand(listCmd, revealCmd)
	return gallery
}
