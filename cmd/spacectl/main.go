// spacectl is a terminal client for HuggingSpace model files, built on the
// same platform SDK as the server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NaveDanan/HuggingSpace/internal/config"
	"github.com/NaveDanan/HuggingSpace/internal/logging"
	"github.com/NaveDanan/HuggingSpace/internal/storage"
	"github.com/NaveDanan/HuggingSpace/pkg/platform"
)

func main() {
	logging.Init(logging.Config{Level: envOr("LOG_LEVEL", "error"), Format: "console"})

	root := &cobra.Command{
		Use:           "spacectl",
		Short:         "Manage HuggingSpace model files from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(loginCmd(), logoutCmd(), lsCmd(), getCmd(), putCmd(), rmCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newClient builds a platform client from the environment and installs the
// cached session when one exists.
func newClient() (*platform.Client, error) {
	url, err := config.Resolve("SUPABASE_URL", "VITE_SUPABASE_URL", true)
	if err != nil {
		return nil, err
	}
	key, err := config.Resolve("SUPABASE_ANON_KEY", "VITE_SUPABASE_ANON_KEY", true)
	if err != nil {
		return nil, err
	}

	client, err := platform.New(platform.Config{URL: url, AnonKey: key})
	if err != nil {
		return nil, err
	}

	if tf, err := platform.LoadToken(); err == nil && tf.Server == url && !tf.Session.IsExpired(0) {
		session := tf.Session
		client.SetSession(&session)
	}
	return client, nil
}

func requireSession(client *platform.Client) error {
	if client.GetSession() == nil {
		return fmt.Errorf("not signed in, run: spacectl login")
	}
	return nil
}

func loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			session, err := client.SignInWithPassword(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			url, _ := config.Resolve("SUPABASE_URL", "VITE_SUPABASE_URL", true)
			if err := platform.SaveToken(&platform.TokenFile{Server: url, Session: *session}); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			fmt.Printf("signed in as %s\n", session.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and drop the cached session",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if client.GetSession() != nil {
				client.SignOut(cmd.Context())
			}
			if err := platform.DeleteToken(); err != nil && !os.IsNotExist(err) {
				return err
			}
			fmt.Println("signed out")
			return nil
		},
	}
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <model-id>",
		Short: "List a model's files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := requireSession(client); err != nil {
				return err
			}
			svc := storage.NewService(client)
			names, err := svc.ListFiles(cmd.Context(), client.GetSession().User.ID, args[0])
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <model-id> <filename>",
		Short: "Print a model file's content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := requireSession(client); err != nil {
				return err
			}
			svc := storage.NewService(client)
			content, err := svc.DownloadFile(cmd.Context(), client.GetSession().User.ID, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Print(content)
			return nil
		},
	}
}

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <model-id> <local-file> [remote-name]",
		Short: "Upload a file to a model (overwrites)",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := requireSession(client); err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			name := filepath.Base(args[1])
			if len(args) == 3 {
				name = args[2]
			}
			svc := storage.NewService(client)
			path, err := svc.UploadFile(cmd.Context(), client.GetSession().User.ID, args[0], name, data, "")
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <model-id> <filename>",
		Short: "Delete a model file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := requireSession(client); err != nil {
				return err
			}
			svc := storage.NewService(client)
			return svc.DeleteFile(cmd.Context(), client.GetSession().User.ID, args[0], args[1])
		},
	}
}
