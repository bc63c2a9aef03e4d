package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivebackup/internal/backup"
	"github.com/tonimelisma/drivebackup/internal/remote"
)

func newFolderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "folder",
		Short: "Find or create the backup folder and print it",
		Args:  cobra.NoArgs,
		RunE:  runFolder,
	}
}

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List the backup folder",
		Long: `List the direct children of the backup folder.

With --all, list every object visible to the login instead, including
trashed ones where the provider can list them. A listing that
fails part way prints what was fetched and then reports the error.`,
		Args: cobra.NoArgs,
		RunE: runLs,
	}

	cmd.Flags().Bool("all", false, "list every visible object, trashed ones included")

	return cmd
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path>",
		Short: "Upload a file into the backup folder as a new object",
		Args:  cobra.ExactArgs(1),
		RunE:  runPut,
	}

	cmd.Flags().String("description", "", "object description (default from config)")
	cmd.Flags().String("content", "", "upload this text instead of the file's bytes")

	return cmd
}

func newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <object-id> <local-path>",
		Short: "Replace an object's content and metadata with a local file",
		Args:  cobra.ExactArgs(2),
		RunE:  runUpdate,
	}

	cmd.Flags().String("description", "", "object description (default from config)")
	cmd.Flags().String("content", "", "upload this text instead of the file's bytes")
	cmd.Flags().Bool("no-revision", false, "do not keep the previous content as a revision")

	return cmd
}

func newReplaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replace <object-id> <local-path>",
		Short: "Replace an object's content, overriding title, description or type",
		Long: `Replace an object's content with a local file. The object keeps its current
folder. Without --title it keeps its current title; without --mime the content
type is derived from the file's extension.`,
		Args: cobra.ExactArgs(2),
		RunE: runReplace,
	}

	cmd.Flags().String("title", "", "object title (default: keep the current title)")
	cmd.Flags().String("description", "", "object description")
	cmd.Flags().String("mime", "", "content type (default: from extension)")
	cmd.Flags().Bool("no-revision", false, "do not keep the previous content as a revision")

	return cmd
}

func newInsertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insert <local-path>",
		Short: "Upload a file with explicit title, description or type",
		Args:  cobra.ExactArgs(1),
		RunE:  runInsert,
	}

	cmd.Flags().String("title", "", "object title (default: file name)")
	cmd.Flags().String("description", "", "object description")
	cmd.Flags().String("mime", "", "content type (default: from extension)")

	return cmd
}

func newTrashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trash <object-id>",
		Short: "Move an object to the trash",
		Long: `Move an object to the provider's trash (recycle bin on OneDrive).

Trashing never fails the command: when the provider refuses, a warning is
logged and nothing is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: runTrash,
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <object-id>",
		Short: "Permanently delete an object",
		Args:  cobra.ExactArgs(1),
		RunE:  runRm,
	}
}

func overlayFromFlags(cmd *cobra.Command) backup.Overlay {
	title, _ := cmd.Flags().GetString("title")
	desc, _ := cmd.Flags().GetString("description")
	mime, _ := cmd.Flags().GetString("mime")

	return backup.Overlay{Title: title, Description: desc, ContentType: mime}
}

// uploadOptions merges the per-command flags with the config defaults.
func uploadOptions(cmd *cobra.Command, cc *CLIContext) backup.UploadOptions {
	opts := backup.UploadOptions{
		Description: cc.Cfg.Description,
		NewRevision: backup.Bool(cc.Cfg.NewRevision),
	}

	if cmd.Flags().Changed("description") {
		opts.Description, _ = cmd.Flags().GetString("description")
	}

	if cmd.Flags().Changed("content") {
		content, _ := cmd.Flags().GetString("content")
		opts.Content = []byte(content)
	}

	if noRev, _ := cmd.Flags().GetBool("no-revision"); noRev {
		opts.NewRevision = backup.Bool(false)
	}

	return opts
}

func newRevision(cmd *cobra.Command, cc *CLIContext) bool {
	if noRev, _ := cmd.Flags().GetBool("no-revision"); noRev {
		return false
	}

	return cc.Cfg.NewRevision
}

// withSession runs fn against a freshly opened session.
func withSession(cmd *cobra.Command, fn func(context.Context, *CLIContext, *backup.Session) error) error {
	cc := mustCLIContext(cmd.Context())
	parent, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ctx := shutdownContext(parent, cc.Logger)

	session, err := openSession(ctx, cc)
	if err != nil {
		return err
	}

	return fn(ctx, cc, session)
}

// awaitFolder lets the backup folder resolve before an insert, so new
// objects land in it. A failed resolution is left to the session: it either
// refuses (require_ready) or proceeds unparented.
func awaitFolder(ctx context.Context, s *backup.Session) error {
	if _, err := s.WaitUntilReady(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	return nil
}

func runFolder(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, cc *CLIContext, s *backup.Session) error {
		h, err := s.WaitUntilReady(ctx)
		if err != nil {
			return err
		}

		if cc.Flags.JSON {
			return printJSON(os.Stdout, map[string]string{"id": h.ID, "title": h.Title})
		}

		fmt.Printf("%s  %s\n", h.ID, h.Title)

		return nil
	})
}

func runLs(cmd *cobra.Command, _ []string) error {
	all, _ := cmd.Flags().GetBool("all")

	return withSession(cmd, func(ctx context.Context, cc *CLIContext, s *backup.Session) error {
		var (
			objects []remote.Object
			err     error
		)

		if all {
			objects, err = s.ListAll(ctx)
		} else {
			objects, err = s.ListFolder(ctx)
		}

		var partial *backup.PartialEnumerationError
		if err != nil && !errors.As(err, &partial) {
			return err
		}

		if printErr := printObjects(os.Stdout, cc.Flags.JSON, objects); printErr != nil {
			return printErr
		}

		// Partial listings still print what was fetched.
		return err
	})
}

func runPut(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, cc *CLIContext, s *backup.Session) error {
		if err := awaitFolder(ctx, s); err != nil {
			return err
		}

		obj, err := s.Upload(ctx, args[0], uploadOptions(cmd, cc))
		if err != nil {
			return err
		}

		return printObject(os.Stdout, cc.Flags.JSON, obj)
	})
}

func runUpdate(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, cc *CLIContext, s *backup.Session) error {
		if err := awaitFolder(ctx, s); err != nil {
			return err
		}

		obj, err := s.Update(ctx, args[1], args[0], uploadOptions(cmd, cc))
		if err != nil {
			return err
		}

		return printObject(os.Stdout, cc.Flags.JSON, obj)
	})
}

func runReplace(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, cc *CLIContext, s *backup.Session) error {
		obj, err := s.Replace(ctx, args[0], overlayFromFlags(cmd), args[1], newRevision(cmd, cc))
		if err != nil {
			return err
		}

		return printObject(os.Stdout, cc.Flags.JSON, obj)
	})
}

func runInsert(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, cc *CLIContext, s *backup.Session) error {
		if err := awaitFolder(ctx, s); err != nil {
			return err
		}

		obj, err := s.InsertWithMetadata(ctx, overlayFromFlags(cmd), args[0])
		if err != nil {
			return err
		}

		return printObject(os.Stdout, cc.Flags.JSON, obj)
	})
}

func runTrash(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, cc *CLIContext, s *backup.Session) error {
		obj := s.Trash(ctx, args[0])
		if obj == nil {
			cc.Statusf("Could not trash %s (see log).\n", args[0])
			return nil
		}

		forgetObject(ctx, cc, args[0])

		if cc.Flags.JSON {
			return printJSON(os.Stdout, toObjectJSON(obj))
		}

		cc.Statusf("Trashed %s (%s).\n", obj.Title, obj.ID)

		return nil
	})
}

func runRm(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, cc *CLIContext, s *backup.Session) error {
		if err := s.Delete(ctx, args[0]); err != nil {
			return err
		}

		forgetObject(ctx, cc, args[0])
		cc.Statusf("Deleted %s.\n", args[0])

		return nil
	})
}

// forgetObject drops ledger entries for an object that no longer holds a
// backup, so the next backup uploads those files afresh.
func forgetObject(ctx context.Context, cc *CLIContext, objectID string) {
	l, err := openLedger(ctx, cc)
	if err != nil {
		cc.Logger.Warn("could not open ledger", slog.String("error", err.Error()))
		return
	}
	defer l.Close()

	n, err := l.ForgetObject(ctx, objectID)
	if err != nil {
		cc.Logger.Warn("could not update ledger",
			slog.String("object_id", objectID),
			slog.String("error", err.Error()),
		)

		return
	}

	if n > 0 {
		cc.Logger.Info("ledger entries dropped",
			slog.String("object_id", objectID),
			slog.Int64("entries", n),
		)
	}
}
