package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/feiju-bot/feiju/internal/di/providers"
	"github.com/feiju-bot/feiju/internal/domain"
	"github.com/feiju-bot/feiju/internal/media/images"
	"github.com/feiju-bot/feiju/internal/normalize"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the meme database",
		Long: `Opens the database, converting a legacy category schema in a single
transaction if one is found. Exits non-zero when the migration fails; the
database is left untouched in that case. Images of a converted database are
rehashed right away.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(func(e *env) error {
				report, err := providers.RunStartupReindex(e.injector)
				if err != nil {
					return fmt.Errorf("reindex: %w", err)
				}
				if jsonOutput {
					printJSON(map[string]any{"ok": true, "db_path": e.cfg.Data.DBPath, "reindex": report})
					return nil
				}
				fmt.Printf("✓ Database ready: %s\n", e.cfg.Data.DBPath)
				if report != nil {
					fmt.Printf("  rehashed %d of %d images\n", report.Rehashed, report.Scanned)
				}
				return nil
			})
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print library statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(func(e *env) error {
				memes, err := e.memes()
				if err != nil {
					return err
				}
				stats, err := memes.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					printJSON(stats)
					return nil
				}
				fmt.Printf("Contexts:  %d\n", stats.Contexts)
				fmt.Printf("Libraries: %d\n", stats.Libraries)
				fmt.Printf("Names:     %d\n", stats.Names)
				fmt.Printf("Images:    %d\n", stats.Images)
				fmt.Printf("Bytes:     %d\n", stats.Bytes)
				return nil
			})
		},
	}
}

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Shrink oversized images and recompute perceptual hashes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(func(e *env) error {
				memes, err := e.memes()
				if err != nil {
					return err
				}
				report, err := memes.Reindex(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					printJSON(report)
					return nil
				}
				fmt.Printf("✓ Reindex %s finished in %s\n", report.RunID, report.Duration)
				fmt.Printf("  scanned %d, resized %d, rehashed %d, failed %d\n",
					report.Scanned, report.Resized, report.Rehashed, report.Failed)
				return nil
			})
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <source> <target> <keyword>",
		Short: "Copy a library to another context",
		Long: `Copies every image of keyword's library in source into the library of
the same name in target, skipping near-duplicates. A context written as
p<digits> means the private chat with that user.`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(func(e *env) error {
				memes, err := e.memes()
				if err != nil {
					return err
				}
				keyword := strings.Join(args[2:], " ")
				return printReply(memes.SyncMemes(cmd.Context(), args[0], args[1], keyword))
			})
		},
	}
}

func newAddCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "add <context> <name> <url>",
		Short: "Download an image into a library",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(func(e *env) error {
				memes, err := e.memes()
				if err != nil {
					return err
				}
				return printReply(memes.AddMeme(cmd.Context(), args[1], args[2], contextArg(args[0]), force))
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Skip duplicate detection")
	return cmd
}

func newAliasCmd() *cobra.Command {
	aliasCmd := &cobra.Command{
		Use:   "alias",
		Short: "Manage library names",
	}

	var contextID string
	aliasCmd.PersistentFlags().StringVarP(&contextID, "context", "c", "", "Context id (group id, or p<user id>)")
	_ = aliasCmd.MarkPersistentFlagRequired("context")

	aliasCmd.AddCommand(&cobra.Command{
		Use:   "add <name> <alias>",
		Short: "Make two names point at the same library",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(func(e *env) error {
				aliases, err := e.aliases()
				if err != nil {
					return err
				}
				return printReply(aliases.AddAlias(cmd.Context(), args[0], args[1], contextArg(contextID)))
			})
		},
	})

	aliasCmd.AddCommand(&cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"remove"},
		Short:   "Remove a name from its library",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(func(e *env) error {
				aliases, err := e.aliases()
				if err != nil {
					return err
				}
				return printReply(aliases.RemoveAlias(cmd.Context(), args[0], contextArg(contextID)))
			})
		},
	})

	aliasCmd.AddCommand(&cobra.Command{
		Use:     "ls <name>",
		Aliases: []string{"list"},
		Short:   "List the names of a library",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(func(e *env) error {
				aliases, err := e.aliases()
				if err != nil {
					return err
				}
				names, err := aliases.Names(cmd.Context(), args[0], contextArg(contextID))
				if err != nil {
					return err
				}
				if jsonOutput {
					printJSON(map[string]any{"name": normalize.Name(args[0]), "names": names})
					return nil
				}
				for _, n := range names {
					fmt.Println(n)
				}
				return nil
			})
		},
	})

	return aliasCmd
}

func newLibrariesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "libraries [context]",
		Short: "List contexts, or the libraries of one context",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(func(e *env) error {
				memes, err := e.memes()
				if err != nil {
					return err
				}
				if len(args) == 0 {
					contexts, err := memes.ListContexts(cmd.Context())
					if err != nil {
						return err
					}
					if jsonOutput {
						printJSON(map[string]any{"contexts": contexts})
						return nil
					}
					for _, c := range contexts {
						fmt.Println(c)
					}
					return nil
				}

				libs, err := memes.ListLibraries(cmd.Context(), contextArg(args[0]))
				if err != nil {
					return err
				}
				if jsonOutput {
					printJSON(map[string]any{"libraries": libs})
					return nil
				}
				for _, lib := range libs {
					fmt.Printf("%d\t%d images\t%s\n", lib.ID, lib.ImageCount, strings.Join(lib.Names, ", "))
				}
				return nil
			})
		},
	}
}

func newExportCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "export <context> <name>",
		Short: "Write the images of a library to disk",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(func(e *env) error {
				memes, err := e.memes()
				if err != nil {
					return err
				}
				dir := outDir
				if dir == "" {
					dir = filepath.Join(e.cfg.Data.BasePath, "exports")
				}
				storage, err := images.NewStorage(dir)
				if err != nil {
					return err
				}
				paths, err := exportLibrary(cmd.Context(), memes, storage, contextArg(args[0]), args[1])
				if err != nil {
					return err
				}
				if jsonOutput {
					printJSON(map[string]any{"ok": true, "files": paths})
					return nil
				}
				fmt.Printf("✓ Exported %d images to %s\n", len(paths), dir)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (default: {data}/exports)")
	return cmd
}

// libraryReader is the part of the meme service export reads from.
type libraryReader interface {
	ListImages(ctx context.Context, name, contextID string) ([]domain.ImageRef, error)
	Image(ctx context.Context, imageID int64) (*domain.Image, error)
}

// exportLibrary saves every image of name's library into one directory named
// after the context and the folded name.
func exportLibrary(ctx context.Context, memes libraryReader, storage *images.Storage, contextID, name string) ([]string, error) {
	refs, err := memes.ListImages(ctx, name, contextID)
	if err != nil {
		return nil, err
	}

	dir := contextID + "_" + normalize.Name(name)
	paths := make([]string, 0, len(refs))
	for _, ref := range refs {
		img, err := memes.Image(ctx, ref.ID)
		if err != nil {
			return paths, fmt.Errorf("read image %d: %w", ref.ID, err)
		}
		path, err := storage.Save(dir, img.ID, img.Data)
		if err != nil {
			return paths, fmt.Errorf("write image %d: %w", ref.ID, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// contextArg expands the p<digits> shorthand for private chats.
func contextArg(raw string) string {
	return domain.ParseContextToken(raw)
}
