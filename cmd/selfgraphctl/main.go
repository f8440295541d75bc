package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Harshitk-cp/selfgraph/internal/buildconfig"
	"github.com/Harshitk-cp/selfgraph/internal/config"
	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/Harshitk-cp/selfgraph/internal/engine"
	"github.com/Harshitk-cp/selfgraph/internal/jsonx"
	"github.com/Harshitk-cp/selfgraph/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cli carries what every command needs. Tests swap open and out.
type cli struct {
	out      io.Writer
	inMemory bool
	logLevel string
	open     func(ctx context.Context, opts engine.Options, logger *zap.Logger) (*engine.Engine, error)
}

func main() {
	_ = config.Load()

	c := &cli{out: os.Stdout, open: engine.Open}
	if err := newRootCmd(c).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "selfgraphctl",
		Short:         "selfgraphctl - operate the identity and belief graph",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVar(&c.inMemory, "in-memory", false, "run against an empty in-process store instead of Postgres and Redis")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (defaults to LOG_LEVEL, then warn)")

	root.AddCommand(
		c.importCmd(),
		c.sweepCmd(),
		c.feedbackCmd(),
		c.entitiesCmd(),
		c.suggestionsCmd(),
		c.conflictsCmd(),
		c.facetsCmd(),
		c.personasCmd(),
		versionCmd(c),
	)
	return root
}

// withEngine opens the engine for one command and closes it afterwards.
func (c *cli) withEngine(cmd *cobra.Command, fn func(ctx context.Context, eng *engine.Engine) error) error {
	level := c.logLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if level == "" {
		level = "warn"
	}
	logger, err := engine.NewLogger(level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	opts := engine.OptionsFromConfig()
	opts.InMemory = c.inMemory

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	eng, err := c.open(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	return fn(ctx, eng)
}

func (c *cli) print(v any) error {
	data, err := jsonx.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(data))
	return err
}

func (c *cli) importCmd() *cobra.Command {
	var importID string
	var batchSize int

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Reconcile a JSON file of fragments, chunks and citations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readImport(args[0])
			if err != nil {
				return err
			}
			if importID != "" {
				req.ImportID = importID
			}
			return c.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				if batchSize > 0 {
					eng.Resolver.BatchSize = batchSize
				}
				result, err := eng.Resolver.Reconcile(ctx, *req)
				if result != nil {
					if perr := c.print(result); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&importID, "import-id", "", "resumable import id (overrides import_id in the file)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "fragments per committed batch (defaults to RECONCILE_BATCH_SIZE)")
	return cmd
}

func readImport(path string) (*service.ImportRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var req service.ImportRequest
	if err := jsonx.NewDecoder(f).Decode(&req); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &req, nil
}

func (c *cli) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Recompute decayed belief scores (at most once per 24 hours)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				result, err := eng.Belief.Sweep(ctx)
				if err != nil {
					return err
				}
				return c.print(result)
			})
		},
	}
}

func (c *cli) feedbackCmd() *cobra.Command {
	var card bool

	cmd := &cobra.Command{
		Use:   "feedback <entity-id> <signal>",
		Short: "Apply a feedback signal to an entity",
		Long: "Apply a feedback signal to an entity. With --card, the last argument is the signal\n" +
			"and every preceding argument is an entity on the card.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[:len(args)-1])
			if err != nil {
				return err
			}
			signal := domain.FeedbackSignal(args[len(args)-1])

			return c.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				if card {
					entities, err := eng.Belief.ApplyCardFeedback(ctx, ids, signal)
					if err != nil {
						return err
					}
					return c.print(entities)
				}
				if len(ids) != 1 {
					return fmt.Errorf("expected one entity id, got %d", len(ids))
				}
				e, err := eng.Belief.ApplyFeedback(ctx, ids[0], signal)
				if err != nil {
					return err
				}
				return c.print(e)
			})
		},
	}
	cmd.Flags().BoolVar(&card, "card", false, "apply a card signal to several entities")
	return cmd
}

func (c *cli) entitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "List visible memory items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				items, err := eng.Profile.Items(ctx)
				if err != nil {
					return err
				}
				return c.print(items)
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <entity-id>",
		Short: "Show one entity, following merges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid entity id %q", args[0])
			}
			return c.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				e, err := eng.Profile.Entity(ctx, id)
				if err != nil {
					return err
				}
				return c.print(e)
			})
		},
	})

	var lock bool
	space := &cobra.Command{
		Use:   "space <entity-id> <space> <allowed|suggested|blocked>",
		Short: "Set an entity's membership in a space",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid entity id %q", args[0])
			}
			return c.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				e, err := eng.Profile.SetMembership(ctx, id, args[1], domain.MembershipStatus(args[2]), lock)
				if err != nil {
					return err
				}
				return c.print(e.Spaces)
			})
		},
	}
	space.Flags().BoolVar(&lock, "lock", false, "lock the membership against default changes")
	cmd.AddCommand(space)
	return cmd
}

func (c *cli) suggestionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggestions",
		Short: "Review merge suggestions",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List pending suggestions without surfacing them",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
					views, err := eng.Suggestions.Pending(ctx)
					if err != nil {
						return err
					}
					return c.print(views)
				})
			},
		},
		&cobra.Command{
			Use:   "surface",
			Short: "Surface suggestions within the daily limit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
					views, err := eng.Suggestions.Surface(ctx)
					if err != nil {
						return err
					}
					return c.print(views)
				})
			},
		},
		c.pairCmd("accept", "Merge the pair", func(ctx context.Context, eng *engine.Engine, a, b uuid.UUID) (any, error) {
			return eng.Suggestions.Accept(ctx, a, b)
		}),
		c.pairCmd("reject", "Keep the pair separate for good", func(ctx context.Context, eng *engine.Engine, a, b uuid.UUID) (any, error) {
			return eng.Suggestions.Reject(ctx, a, b)
		}),
		c.pairCmd("skip", "Snooze the pair for seven days", func(ctx context.Context, eng *engine.Engine, a, b uuid.UUID) (any, error) {
			return eng.Suggestions.Skip(ctx, a, b)
		}),
	)
	return cmd
}

func (c *cli) pairCmd(use, short string, fn func(ctx context.Context, eng *engine.Engine, a, b uuid.UUID) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <entity-a> <entity-b>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return c.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				v, err := fn(ctx, eng, ids[0], ids[1])
				if err != nil {
					return err
				}
				return c.print(v)
			})
		},
	}
}

func (c *cli) conflictsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List entities flagged with a merge conflict",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				entities, err := eng.Conflicts.List(ctx)
				if err != nil {
					return err
				}
				return c.print(entities)
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "resolve <entity-id>",
		Short: "Clear an entity's conflict flag after review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return c.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				e, err := eng.Conflicts.Resolve(ctx, ids[0])
				if err != nil {
					return err
				}
				return c.print(e)
			})
		},
	})
	return cmd
}

func (c *cli) facetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "facets",
		Short: "Show facets and their members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				facets, err := eng.Profile.Facets(ctx)
				if err != nil {
					return err
				}
				return c.print(facets)
			})
		},
	}
}

func (c *cli) personasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "personas",
		Short: "Show personas, their status and matching items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				views, err := eng.Profile.Personas(ctx)
				if err != nil {
					return err
				}
				return c.print(views)
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "promote <persona-id>",
		Short: "Confirm a persona once its items are stable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				view, err := eng.Profile.Promote(ctx, args[0])
				if err != nil {
					return err
				}
				return c.print(view)
			})
		},
	})
	return cmd
}

func versionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(c.out, buildconfig.String())
			return err
		},
	}
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, a := range args {
		id, err := uuid.Parse(a)
		if err != nil {
			return nil, fmt.Errorf("invalid entity id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
