package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/hupe1980/reviewmesh"
	"github.com/hupe1980/reviewmesh/config"
	"github.com/hupe1980/reviewmesh/core"
	"github.com/hupe1980/reviewmesh/engine"
	"github.com/hupe1980/reviewmesh/prompt"
	"github.com/hupe1980/reviewmesh/server"
	"github.com/hupe1980/reviewmesh/worker"
)

// output flags shared by the commands printing model text.
type output struct {
	json   bool
	pretty bool
}

func (o *output) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.json, "json", false, "Print the full result as JSON")
	cmd.Flags().BoolVar(&o.pretty, "pretty", false, "Render markdown for the terminal")
}

func (a *app) print(o output, text string, result any) error {
	if o.json {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	if o.pretty {
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err == nil {
			if rendered, err := r.Render(text); err == nil {
				text = rendered
			}
		}
	}
	_, err := fmt.Fprintln(a.stdout, strings.TrimRight(text, "\n"))
	return err
}

func (a *app) analyzeCmd() *cobra.Command {
	var (
		req reviewmesh.AnalyzeRequest
		out output
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Draft feedback for a ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.build(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			defer s.Close()

			res, err := s.assistant.Analyze(cmd.Context(), req)
			if err != nil {
				return a.fail(err)
			}
			return a.print(out, res.Text, res)
		},
	}
	cmd.Flags().StringVar(&req.Subject, "subject", "", "Ticket subject")
	cmd.Flags().StringVar(&req.Description, "description", "", "Ticket description")
	cmd.Flags().IntVar(&req.TrackerID, "tracker", 0, "Tracker id (1 bug, 2 feature, 3 support, 4 long term, 5 unit tests)")
	cmd.Flags().StringVar(&req.ModelID, "model", "", "Model id <provider>:<model>")
	out.register(cmd)
	return cmd
}

func (a *app) askCmd() *cobra.Command {
	var (
		req engine.Request
		out output
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question, looking up tickets when needed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.build(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			defer s.Close()

			req.Question = strings.Join(args, " ")
			res, err := s.assistant.Ask(cmd.Context(), req)
			if err != nil {
				return a.fail(err)
			}
			return a.print(out, res.Answer, res)
		},
	}
	cmd.Flags().StringVar(&req.ModelID, "model", "", "Answer model id")
	cmd.Flags().StringVar(&req.ToolModelID, "tool-model", "", "Tool-calling model id")
	cmd.Flags().StringVar(&req.Project, "project", "", "Project scoping [[document]] references")
	out.register(cmd)
	return cmd
}

func (a *app) reviewCmd() *cobra.Command {
	var (
		modelID string
		save    bool
		notify  bool
		out     output
	)
	cmd := &cobra.Command{
		Use:   "review <hash>...",
		Short: "Review one or more commits in a single request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hashes, err := prompt.ParseHashList(strings.Join(args, " "))
			if err != nil {
				return a.fail(err)
			}
			s, err := a.build(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			defer s.Close()

			res, err := s.assistant.ReviewCommits(cmd.Context(), hashes, modelID)
			if err != nil {
				return a.fail(err)
			}
			if save {
				for _, h := range hashes {
					if err := s.reviews.SaveResult(cmd.Context(), h, res.Review); err != nil {
						return a.fail(err)
					}
				}
			}
			if notify {
				for _, c := range res.Commits {
					if err := s.notifier.NotifyReview(cmd.Context(), c, res.Review); err != nil {
						return a.fail(err)
					}
				}
			}
			return a.print(out, res.Review, res)
		},
	}
	cmd.Flags().StringVar(&modelID, "model", "", "Review model id")
	cmd.Flags().BoolVar(&save, "save", false, "Store the review in the review directory")
	cmd.Flags().BoolVar(&notify, "notify", false, "Post the review to the configured webhook")
	out.register(cmd)
	return cmd
}

func (a *app) queueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue <hash>...",
		Short: "Queue commits for asynchronous review",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hashes, err := prompt.ParseHashList(strings.Join(args, " "))
			if err != nil {
				return a.fail(err)
			}
			s, err := a.build(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			defer s.Close()

			for _, h := range hashes {
				if err := s.assistant.QueueReview(cmd.Context(), h); err != nil {
					return a.fail(err)
				}
				fmt.Fprintf(a.stdout, "queued %s\n", h)
			}
			return nil
		},
	}
}

func (a *app) workerCmd() *cobra.Command {
	var (
		watch   bool
		modelID string
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Review queued commits",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.build(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			defer s.Close()

			interval, _ := s.cfg.Review.Interval()
			w := worker.New(s.assistant, s.reviews, func(o *worker.Options) {
				o.Watch = watch
				o.ModelID = modelID
				o.Notifier = s.notifier
				o.PollInterval = interval
				o.Logger = s.logger
			})
			if err := w.Run(cmd.Context()); err != nil && cmd.Context().Err() == nil {
				return a.fail(err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and review newly queued commits")
	cmd.Flags().StringVar(&modelID, "model", "", "Review model id")
	return cmd
}

func (a *app) modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect configured and available models",
	}

	var provider string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the models a provider offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.build(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			defer s.Close()

			names := []string{provider}
			if provider == "" {
				names = names[:0]
				for _, p := range s.assistant.Registry().Providers() {
					names = append(names, p.Name)
				}
			}
			for _, name := range names {
				ids, err := s.assistant.ListModels(cmd.Context(), name)
				if err != nil {
					return a.fail(err)
				}
				for _, id := range ids {
					fmt.Fprintf(a.stdout, "%s:%s\n", name, id)
				}
			}
			return nil
		},
	}
	list.Flags().StringVar(&provider, "provider", "", "Provider name (default: all)")

	available := &cobra.Command{
		Use:   "available",
		Short: "List the configured model ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return a.fail(err)
			}
			reg, err := cfg.Registry()
			if err != nil {
				return a.fail(err)
			}
			def, _ := reg.DefaultModel()
			toolModel, _ := reg.ToolModel()
			for _, id := range reg.ModelIDs() {
				var marks []string
				if id == def {
					marks = append(marks, "default")
				}
				if id == toolModel {
					marks = append(marks, "tools")
				}
				if len(marks) > 0 {
					fmt.Fprintf(a.stdout, "%s (%s)\n", id, strings.Join(marks, ", "))
				} else {
					fmt.Fprintln(a.stdout, id)
				}
			}
			return nil
		},
	}

	cmd.AddCommand(list, available)
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.build(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			defer s.Close()

			if addr == "" {
				addr = s.cfg.Server.Addr
			}
			srv := server.New(s.assistant, func(o *server.Options) {
				o.Logger = s.logger
				o.MaxInFlight = s.cfg.Server.MaxInFlight
			})
			if err := srv.ListenAndServe(cmd.Context(), addr); err != nil {
				return a.fail(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import tickets and documents from a YAML file into the SQLite store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return a.fail(err)
			}
			if cfg.Storage.Driver != config.StorageSQLite {
				return a.fail(core.NewConfigError("import requires storage.driver %q", config.StorageSQLite))
			}
			s := &services{cfg: cfg}
			if _, err := s.openStore(cmd.Context()); err != nil {
				return a.fail(err)
			}
			defer s.Close()

			n, err := importSeed(cmd.Context(), s.sqlite, args[0])
			if err != nil {
				return a.fail(err)
			}
			fmt.Fprintf(a.stdout, "imported %d records into %s\n", n, cfg.Storage.Path)
			return nil
		},
	}
}
