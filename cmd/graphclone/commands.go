package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"graphclone/internal/core"
	"graphclone/internal/plan"
	"graphclone/pkg/domain"
)

func (a *app) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Store the record graphs of a seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := plan.LoadSeedFile(args[0])
			if err != nil {
				return err
			}
			roots, err := seed.Build(a.model)
			if err != nil {
				return err
			}
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.Seed(cmd.Context(), roots...)
			if err != nil {
				return err
			}
			p := newPrinter(a.out)
			for _, root := range roots {
				p.record(root)
			}
			p.violations(res)
			return nil
		},
	}
}

func (a *app) cloneCmd() *cobra.Command {
	var (
		force bool
		into  string
	)
	cmd := &cobra.Command{
		Use:   "clone <type> <id>",
		Short: "Copy a stored record and its declared associations",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := core.CloneRequest{Type: domain.EntityType(args[0]), ID: args[1], Force: force}
			if into != "" {
				dest, err := core.ParseDestination(into)
				if err != nil {
					return err
				}
				req.Into = &dest
			}
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.Clone(cmd.Context(), req)
			if err != nil {
				return err
			}
			p := newPrinter(a.out)
			p.record(res.Copy)
			p.violations(res.Result)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "persist the copy before returning")
	cmd.Flags().StringVar(&into, "into", "", "attach the copy to type/id/association")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <type> <id>",
		Short: "Print a stored record graph",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := svc.Get(domain.EntityType(args[0]), args[1])
			if err != nil {
				return err
			}
			newPrinter(a.out).record(rec)
			return nil
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <type>",
		Short: "List stored records of a type, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			p := newPrinter(a.out)
			for _, rec := range svc.List(domain.EntityType(args[0])) {
				p.line(rec, 0)
			}
			return nil
		},
	}
}

func (a *app) typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "Describe the clone specs declared by the plan",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			p := newPrinter(a.out)
			for _, t := range a.registry.Types() {
				spec, err := a.registry.Resolve(t)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, p.typ(t))
				if cleared := spec.Cleared(); len(cleared) > 0 {
					fmt.Fprintf(a.out, "  %s %s\n", p.key("nullify:"), strings.Join(cleared, ", "))
				}
				for _, assoc := range spec.Associations() {
					fmt.Fprintf(a.out, "  %s %s%s\n", p.key("association:"), assoc.Name, optionNotes(assoc.Options.Force, assoc.Options.Before != nil, assoc.Options.After != nil))
				}
				if spec.Before() != nil || spec.After() != nil {
					fmt.Fprintf(a.out, "  %s%s\n", p.key("hooks:"), optionNotes(false, spec.Before() != nil, spec.After() != nil))
				}
			}
			return nil
		},
	}
}

func optionNotes(force, before, after bool) string {
	var notes []string
	if force {
		notes = append(notes, "force")
	}
	if before {
		notes = append(notes, "before")
	}
	if after {
		notes = append(notes, "after")
	}
	if len(notes) == 0 {
		return ""
	}
	return " (" + strings.Join(notes, ", ") + ")"
}
