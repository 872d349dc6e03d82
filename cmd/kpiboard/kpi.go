package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kpiboard/internal/kpistore"
)

func newKPICmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kpi",
		Short: "Inspect and edit KPI documents",
	}
	cmd.AddCommand(
		newKPIValidateCmd(a),
		newKPIListCmd(a),
		newKPIAddCmd(a),
		newKPISetCurrentCmd(a),
		newKPIDeleteCmd(a),
		newKPINormalizeCmd(a),
		newKPIProposeCmd(a),
		newKPIApplyCmd(a),
	)
	return cmd
}

func (a *app) loadStore() (*kpistore.Store, error) {
	store, err := kpistore.LoadFromDir(a.ws.KPIsDir)
	if err != nil {
		return nil, fmt.Errorf("load kpis: %w", err)
	}
	return store, nil
}

// saveStore writes the documents touched by a mutation and reports them.
func (a *app) saveStore(store *kpistore.Store, finish map[string]any) error {
	written, err := store.Save()
	if err != nil {
		return err
	}
	finish["files"] = written
	for _, path := range written {
		fmt.Fprintf(a.out, "Wrote %s\n", a.ws.Rel(path))
	}
	return nil
}

func newKPIValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate every KPI document in the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := kpistore.LoadFromDir(a.ws.KPIsDir)
			if err != nil {
				var verrs kpistore.ValidationErrors
				if errors.As(err, &verrs) {
					for _, v := range verrs {
						fmt.Fprintf(a.errOut, "  %s\n", v.Error())
					}
					return fmt.Errorf("validation failed: %d issue(s)", len(verrs))
				}
				return err
			}
			kpis, activities, tasks, records := store.Counts()
			fmt.Fprintf(a.out, "OK: %d KPIs, %d activities, %d tasks, %d records in %s\n",
				kpis, activities, tasks, records, a.ws.KPIsDir)
			return nil
		},
	}
}

func newKPIListCmd(a *app) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List KPIs with their derived status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter kpistore.Category
			if category != "" {
				parsed, err := kpistore.ParseCategory(category)
				if err != nil {
					return err
				}
				filter = parsed
			}
			store, err := a.loadStore()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATEGORY\tSTATUS\tCURRENT/TARGET\tTITLE")
			for _, coll := range store.Collections() {
				if filter != "" && coll.Category != filter {
					continue
				}
				for _, kpi := range coll.KPIs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%g/%g%s\t%s\n",
						kpi.ID, coll.Category, kpi.Status, kpi.Current, kpi.Target, kpi.Unit, kpi.Title)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only list one category (safety, lease, asset, infra, custom)")
	return cmd
}

func newKPIAddCmd(a *app) *cobra.Command {
	var kpi kpistore.KPI
	var category string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a KPI to its category document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := kpistore.ParseCategory(category)
			if err != nil {
				return err
			}
			kpi.Category = parsed
			return a.track("cli", "kpi_add", map[string]any{"kpi_id": kpi.ID, "category": category}, func(finish map[string]any) error {
				store, err := a.loadStore()
				if err != nil {
					return err
				}
				if err := store.AddKPI(kpi); err != nil {
					return err
				}
				return a.saveStore(store, finish)
			})
		},
	}
	cmd.Flags().StringVar(&kpi.ID, "id", "", "KPI id")
	cmd.Flags().StringVar(&kpi.Title, "title", "", "KPI title")
	cmd.Flags().StringVar(&category, "category", "", "Category (safety, lease, asset, infra, custom)")
	cmd.Flags().Float64Var(&kpi.Target, "target", 0, "Target value")
	cmd.Flags().Float64Var(&kpi.Current, "current", 0, "Current value")
	cmd.Flags().StringVar(&kpi.Unit, "unit", "", "Unit of target and current")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newKPISetCurrentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-current <kpi-id> <value>",
		Short: "Update the current value of a KPI",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("parse value: %w", err)
			}
			return a.track("cli", "kpi_set_current", map[string]any{"kpi_id": args[0], "current": value}, func(finish map[string]any) error {
				store, err := a.loadStore()
				if err != nil {
					return err
				}
				if err := store.SetKPICurrent(args[0], value); err != nil {
					return err
				}
				return a.saveStore(store, finish)
			})
		},
	}
}

func newKPIDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <kpi-id>",
		Short: "Delete a KPI with its activities and tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.track("cli", "kpi_delete", map[string]any{"kpi_id": args[0]}, func(finish map[string]any) error {
				store, err := a.loadStore()
				if err != nil {
					return err
				}
				if err := store.DeleteKPI(args[0]); err != nil {
					return err
				}
				return a.saveStore(store, finish)
			})
		},
	}
}

func newKPINormalizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize",
		Short: "Rewrite documents with canonical status tokens and derived statuses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.track("cli", "kpi_normalize", map[string]any{"kpis_dir": a.ws.KPIsDir}, func(finish map[string]any) error {
				store, err := a.loadStore()
				if err != nil {
					return err
				}
				written, err := store.SaveAll()
				if err != nil {
					return err
				}
				finish["files"] = written
				fmt.Fprintf(a.out, "Normalized %d document(s)\n", len(written))
				return nil
			})
		},
	}
}

func newKPIProposeCmd(a *app) *cobra.Command {
	var author, from, note string
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Package edited KPI documents as a reviewable proposal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			updatesDir, err := a.ws.ResolvePath(from)
			if err != nil {
				return fmt.Errorf("resolve --from: %w", err)
			}
			payload := map[string]any{
				"author":        author,
				"updates_dir":   updatesDir,
				"kpis_dir":      a.ws.KPIsDir,
				"proposals_dir": a.ws.ProposalsDir,
			}
			return a.track(author, "kpi_propose", payload, func(finish map[string]any) error {
				meta, err := kpistore.CreateProposal(kpistore.ProposalOptions{
					Author:        author,
					UpdatesDir:    updatesDir,
					KPIsDir:       a.ws.KPIsDir,
					ProposalsRoot: a.ws.ProposalsDir,
					Note:          note,
				})
				if err != nil {
					return err
				}
				finish["proposal_dir"] = meta.ProposalDir
				finish["files"] = meta.Files

				fmt.Fprintf(a.out, "Proposal created: %s\n", a.ws.Rel(meta.ProposalDir))
				if len(meta.Files) > 0 {
					fmt.Fprintf(a.out, "Included files: %s\n", strings.Join(meta.Files, ", "))
				}
				if meta.DiffFile != "" {
					fmt.Fprintf(a.out, "Diff: %s\n", a.ws.Rel(filepath.Join(meta.ProposalDir, meta.DiffFile)))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "Who proposes the change")
	cmd.Flags().StringVar(&from, "from", "", "Directory with the edited KPI documents")
	cmd.Flags().StringVar(&note, "note", "", "Optional proposal note")
	_ = cmd.MarkFlagRequired("author")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func newKPIApplyCmd(a *app) *cobra.Command {
	var proposal string
	var confirm bool
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a proposal to the live KPI documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			proposalDir, err := a.ws.ResolvePath(proposal)
			if err != nil {
				return fmt.Errorf("resolve --proposal: %w", err)
			}
			return a.track("cli", "kpi_apply", map[string]any{"proposal": proposalDir}, func(finish map[string]any) error {
				meta, err := kpistore.ApplyProposal(proposalDir, confirm)
				if err != nil {
					return err
				}
				finish["kpis_dir"] = meta.KPIsDir
				finish["author"] = meta.Author
				fmt.Fprintf(a.out, "Applied proposal %s to %s\n", meta.ID, a.ws.Rel(meta.KPIsDir))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&proposal, "proposal", "", "Proposal directory")
	cmd.Flags().BoolVar(&confirm, "yes", false, "Confirm overwriting the live documents")
	_ = cmd.MarkFlagRequired("proposal")
	return cmd
}
