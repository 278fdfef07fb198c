package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pithecene-io/backfill/backfill"
)

// addLeafFlag registers --leaf, which turns the named dataset into a
// composite of the given leaves.
func addLeafFlag(fs *pflag.FlagSet, leaves *[]string) {
	fs.StringSliceVar(leaves, "leaf", nil, "leaf dataset of a composite (repeatable)")
}

// datasetFrom builds a leaf dataset, or a composite when leaves are given.
func datasetFrom(name string, leaves []string) backfill.Dataset {
	if len(leaves) == 0 {
		return backfill.NewLeaf(name)
	}
	children := make([]backfill.Dataset, 0, len(leaves))
	for _, leaf := range leaves {
		children = append(children, backfill.NewLeaf(leaf))
	}
	return backfill.NewComposite(name, children...)
}

func newResourceCmd(a *app) *cobra.Command {
	var noBackfill, force bool

	cmd := &cobra.Command{
		Use:   "resource <dataset> <resource>",
		Short: "Print the local path of a dataset resource, backfilling it if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []backfill.ResourceOption
			if noBackfill {
				opts = append(opts, backfill.WithoutBackfill())
			}
			if force {
				opts = append(opts, backfill.WithForceBackfill())
			}
			path, err := a.archive.GetDatasetResource(cmd.Context(), backfill.NewLeaf(args[0]), args[1], opts...)
			if err != nil {
				return notAvailable(err, args[1])
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}
	cmd.Flags().BoolVar(&noBackfill, "no-backfill", false, "do not fall back to the archive")
	cmd.Flags().BoolVar(&force, "force", false, "copy from the archive even if a local file exists")
	return cmd
}

func newIndexCmd(a *app) *cobra.Command {
	var noBackfill bool

	cmd := &cobra.Command{
		Use:   "index <dataset>",
		Short: "Print the local path of a dataset index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.archive.GetDatasetIndex(cmd.Context(), args[0], !noBackfill)
			if err != nil {
				return notAvailable(err, backfill.IndexFile)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}
	cmd.Flags().BoolVar(&noBackfill, "no-backfill", false, "do not fall back to the archive")
	return cmd
}

func newResourcesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resources <dataset>",
		Short: "List the resources manifest of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.archive.DatasetResources(cmd.Context(), backfill.NewLeaf(args[0]))
			if err != nil {
				return notAvailable(err, backfill.ResourcesFile)
			}
			out := cmd.OutOrStdout()
			for _, r := range res.Resources {
				if _, err := fmt.Fprintf(out, "%s\t%d\t%s\t%s\n", r.Name, r.Size, r.MimeType, r.Checksum); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newIssuesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "issues <dataset>",
		Short: "Print the issues log of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			it, err := a.archive.IterDatasetIssues(cmd.Context(), backfill.NewLeaf(args[0]))
			if err != nil {
				return notAvailable(err, backfill.IssuesLog)
			}
			defer func() { _ = it.Close() }()

			out := cmd.OutOrStdout()
			for it.Next() {
				issue := it.Issue()
				if _, err := fmt.Fprintf(out, "%s\t%s\t%s\n", issue.Level, issue.EntityID, issue.Message); err != nil {
					return err
				}
			}
			return it.Err()
		},
	}
}

func newStatementsCmd(a *app) *cobra.Command {
	var (
		leaves     []string
		previous   bool
		noExternal bool
		format     string
		output     string
		compress   string
	)

	cmd := &cobra.Command{
		Use:   "statements <dataset>",
		Short: "Stream the statements of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds := datasetFrom(args[0], leaves)

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				file, err := os.Create(output)
				if err != nil {
					return err
				}
				defer func() { _ = file.Close() }()
				w = file
			}

			comp, ok := backfill.NewCompressor(compress)
			if !ok {
				return fmt.Errorf("unknown compressor %q", compress)
			}
			cw, err := comp.Compress(w)
			if err != nil {
				return err
			}

			var it backfill.StatementIterator
			if previous {
				it = a.archive.IterPreviousStatements(cmd.Context(), ds, !noExternal)
			} else {
				it = a.archive.IterDatasetStatements(cmd.Context(), ds, !noExternal)
			}

			var n int
			switch format {
			case "csv":
				n, err = backfill.WriteStatementsCSV(cw, it, a.archive.Codec())
			case "jsonl":
				n, err = backfill.WriteStatementsJSONL(cw, it)
			case "parquet":
				n, err = backfill.WriteStatementsParquet(cw, it)
			default:
				_ = it.Close()
				return fmt.Errorf("unknown format %q", format)
			}
			if err != nil {
				return err
			}
			if err := cw.Close(); err != nil {
				return err
			}
			a.logger.Sugar().Infow("statements written", "dataset", ds.Name(), "count", n, "format", format)
			return nil
		},
	}

	fs := cmd.Flags()
	addLeafFlag(fs, &leaves)
	fs.BoolVar(&previous, "previous", false, "read the archived release instead of current data")
	fs.BoolVar(&noExternal, "no-external", false, "skip statements flagged external")
	fs.StringVar(&format, "format", "csv", "output format: csv, jsonl, parquet")
	fs.StringVarP(&output, "output", "o", "", "output file (default stdout)")
	fs.StringVar(&compress, "compress", "noop", "output compression: noop, gzip, zstd, lz4")
	return cmd
}

func newPathsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "paths <dataset>",
		Short: "Print the durable and state directories of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := a.archive.Paths()
			durable, err := paths.DatasetPath(args[0])
			if err != nil {
				return err
			}
			state, err := paths.DatasetStatePath(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, err = fmt.Fprintf(out, "dataset\t%s\nstate\t%s\narchive\t%s\n",
				durable, state, a.archive.BlobKey(args[0], backfill.StatementsFile))
			return err
		},
	}
}
