package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go.ngs.io/wms-api/internal/adapter/store/formats"
	"go.ngs.io/wms-api/internal/domain"
	"go.ngs.io/wms-api/internal/render"
	"go.ngs.io/wms-api/internal/usecase"
)

const version = "0.1.0"

type scanOptions struct {
	grouped   bool
	recursive bool
	workers   int
	asJSON    bool
	verbose   bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wms-inspect",
		Short: "Inspect meteorological data files served by wms-api.",
		Long: `wms-inspect reads GRIB, NetCDF and GeoJSON files with the same readers
as the server and reports the layers, dimensions and styles they provide.`,
		SilenceUsage: true,
	}
	root.AddCommand(newScanCmd(), newDetectCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of wms-inspect",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wms-inspect v%s\n", version)
		},
	}
}

func newScanCmd() *cobra.Command {
	var opts scanOptions
	cmd := &cobra.Command{
		Use:   "scan <path>",
		Short: "List the layers found below a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args[0], opts)
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&opts.grouped, "grouped", false, "merge the levels of a parameter into one layer")
	flags.BoolVar(&opts.recursive, "recursive", true, "descend into subdirectories")
	flags.IntVar(&opts.workers, "workers", 4, "files read concurrently")
	flags.BoolVar(&opts.asJSON, "json", false, "print the availability report as JSON")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log every scanned file")
	return cmd
}

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <file>...",
		Short: "Print the format and field count of each file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := formats.NewRegistry(newLogger(cmd.ErrOrStderr(), false))
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FILE\tFORMAT\tFIELDS")
			for _, path := range args {
				name, _, err := registry.Detect(path)
				if err != nil {
					fmt.Fprintf(w, "%s\t-\t%v\n", path, err)
					continue
				}
				batch, err := registry.Extract(cmd.Context(), path)
				if err != nil {
					fmt.Fprintf(w, "%s\t%s\t%v\n", path, name, err)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%d\n", path, name, len(batch.Fields()))
			}
			return w.Flush()
		},
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func runScan(cmd *cobra.Command, path string, opts scanOptions) error {
	logger := newLogger(cmd.ErrOrStderr(), opts.verbose)
	a := usecase.NewAvailability(path, formats.NewRegistry(logger), usecase.AvailabilityOptions{
		Grouped:   opts.grouped,
		Recursive: opts.recursive,
		Workers:   opts.workers,
		Styler:    render.NewDefaultStyler(),
	}, logger)
	service := usecase.NewWMSService(a, nil, usecase.WMSOptions{}, logger)

	report, err := service.Availability(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return printReport(out, report)
}

func printReport(out io.Writer, report *usecase.AvailabilityReport) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LAYER\tTITLE\tFIELDS\tDIMENSIONS\tSTYLES")
	for _, l := range report.Layers {
		dims := make([]string, len(l.Dimensions))
		for i, d := range l.Dimensions {
			dims[i] = fmt.Sprintf("%s=%s", d.Name, d.Extent)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			l.Name, l.Title, len(l.Fields), strings.Join(dims, " "), strings.Join(l.Styles, ","))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if def, ok := report.Aliases[domain.DefaultAlias]; ok {
		fmt.Fprintf(out, "\ndefault layer: %s\n", def)
	}

	var failed []string
	for p, st := range report.Paths {
		if st.Status == usecase.StatusError {
			failed = append(failed, fmt.Sprintf("  %s: %s", p, st.Error))
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		fmt.Fprintf(out, "\nfailed files:\n%s\n", strings.Join(failed, "\n"))
	}
	return nil
}
