/*
Copyright © 2026 the GlacierFlow authors.
This file is part of GlacierFlow.

GlacierFlow is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GlacierFlow is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GlacierFlow.  If not, see <http://www.gnu.org/licenses/>.*/

// Package glacierflowutil holds the command-line interface for
// GlacierFlow.
package glacierflowutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/spatialmodel/glacierflow"
	"github.com/spatialmodel/glacierflow/datacube"
)

// DefaultCatalog is the catalog of the open ITS_LIVE datacube
// archive.
const DefaultCatalog = "https://its-live-data.s3.amazonaws.com/datacubes/catalog_v02.json"

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to GlacierFlow.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "catalog",
			usage: `
              catalog specifies the location of the datacube catalog: a
              GeoJSON feature collection of cube footprints. It may be a
              local file, an http(s) URL or a blob URL (s3://bucket/key).`,
			defaultVal: DefaultCatalog,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "cache_dir",
			usage: `
              cache_dir specifies a directory for caching fetched time
              series between runs. Caching is disabled when empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "plot",
			usage: `
              plot specifies the variable to plot: a datacube variable such
              as v, vx or vy, or an expression such as 'sqrt(vx**2 + vy**2)'.`,
			defaultVal: "v",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags(), fetchCmd.Flags()},
		},
		{
			name: "min_separation_days",
			usage: `
              min_separation_days is the minimum image-pair time separation
              that will be plotted.`,
			defaultVal: 5,
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "max_separation_days",
			usage: `
              max_separation_days is the maximum image-pair time separation
              that will be plotted.`,
			defaultVal: 90,
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "color_by",
			usage: `
              color_by chooses the series coloring: 'points' colors by
              picked point, 'satellite' by the acquiring satellite.`,
			defaultVal: "points",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "running_mean",
			usage: `
              running_mean adds a running-mean line through each plotted
              time series.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "verbose",
			usage: `
              verbose enables diagnostic output.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "addr",
			usage: `
              addr is the address to serve the map widget at.`,
			defaultVal: "localhost:8080",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "open_browser",
			usage: `
              open_browser opens the map widget in the default browser
              after the server starts.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "lon",
			usage: `
              lon is the point longitude (or x coordinate under --epsg).`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{fetchCmd.Flags()},
		},
		{
			name: "lat",
			usage: `
              lat is the point latitude (or y coordinate under --epsg).`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{fetchCmd.Flags()},
		},
		{
			name: "epsg",
			usage: `
              epsg is the EPSG code of the projection --lon and --lat are
              given in.`,
			defaultVal: "4326",
			flagsets:   []*pflag.FlagSet{fetchCmd.Flags()},
		},
		{
			name: "output",
			usage: `
              output is the file the fetched time series is written to.
              The format follows the extension: .csv, .nc or .xlsx.`,
			shorthand:  "o",
			defaultVal: "timeseries.csv",
			flagsets:   []*pflag.FlagSet{fetchCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("GLACIERFLOW")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(serveCmd)
	Root.AddCommand(fetchCmd)
	Root.AddCommand(catalogCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("glacierflow: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// logger returns the process logger at the configured level.
func logger() *logrus.Logger {
	l := logrus.StandardLogger()
	if Cfg.GetBool("verbose") {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// newTools loads the catalog and creates the datacube query layer.
func newTools(ctx context.Context) (*datacube.Tools, error) {
	catalog, err := datacube.LoadCatalog(ctx, os.ExpandEnv(Cfg.GetString("catalog")))
	if err != nil {
		return nil, err
	}
	tools := datacube.NewTools(catalog)
	tools.Log = logger()
	tools.CacheDir = os.ExpandEnv(Cfg.GetString("cache_dir"))
	return tools, nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "glacierflow",
	Short: "An interactive glacier velocity time-series tool.",
	Long: `GlacierFlow plots glacier surface velocity time series from
cloud-hosted ITS_LIVE datacubes. Use the subcommands specified below to
access the functionality.

Configuration can be changed by using a configuration file (and providing
the path to the file using the --config flag), by using command-line
arguments, or by setting environment variables in the format
'GLACIERFLOW_var' where 'var' is the name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration
information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of GlacierFlow.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("GlacierFlow v%s\n", glacierflow.Version)
	},
	DisableAutoGenTag: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the interactive map widget.",
	Long: `serve runs the web server for the interactive map: pick points by
double-clicking, then make a plot of the velocity time series at each
point.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		tools, err := newTools(ctx)
		if err != nil {
			return err
		}
		widget := glacierflow.NewWidget(tools)
		widget.Log = logger()
		err = widget.SetConfigMap(map[string]interface{}{
			"plot":                Cfg.GetString("plot"),
			"min_separation_days": Cfg.GetInt("min_separation_days"),
			"max_separation_days": Cfg.GetInt("max_separation_days"),
			"color_by":            Cfg.GetString("color_by"),
			"running_mean":        Cfg.GetBool("running_mean"),
			"verbose":             Cfg.GetBool("verbose"),
		})
		if err != nil {
			return err
		}
		return widget.Display(ctx, Cfg.GetString("addr"), Cfg.GetBool("open_browser"))
	},
	DisableAutoGenTag: true,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch a time series at one point.",
	Long: `fetch extracts the velocity time series at the point given by
--lon and --lat and writes it to --output. The output format follows the
file extension: .csv, .nc (NetCDF) or .xlsx.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		tools, err := newTools(ctx)
		if err != nil {
			return err
		}
		p := geom.Point{X: Cfg.GetFloat64("lon"), Y: Cfg.GetFloat64("lat")}
		cube, series, err := tools.GetTimeseriesAtPoint(ctx, p, Cfg.GetString("epsg"), Cfg.GetString("plot"))
		if err != nil {
			return err
		}
		cmd.Println(cube.Summary())

		output := os.ExpandEnv(Cfg.GetString("output"))
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		switch ext := strings.ToLower(filepath.Ext(output)); ext {
		case ".csv":
			err = glacierflow.WriteSeriesCSV(f, series)
		case ".nc":
			err = glacierflow.WriteSeriesNetCDF(f, series)
		case ".xlsx":
			err = glacierflow.WriteSeriesXLSX(f, series)
		default:
			err = fmt.Errorf("glacierflow: unsupported output format %q", ext)
		}
		if err != nil {
			return err
		}
		cmd.Printf("wrote %d observations to %s\n", series.Len(), output)
		return nil
	},
	DisableAutoGenTag: true,
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Summarize the datacube catalog.",
	Long: `catalog loads the datacube catalog and prints the number of cubes
and the storage URI and projection of each.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		catalog, err := datacube.LoadCatalog(ctx, os.ExpandEnv(Cfg.GetString("catalog")))
		if err != nil {
			return err
		}
		cmd.Printf("%d datacubes\n", catalog.Len())
		for _, e := range catalog.Entries() {
			cmd.Printf("%s\tEPSG:%s\t%.0f pairs\n", e.URI, e.EPSG, e.PairCount)
		}
		return nil
	},
	DisableAutoGenTag: true,
}
