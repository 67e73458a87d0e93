package args

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// parseDuration parses a human-readable duration string
func parseDuration(s string) (time.Duration, error) {
	duration, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %s. Please use Go duration format (e.g., '500ms', '30s', '1m')", err)
	}
	return duration, nil
}

// Args represents the main command line arguments
type Args struct {
	DB     string     `json:"db"`
	Config string     `json:"config"`
	SubCmd SubCommand `json:"subcmd"`
}

// SubCommand represents the subcommands available
type SubCommand struct {
	Name         string        `json:"name"`
	HeaderArgs   *HeaderArgs   `json:"header_args,omitempty"`
	StatArgs     *StatArgs     `json:"stat_args,omitempty"`
	ReadArgs     *ReadArgs     `json:"read_args,omitempty"`
	RegisterArgs *RegisterArgs `json:"register_args,omitempty"`
	DropArgs     *DropArgs     `json:"drop_args,omitempty"`
	TilesArgs    *TilesArgs    `json:"tiles_args,omitempty"`
	BatchArgs    *BatchArgs    `json:"batch_args,omitempty"`
}

// HeaderArgs represents arguments for the header subcommand
type HeaderArgs struct {
	Locator string `json:"locator"`
	Length  uint64 `json:"length"`
}

// StatArgs represents arguments for the stat subcommand
type StatArgs struct {
	Locator string `json:"locator"`
}

// ReadArgs represents arguments for the read subcommand
type ReadArgs struct {
	Locator string        `json:"locator"`
	Ranges  []string      `json:"ranges"`
	Timeout time.Duration `json:"timeout"`
	Stats   bool          `json:"stats"`
}

// RegisterArgs represents arguments for the register subcommand
type RegisterArgs struct {
	ManifestPath string `json:"manifest_path"`
}

// DropArgs represents arguments for the drop subcommand
type DropArgs struct {
	Locator string `json:"locator"`
}

// TilesArgs represents arguments for the tiles subcommand
type TilesArgs struct {
	Locator string   `json:"locator"`
	Tiles   []uint64 `json:"tiles"`
}

// BatchArgs represents arguments for the batch subcommand
type BatchArgs struct {
	Input   string        `json:"input"`
	Timeout time.Duration `json:"timeout"`
}

// Global variables to store parsed arguments
var (
	globalArgs Args
	rootCmd    *cobra.Command
)

// createRootCmd creates the root command
func createRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cogrange",
		Short: "Byte-range reads of tiled rasters on object storage",
		Long: `Reads headers, byte ranges and tiles of Cloud-Optimized GeoTIFFs and other
tiled objects from local files, HTTP servers, S3, GCS and Azure Blob Storage.
Every result is printed as one JSON object per line.`,
		SilenceUsage: true,
	}

	// Add global flags
	cmd.PersistentFlags().StringVar(&globalArgs.DB, "db", "",
		"Tile catalog DB url (postgres://... or sqlite:path). Can also be provided by a DATABASE_URL env var, but only if this arg is not provided.")
	cmd.PersistentFlags().StringVar(&globalArgs.Config, "config", "",
		"Path to a YAML or JSON config file with backend settings.")

	return cmd
}

// createHeaderCmd creates the header subcommand
func createHeaderCmd() *cobra.Command {
	headerArgs := &HeaderArgs{}

	cmd := &cobra.Command{
		Use:   "header [locator]",
		Short: "Read the header of an object",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			headerArgs.Locator = args[0]
			globalArgs.SubCmd = SubCommand{
				Name:       "header",
				HeaderArgs: headerArgs,
			}
		},
	}

	cmd.Flags().Uint64VarP(&headerArgs.Length, "length", "l", 0,
		"Number of header bytes to read. Defaults to the configured header length.")

	return cmd
}

// createStatCmd creates the stat subcommand
func createStatCmd() *cobra.Command {
	statArgs := &StatArgs{}

	cmd := &cobra.Command{
		Use:   "stat [locator]",
		Short: "Print the size of an object",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			statArgs.Locator = args[0]
			globalArgs.SubCmd = SubCommand{
				Name:     "stat",
				StatArgs: statArgs,
			}
		},
	}

	return cmd
}

// createReadCmd creates the read subcommand
func createReadCmd() *cobra.Command {
	readArgs := &ReadArgs{}

	cmd := &cobra.Command{
		Use:   "read [locator] [start-end]...",
		Short: "Read byte ranges of an object",
		Long: `Read one or more end-inclusive byte ranges of an object.
Touching and overlapping ranges are fetched with a single request.`,
		Args: cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			readArgs.Locator = args[0]
			readArgs.Ranges = args[1:]
			globalArgs.SubCmd = SubCommand{
				Name:     "read",
				ReadArgs: readArgs,
			}
		},
	}

	var timeoutStr string
	cmd.Flags().StringVar(&timeoutStr, "timeout", "",
		"Per-request timeout overriding the backend setting. Examples: '500ms', '10s'.")
	cmd.Flags().BoolVar(&readArgs.Stats, "stats", false,
		"Print reader statistics after the ranges.")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if timeoutStr == "" {
			return nil
		}
		duration, err := parseDuration(timeoutStr)
		if err != nil {
			return fmt.Errorf("error parsing timeout: %w", err)
		}
		readArgs.Timeout = duration
		return nil
	}

	return cmd
}

// createRegisterCmd creates the register subcommand
func createRegisterCmd() *cobra.Command {
	registerArgs := &RegisterArgs{}

	cmd := &cobra.Command{
		Use:   "register [manifest_path]",
		Short: "Register the tile layout of an object",
		Long: `Register the tile layout of an object from a YAML or JSON manifest.
Readers opened on a registered locator start with its tile index populated.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			registerArgs.ManifestPath = args[0]
			globalArgs.SubCmd = SubCommand{
				Name:         "register",
				RegisterArgs: registerArgs,
			}
		},
	}

	return cmd
}

// createDropCmd creates the drop subcommand
func createDropCmd() *cobra.Command {
	dropArgs := &DropArgs{}

	cmd := &cobra.Command{
		Use:   "drop [locator]",
		Short: "Drop a registered tile layout",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dropArgs.Locator = args[0]
			globalArgs.SubCmd = SubCommand{
				Name:     "drop",
				DropArgs: dropArgs,
			}
		},
	}

	return cmd
}

// createTilesCmd creates the tiles subcommand
func createTilesCmd() *cobra.Command {
	tilesArgs := &TilesArgs{}

	cmd := &cobra.Command{
		Use:   "tiles [locator] [tile_index]...",
		Short: "List or read the tiles of a registered object",
		Long: `Without tile indices, list the registered tile layout of an object.
With tile indices, read those tiles.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tilesArgs.Locator = args[0]
			for _, arg := range args[1:] {
				tile, err := strconv.ParseUint(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid tile index '%s': %w", arg, err)
				}
				tilesArgs.Tiles = append(tilesArgs.Tiles, tile)
			}
			globalArgs.SubCmd = SubCommand{
				Name:      "tiles",
				TilesArgs: tilesArgs,
			}
			return nil
		},
	}

	return cmd
}

// createBatchCmd creates the batch subcommand
func createBatchCmd() *cobra.Command {
	batchArgs := &BatchArgs{}

	cmd := &cobra.Command{
		Use:   "batch [input]",
		Short: "Run read requests from a JSONL file",
		Long: `Run read requests from a JSONL file, one request per line:
  {"id": "a", "locator": "s3://bucket/scene.tif", "ranges": [[0, 1023]], "tiles": [3, 4]}
Read from stdin by not providing any file path. Readers are shared between
requests on the same locator, so repeated ranges are served from cache.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) > 0 {
				batchArgs.Input = args[0]
			}
			globalArgs.SubCmd = SubCommand{
				Name:      "batch",
				BatchArgs: batchArgs,
			}
		},
	}

	var timeoutStr string
	cmd.Flags().StringVar(&timeoutStr, "timeout", "",
		"Per-request timeout overriding the backend setting. Examples: '500ms', '10s'.")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if timeoutStr == "" {
			return nil
		}
		duration, err := parseDuration(timeoutStr)
		if err != nil {
			return fmt.Errorf("error parsing timeout: %w", err)
		}
		batchArgs.Timeout = duration
		return nil
	}

	return cmd
}

// newRootCmd builds the full command tree
func newRootCmd() *cobra.Command {
	cmd := createRootCmd()

	cmd.AddCommand(createHeaderCmd())
	cmd.AddCommand(createStatCmd())
	cmd.AddCommand(createReadCmd())
	cmd.AddCommand(createRegisterCmd())
	cmd.AddCommand(createDropCmd())
	cmd.AddCommand(createTilesCmd())
	cmd.AddCommand(createBatchCmd())

	return cmd
}

// ParseArgs parses command line arguments and returns Args struct
func ParseArgs() (*Args, error) {
	return parse(nil)
}

// parse runs the command tree on argv, or on os.Args when argv is nil
func parse(argv []string) (*Args, error) {
	// Initialize global args
	globalArgs = Args{}

	rootCmd = newRootCmd()
	if argv != nil {
		rootCmd.SetArgs(argv)
	}

	if err := rootCmd.Execute(); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	return &globalArgs, nil
}
