package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/chunkwise/internal/chat"
	"github.com/hpungsan/chunkwise/internal/errors"
	"github.com/hpungsan/chunkwise/internal/ops"
	"github.com/hpungsan/chunkwise/internal/web"
)

// maxStdinBytes caps piped input (batches, import lists, analysis documents).
const maxStdinBytes = 64 << 20

// newCLIApp creates the CLI application with all commands.
// d may be nil when only --help or --version is requested.
func newCLIApp(d *ops.Deps) *cli.App {
	app := &cli.App{
		Name:    "chunkwise",
		Usage:   "Analyse chat conversations day by day, caching every chunk result",
		Version: Version,
		Commands: []*cli.Command{
			processCmd(d),
			runCmd(d),
			cacheCmd(d),
			chatsCmd(d),
			deleteCmd(d),
			importCmd(d),
			importsCmd(d),
			analysisCmd(d),
			serveCmd(d),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// processCmd creates the process command.
func processCmd(d *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "process",
		Usage: "Analyse one batch {name, start, chunks} read from stdin or --file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read the batch from this file instead of stdin"},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Override the batch's conversation name"},
			&cli.IntFlag{Name: "start", Aliases: []string{"s"}, Usage: "Override the batch's start index"},
		},
		Action: func(c *cli.Context) error {
			if err := d.Config.ValidateService(); err != nil {
				return outputError(err)
			}

			data, err := readInput(c.String("file"))
			if err != nil {
				return outputError(err)
			}

			var input ops.ProcessInput
			if err := json.Unmarshal([]byte(data), &input); err != nil {
				return outputError(errors.NewInvalidRequest("invalid batch JSON: " + err.Error()))
			}
			if name := c.String("name"); name != "" {
				input.Name = name
			}
			if c.IsSet("start") {
				input.Start = c.Int("start")
			}

			output, err := ops.Process(c.Context, d, input)
			if err != nil {
				// Completed chunks are cached; show them before failing.
				if output != nil && len(output.Results) > 0 {
					_ = outputJSON(output)
				}
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// runCmd creates the run command.
func runCmd(d *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Backfill a saved import batch by batch",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Import name"},
			&cli.IntFlag{Name: "start", Aliases: []string{"s"}, Usage: "First chunk index"},
			&cli.BoolFlag{Name: "resume", Aliases: []string{"r"}, Usage: "Start after the chunks already cached"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum chunks to walk (0 = all)"},
			&cli.IntFlag{Name: "batch-size", Aliases: []string{"b"}, Usage: fmt.Sprintf("Chunks per batch, 1-%d (default: config batch_size)", chat.MaxBatchSize)},
			&cli.IntFlag{Name: "min-scenes", Usage: "Stop once the cached results hold this many scenes"},
		},
		Action: func(c *cli.Context) error {
			if err := d.Config.ValidateService(); err != nil {
				return outputError(err)
			}

			output, err := ops.ProcessImport(c.Context, d, ops.ProcessImportInput{
				Name:      c.String("name"),
				Start:     c.Int("start"),
				Resume:    c.Bool("resume"),
				Limit:     c.Int("limit"),
				BatchSize: c.Int("batch-size"),
				MinScenes: c.Int("min-scenes"),
			})
			if err != nil {
				if output != nil {
					_ = outputJSON(output)
				}
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// cacheCmd creates the cache command.
func cacheCmd(d *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Print a conversation's cached results by chunk index",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Conversation name"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.LoadCache(c.Context, d, ops.LoadCacheInput{Name: c.String("name")})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// chatsCmd creates the chats command.
func chatsCmd(d *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "chats",
		Usage: "List saved imports and cached conversations",
		Action: func(c *cli.Context) error {
			output, err := ops.ListChats(c.Context, d)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(d *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "Purge a conversation's cached results and its saved import",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Conversation name"},
			&cli.BoolFlag{Name: "keep-import", Usage: "Only purge the cache, keep the saved import"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.DeleteChat(c.Context, d, ops.DeleteChatInput{
				Name:       c.String("name"),
				KeepImport: c.Bool("keep-import"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(d *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Parse a chat export (.txt or .zip) and save it as an import",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Export file path"},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Conversation name (default: file name)"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: ops.ModeError, Usage: "Collision mode: error|replace"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.AddImport(d, ops.AddImportInput{
				Path: c.String("path"),
				Name: c.String("name"),
				Mode: c.String("mode"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// importsCmd creates the imports command.
func importsCmd(d *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "imports",
		Usage: "Show or replace the saved import list",
		Action: func(c *cli.Context) error {
			output, err := ops.LoadImports(d)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
		Subcommands: []*cli.Command{
			{
				Name:  "save",
				Usage: "Replace the import list with the JSON array read from stdin",
				Action: func(c *cli.Context) error {
					data, err := readInput("")
					if err != nil {
						return outputError(err)
					}

					var imports []chat.Import
					if err := json.Unmarshal([]byte(data), &imports); err != nil {
						return outputError(errors.NewInvalidRequest("invalid import list JSON: " + err.Error()))
					}

					output, err := ops.SaveImports(d, ops.SaveImportsInput{Imports: imports})
					if err != nil {
						return outputError(err)
					}

					return outputJSON(output)
				},
			},
		},
	}
}

// analysisCmd creates the analysis command.
func analysisCmd(d *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "analysis",
		Usage: "Show or replace the recall analysis document",
		Action: func(c *cli.Context) error {
			output, err := ops.LoadAnalysis(d)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output.Analysis)
		},
		Subcommands: []*cli.Command{
			{
				Name:  "save",
				Usage: "Replace the analysis document with the JSON read from stdin",
				Action: func(c *cli.Context) error {
					data, err := readInput("")
					if err != nil {
						return outputError(err)
					}
					if !json.Valid([]byte(data)) {
						return outputError(errors.NewInvalidRequest("analysis document is not valid JSON"))
					}

					output, err := ops.SaveAnalysis(d, ops.SaveAnalysisInput{Analysis: json.RawMessage(data)})
					if err != nil {
						return outputError(err)
					}

					return outputJSON(output)
				},
			},
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(d *ops.Deps) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API and web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind to"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8080, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			if err := d.Config.ValidateService(); err != nil {
				return outputError(err)
			}

			srv := web.NewServer(d, Version, c.String("bind"), c.Int("port"))
			if err := web.Run(srv, d.Logger); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if cErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", cErr.Code, cErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readInput returns the contents of path, or of stdin when path is empty.
func readInput(path string) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return "", errors.NewFileNotFound(path)
			}
			return "", errors.NewInvalidRequest(fmt.Sprintf("cannot read %s: %v", path, err))
		}
		return strings.TrimSpace(string(data)), nil
	}

	if !stdinHasData() {
		return "", errors.NewInvalidRequest("input must be piped via stdin")
	}
	data, err := readStdin(maxStdinBytes)
	if err != nil {
		return "", errors.NewInvalidRequest(err.Error())
	}
	if data == "" {
		return "", errors.NewInvalidRequest("stdin is empty")
	}
	return data, nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("stdin exceeds %d bytes", limit)
	}
	return strings.TrimSpace(string(data)), nil
}
