/*
Copyright 2011 The Perkeep Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command packmirror-update is a CLI front-end over pkg/update's
// Update and Install entry points, the way the original's
// cmsis-update::update/::install free functions got a thin CLI wrapper
// so the pipeline was exercisable without a C host. It is grounded on
// cmd/pk-get's flat flag.Parse + subcommand-by-first-arg style.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go4.org/legal"

	"packmirror.dev/packmirror/pkg/config"
	"packmirror.dev/packmirror/pkg/dstore"
	"packmirror.dev/packmirror/pkg/fetch"
	"packmirror.dev/packmirror/pkg/pipeline"
	"packmirror.dev/packmirror/pkg/update"
)

func init() {
	legal.RegisterLicense(`
This software contains code subject to the Apache License, Version 2.0,
reproduced at http://www.apache.org/licenses/LICENSE-2.0.
`)
}

var (
	flagPackStore = flag.String("pack_store", "", "Root directory for the descriptor index and materialized files. Defaults to the platform data directory if empty.")
	flagVidxList  = flag.String("vidx_list", "", "Path to a newline-delimited list of vendor index URLs. Defaults to $PACKMIRROR_VIDX_LIST, else vidx_list.txt in the default pack store (not in -pack_store), if empty.")
	flagLegal     = flag.Bool("legal", false, "show licenses and exit")
	flagVerbose   = flag.Bool("verbose", false, "extra logging")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [flags] <update|install> [args]

  update
      Fetch every vendor index in -vidx_list, upsert every descriptor
      reference found, and materialize each .pdsc file.

  install <vendor> <name> <version> <url>
      Materialize a single .pack archive for the given descriptor key.

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *flagLegal {
		for _, text := range legal.Licenses() {
			fmt.Fprintln(os.Stderr, text)
		}
		return
	}

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	logWriter := os.Stderr
	logger := log.New(logWriter, "", log.LstdFlags)

	cfg, err := config.NewBuilder().
		WithPackStore(*flagPackStore).
		WithVidxList(*flagVidxList).
		Build()
	if err != nil {
		log.Fatalf("packmirror-update: %v", err)
	}

	store, err := dstore.Open(cfg.DBPath(), logger)
	if err != nil {
		log.Fatalf("packmirror-update: %v", err)
	}
	defer store.Close()

	fetcher := fetch.NewFetcher(logger)
	progress := consoleProgress{verbose: *flagVerbose}

	switch cmd := flag.Arg(0); cmd {
	case "update":
		runUpdate(cfg, store, fetcher, progress, logger)
	case "install":
		runInstall(flag.Args()[1:], cfg, store, fetcher, progress, logger)
	default:
		fmt.Fprintf(os.Stderr, "packmirror-update: unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
}

func runUpdate(cfg config.Config, store *dstore.Store, fetcher *fetch.Fetcher, progress pipeline.Progress, logger *log.Logger) {
	vidxURLs, err := cfg.ReadVidxList()
	if err != nil {
		log.Fatalf("packmirror-update: %v", err)
	}

	done, err := update.Update(context.Background(), cfg, vidxURLs, fetcher, store, progress, logger)
	if err != nil {
		log.Fatalf("packmirror-update: %v", err)
	}
	for _, path := range done {
		fmt.Println(path)
	}
}

func runInstall(args []string, cfg config.Config, store *dstore.Store, fetcher *fetch.Fetcher, progress pipeline.Progress, logger *log.Logger) {
	if len(args) != 4 {
		fmt.Fprintln(os.Stderr, "packmirror-update: install requires <vendor> <name> <version> <url>")
		os.Exit(2)
	}
	key := dstore.PdscKey{Vendor: args[0], Name: args[1], Version: args[2], URL: args[3]}

	done, err := update.Install(context.Background(), cfg, []dstore.PdscKey{key}, fetcher, store, progress, logger)
	if err != nil {
		log.Fatalf("packmirror-update: %v", err)
	}
	for _, path := range done {
		fmt.Println(path)
	}
}

// consoleProgress prints a line as each file starts and another as each
// file completes when -verbose is set; otherwise it only announces the
// total count, the way cmd/pk-get
// gates its own verbose HTTP summaries behind -verbose_http.
type consoleProgress struct {
	verbose bool
}

func (p consoleProgress) Size(n int) {
	fmt.Fprintf(os.Stderr, "packmirror-update: %d item(s) to process\n", n)
}

func (p consoleProgress) Complete() {
	if p.verbose {
		fmt.Fprintln(os.Stderr, "packmirror-update: one item complete")
	}
}

func (p consoleProgress) ForFile(dest string) pipeline.Progress {
	if p.verbose {
		fmt.Fprintf(os.Stderr, "packmirror-update: -> %s\n", dest)
	}
	return p
}
