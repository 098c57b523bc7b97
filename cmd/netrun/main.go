/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/carverauto/netrun/pkg/config"
	"github.com/carverauto/netrun/pkg/dispatch"
	"github.com/carverauto/netrun/pkg/inventory"
	"github.com/carverauto/netrun/pkg/logger"
	"github.com/carverauto/netrun/pkg/models"
	"github.com/carverauto/netrun/pkg/runner"
	"github.com/carverauto/netrun/pkg/session"
)

const runTimestampLayout = "2006-01-02 15.04"

type options struct {
	pull         bool
	push         bool
	saveOnly     bool
	inventory    string
	apiConfig    string
	jobfile      string
	workers      string
	output       string
	quiet        bool
	verbose      bool
	noPreload    bool
	organize     bool
	sessionDebug bool
	promptDelim  string
}

func parseFlags() *options {
	opts := &options{}

	flag.BoolVar(&opts.pull, "pull", false, "Pull mode: retrieve command output from devices")
	flag.BoolVar(&opts.push, "push", false, "Push mode: send configuration lines to devices")
	flag.BoolVar(&opts.saveOnly, "save-only", false, "Save mode: only trigger a configuration save")
	flag.StringVar(&opts.inventory, "i", "", "Delimited inventory file to load")
	flag.StringVar(&opts.inventory, "inventory", "", "Delimited inventory file to load")
	flag.StringVar(&opts.apiConfig, "api-config", "", "Remote device-management API config file")
	flag.StringVar(&opts.jobfile, "j", "", "File containing commands or config lines, one per row")
	flag.StringVar(&opts.jobfile, "jobfile", "", "File containing commands or config lines, one per row")
	flag.StringVar(&opts.workers, "t", "", "Number of devices to connect to at once")
	flag.StringVar(&opts.workers, "workers", "", "Number of devices to connect to at once")
	flag.StringVar(&opts.output, "o", "Output", "Output directory root")
	flag.BoolVar(&opts.quiet, "q", false, "Suppress most output")
	flag.BoolVar(&opts.verbose, "v", false, "Enable verbose output")
	flag.BoolVar(&opts.noPreload, "no-preload", false, "Disable jobfile caching; re-read per device")
	flag.BoolVar(&opts.organize, "organize", false, "Write artifacts flat and organize them afterwards")
	flag.BoolVar(&opts.sessionDebug, "session-debug", false, "Write raw per-device session transcripts")
	flag.StringVar(&opts.promptDelim, "prompt-delimiter", session.DefaultPromptDelimiter, "Prompt delimiter character")
	flag.Parse()

	return opts
}

func (o *options) validate() error {
	modes := 0
	for _, m := range []bool{o.pull, o.push, o.saveOnly} {
		if m {
			modes++
		}
	}

	if modes != 1 {
		return fmt.Errorf("exactly one of --pull, --push, --save-only is required")
	}

	if (o.inventory == "") == (o.apiConfig == "") {
		return fmt.Errorf("exactly one of --inventory or --api-config is required")
	}

	if o.jobfile == "" && !o.saveOnly {
		return fmt.Errorf("--jobfile is required for pull and push modes")
	}

	if o.quiet && o.verbose {
		return fmt.Errorf("--quiet and --verbose are mutually exclusive")
	}

	return nil
}

func (o *options) mode() models.Mode {
	switch {
	case o.push:
		return models.ModePush
	case o.saveOnly:
		return models.ModeSaveOnly
	default:
		return models.ModePull
	}
}

func (o *options) logLevel() string {
	switch {
	case o.quiet:
		return "error"
	case o.verbose:
		return "debug"
	default:
		return "warn"
	}
}

// bannerRecords returns the startup banner, logged at warning so it shows at
// the default verbosity.
func bannerRecords() []models.LogRecord {
	lines := []string{
		"netrun - bulk network device job runner",
		"Copyright 2025 Carver Automation Corporation",
	}

	records := make([]models.LogRecord, 0, len(lines))
	for _, line := range lines {
		records = append(records, models.LogRecord{
			Level:   models.LevelWarning,
			Source:  "main",
			Message: line,
		})
	}

	return records
}

func main() {
	opts := parseFlags()

	if err := opts.validate(); err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}

	zlog, err := logger.New(logger.Config{Level: opts.logLevel()})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	funnel := dispatch.NewFunnel(zlog)
	funnel.Start()
	logs := funnel.Records()

	for _, record := range bannerRecords() {
		logs <- record
	}

	logs <- models.LogRecord{
		Level:   models.LevelWarning,
		Source:  "main",
		Message: fmt.Sprintf("running in operating mode: %s", opts.mode()),
	}

	records, err := loadInventory(ctx, opts, zlog)
	if err != nil {
		log.Fatalf("Failed to load inventory: %v", err)
	}

	runRoot := filepath.Join(opts.output, time.Now().Format(runTimestampLayout))
	if err := os.MkdirAll(runRoot, 0o755); err != nil {
		log.Fatalf("Failed to create output directory %s: %v", runRoot, err)
	}

	spec := models.JobSpec{
		Mode:       opts.mode(),
		OutputRoot: runRoot,
		FlatOutput: opts.organize,
	}

	if opts.jobfile != "" && !opts.noPreload {
		items, err := runner.LoadJobFile(opts.jobfile)
		if err != nil {
			log.Fatalf("Failed to load jobfile: %v", err)
		}

		spec.Items = items
	}

	dialer := &session.SSHDialer{PromptDelimiter: opts.promptDelim}
	if opts.sessionDebug {
		dialer.Transcript = func(host string) (io.WriteCloser, error) {
			name := "session." + runner.SanitizeFilename(host) + ".log"
			return os.Create(filepath.Join(runRoot, name))
		}
	}

	jobRunner := &runner.Runner{
		Dialer:          dialer,
		Spec:            spec,
		JobfilePath:     opts.jobfile,
		PromptDelimiter: opts.promptDelim,
		Logs:            logs,
	}

	dispatcher := &dispatch.Dispatcher{
		Workers: dispatch.NormalizeWorkers(opts.workers, logs),
		Runner:  jobRunner,
		Funnel:  funnel,
	}

	if opts.organize {
		results := make(chan models.ResultEvent, dispatch.DefaultWorkers*4)
		jobRunner.Results = results
		dispatcher.Results = results
		dispatcher.Organizer = dispatch.NewOrganizer(results, runRoot, logs)
		dispatcher.Organizer.Start()
	}

	stats := dispatcher.Run(ctx, records)
	dispatcher.Shutdown(stats)
}

func loadInventory(ctx context.Context, opts *options, zlog logger.Logger) ([]models.DeviceRecord, error) {
	var src inventory.Source

	if opts.apiConfig != "" {
		cfgLoader := config.NewConfig(zlog)

		var apiCfg inventory.APIConfig

		if err := cfgLoader.LoadAndValidate(ctx, opts.apiConfig, &apiCfg); err != nil {
			return nil, err
		}

		src = inventory.NewAPISource(ctx, &apiCfg, zlog)
	} else {
		fileSrc, err := inventory.NewFileSource(opts.inventory, zlog)
		if err != nil {
			return nil, err
		}

		src = fileSrc
	}

	return inventory.Collect(src)
}
