package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/chmdznr/multi-sa-gdrive-sync/internal/alloc"
	"github.com/chmdznr/multi-sa-gdrive-sync/internal/backup"
	"github.com/chmdznr/multi-sa-gdrive-sync/internal/config"
	"github.com/chmdznr/multi-sa-gdrive-sync/internal/db"
	"github.com/chmdznr/multi-sa-gdrive-sync/internal/drive"
	"github.com/chmdznr/multi-sa-gdrive-sync/internal/executor"
	"github.com/chmdznr/multi-sa-gdrive-sync/internal/rclone"
	"github.com/chmdznr/multi-sa-gdrive-sync/internal/registry"
	"github.com/chmdznr/multi-sa-gdrive-sync/internal/scanner"
	"github.com/chmdznr/multi-sa-gdrive-sync/internal/transfer"
	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/utils"
	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/version"
)

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	app := &cli.App{
		Name:                 "gdsync",
		Usage:                "Upload files across multiple Google Drive service accounts via rclone",
		Version:              version.Version,
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to config file",
				Value: "gdsync.toml",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print generated commands without executing or committing",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					fmt.Printf("Version:    %s\n", version.Version)
					fmt.Printf("Git commit: %s\n", version.GitCommit)
					fmt.Printf("Built:      %s\n", version.BuildTime)
					return nil
				},
			},
			{
				Name:      "upload",
				Usage:     "Upload a local file/directory or a Drive source (id=...) to the virtual tree",
				ArgsUsage: "<source> <destination>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "as-folder",
						Usage: "Nest the source directory under its own name at the destination",
					},
					&cli.BoolFlag{
						Name:  "split",
						Usage: "Allocate each file independently instead of placing the directory on one account",
					},
				},
				Action: uploadAction,
			},
			{
				Name:      "rm",
				Usage:     "Remove a file or folder from the remote accounts and the ledger",
				ArgsUsage: "<path>",
				Action:    removeAction,
			},
			{
				Name:      "tree",
				Usage:     "Print the merged virtual tree, optionally below a path",
				ArgsUsage: "[path]",
				Action:    treeAction,
			},
			{
				Name:   "status",
				Usage:  "Show per-account usage",
				Action: statusAction,
			},
			{
				Name:   "snapshots",
				Usage:  "List available ledger snapshots",
				Action: snapshotsAction,
			},
			{
				Name:  "restore",
				Usage: "Restore the ledger from a snapshot",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "at",
						Usage:    "Snapshot timestamp to restore",
						Required: true,
					},
				},
				Action: restoreAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// env bundles everything one orchestrator run needs.
type env struct {
	cfg    config.Config
	ledger *db.Ledger
	reg    *registry.Registry
	orch   *transfer.Orchestrator
}

func (e *env) Close() {
	if e.ledger != nil {
		e.ledger.Close()
	}
}

// setup loads config and accounts, opens the ledger, seeds usage, and
// wires the orchestrator. Quota refresh happens here, once, before the
// operation; figures are stale afterwards.
func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	accounts, err := registry.LoadDir(cfg.AccountsDir, cfg.DefaultCapacity)
	if err != nil {
		return nil, err
	}
	accounts = append(accounts, cfg.S3()...)
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts found in %s", cfg.AccountsDir)
	}

	if cfg.RefreshQuota {
		for _, err := range drive.RefreshQuota(c.Context, accounts) {
			log.Printf("quota refresh: %v", err)
		}
	}

	ledger, err := db.Open(cfg.LedgerPath)
	if err != nil {
		return nil, err
	}

	reg := registry.New(accounts)
	usage, err := ledger.UsageByAccount()
	if err != nil {
		ledger.Close()
		return nil, err
	}
	reg.SeedUsage(usage)

	// One rclone executor serves every Drive account; S3 executors are
	// bound to their account's endpoint, so each gets its own.
	creds := make(map[string]string)
	rcloneExec := executor.NewRclone(cfg.RcloneBin, cfg.IncludeDir)
	executors := make(map[string]executor.Executor)
	for _, a := range accounts {
		creds[a.ID] = a.CredentialFile
		if a.Kind == models.KindS3 {
			m, err := executor.NewMinio(a)
			if err != nil {
				ledger.Close()
				return nil, err
			}
			executors[a.ID] = m
			continue
		}
		executors[a.ID] = rcloneExec
	}

	orch := &transfer.Orchestrator{
		Ledger:    ledger,
		Allocator: alloc.New(reg),
		Generator: rclone.NewGenerator(cfg.IncludeDir, creds),
		Backups:   backup.New(cfg.BackupsDir),
		Executors: executors,
		DryRun:    c.Bool("dry-run"),
	}
	return &env{cfg: cfg, ledger: ledger, reg: reg, orch: orch}, nil
}

func uploadAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: gdsync upload <source> <destination>")
	}
	source, dest := c.Args().Get(0), c.Args().Get(1)

	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	if !c.Bool("dry-run") {
		if err := executor.ClearIncludeDir(e.cfg.IncludeDir); err != nil {
			return err
		}
	}

	var req *models.TransferRequest
	if driveID, ok := drive.SourceID(source); ok {
		cred := firstDriveCredential(e.reg)
		sc := drive.NewScanner(e.cfg.RcloneBin, e.cfg.MasterRemote)
		req, err = sc.Scan(c.Context, driveID, dest, c.Bool("as-folder"), cred)
	} else {
		req, err = scanner.Scan(source, dest, c.Bool("as-folder"))
	}
	if err != nil {
		return err
	}
	if c.Bool("split") && req.Mode == models.ModeDirUnit {
		req.Mode = models.ModeDirSplit
	}

	report, err := e.orch.Upload(c.Context, *req)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", source, err)
	}

	printReport(report)
	if len(report.Failed) > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d commands failed", len(report.Failed), len(report.Commands)), 1)
	}
	return nil
}

func removeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: gdsync rm <path>")
	}

	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	if !c.Bool("dry-run") {
		if err := executor.ClearIncludeDir(e.cfg.IncludeDir); err != nil {
			return err
		}
	}

	report, err := e.orch.Remove(c.Context, c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", c.Args().First(), err)
	}

	printReport(report)
	for _, p := range report.Removed {
		fmt.Printf("Removed from ledger: %s\n", p)
	}
	if len(report.Failed) > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d commands failed", len(report.Failed), len(report.Commands)), 1)
	}
	return nil
}

func treeAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	prefix := c.Args().First()
	entries, err := e.orch.List(prefix)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		if prefix != "" {
			fmt.Printf("No files found under the path '%s'.\n", prefix)
		} else {
			fmt.Println("The drive structure is empty.")
		}
		return nil
	}

	if prefix != "" {
		fmt.Printf("Drive structure under '%s':\n", prefix)
	} else {
		fmt.Println("Drive structure:")
	}
	printTree(entries, db.NormalizePath(prefix))
	return nil
}

func statusAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	stats, err := e.ledger.Stats()
	if err != nil {
		return err
	}

	var totalFiles, totalSize, totalFree int64
	for _, a := range e.reg.Accounts() {
		u := stats[a.ID]
		fmt.Printf("%-20s %s / %s used, %s free, %s files\n",
			a.ID,
			utils.FormatSize(a.UsedBytes),
			utils.FormatSize(a.TotalBytes),
			utils.FormatSize(a.FreeBytes()),
			humanize.Comma(u.Files),
		)
		totalFiles += u.Files
		totalSize += a.UsedBytes
		totalFree += a.FreeBytes()
	}
	fmt.Printf("\nTotal: %s files, %s used, %s free across %d accounts\n",
		humanize.Comma(totalFiles),
		utils.FormatSize(totalSize),
		utils.FormatSize(totalFree),
		e.reg.Len(),
	)
	return nil
}

func snapshotsAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	stamps, err := backup.New(cfg.BackupsDir).List()
	if err != nil {
		return err
	}
	if len(stamps) == 0 {
		fmt.Println("No snapshots found.")
		return nil
	}
	for _, s := range stamps {
		fmt.Println(s)
	}
	return nil
}

func restoreAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	backups := backup.New(e.cfg.BackupsDir)
	entries, err := backups.Entries(c.String("at"))
	if err != nil {
		return err
	}

	// Restoring is itself a mutation: capture the current state first.
	current, err := e.ledger.List("")
	if err != nil {
		return err
	}
	stamp, err := backups.Snapshot(models.TransferRequest{Source: "restore:" + c.String("at")}, nil, current)
	if err != nil {
		return fmt.Errorf("failed to snapshot current state: %v", err)
	}

	if err := e.ledger.ReplaceAll(entries); err != nil {
		return err
	}
	fmt.Printf("Ledger restored from %s (previous state saved as %s)\n", c.String("at"), stamp)
	return nil
}

func firstDriveCredential(reg *registry.Registry) string {
	for _, a := range reg.Accounts() {
		if a.Kind == models.KindDrive {
			return a.CredentialFile
		}
	}
	return ""
}

func printReport(report *transfer.Report) {
	for _, f := range report.Skipped {
		fmt.Printf("Skipping (already uploaded): %s\n", f.RelPath)
	}

	if len(report.Commands) == 0 {
		fmt.Println("NO CHANGES!!!")
		return
	}

	fmt.Printf("\nRclone commands:\n\n")
	for _, cmd := range report.Commands {
		fmt.Printf("rclone %s\n", strings.Join(cmd.Args, " "))
	}

	if report.DryRun {
		fmt.Println("\nDry run: nothing executed, nothing committed.")
		return
	}
	if report.Snapshot != "" {
		fmt.Printf("\nSnapshot created: %s\n", report.Snapshot)
	}
	for _, c := range report.Committed {
		fmt.Printf("Committed: %s -> %s (%s)\n", c.Path, c.AccountID, utils.FormatSize(c.Size))
	}
	for _, f := range report.Failed {
		log.Printf("Command failed on account %s: %v", f.Command.AccountID, f.Err)
	}
}
