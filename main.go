package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"

	"flashvault/catalog"
	"flashvault/commands"
	"flashvault/config"
	"flashvault/device"
	"flashvault/engine"

	log "github.com/sirupsen/logrus"
)

// Exit codes per failure class, so scripts can tell a declined confirmation
// from a mid-write device fault.
const (
	exitGeneric         = 1
	exitValidation      = 2
	exitChipMismatch    = 3
	exitWriteFailure    = 4
	exitVerifyFailure   = 5
	exitConfirmDeclined = 6
	exitNotFound        = 7
)

func exitCode(err error) int {
	var ioErr *device.IOError
	var chipErr *engine.ChipMismatchError
	var verifyErr *engine.VerifyError
	var checksumErr *engine.ChecksumMismatchError
	var pairingErr *catalog.PairingError

	switch {
	case errors.Is(err, engine.ErrConfirmDeclined):
		return exitConfirmDeclined
	case errors.Is(err, catalog.ErrNotFound):
		return exitNotFound
	case errors.As(err, &chipErr):
		return exitChipMismatch
	case errors.As(err, &verifyErr):
		return exitVerifyFailure
	case errors.As(err, &ioErr):
		return exitWriteFailure
	case errors.Is(err, device.ErrWrongBootMode),
		errors.As(err, &checksumErr),
		errors.As(err, &pairingErr):
		return exitValidation
	default:
		return exitGeneric
	}
}

func setLogLevel(level string) {
	l, err := log.ParseLevel(level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	log.SetLevel(l)
}

func registerGlobalFlags(fset *flag.FlagSet) {
	flag.VisitAll(func(f *flag.Flag) {
		fset.Var(f.Value, f.Name, f.Usage)
	})
}

func loadConfig(configFile string, portOverride string) *config.Config {
	cfg, err := config.NewConfigFromFile(configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if portOverride != "" {
		cfg.Serial.Port = portOverride
	}
	return cfg
}

func run(err error) {
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(exitCode(err))
	}
}

// main is the entry point of the application.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	configFile := flag.String("config", "flashvault.json", "Path to config file")
	logLevel := flag.String("loglevel", "info", "Log level")
	port := flag.String("port", "", "Serial port (overrides config)")

	initCmd := flag.NewFlagSet("init", flag.ExitOnError)
	registerGlobalFlags(initCmd)

	chipInfoCmd := flag.NewFlagSet("chip-info", flag.ExitOnError)
	registerGlobalFlags(chipInfoCmd)

	flashInfoCmd := flag.NewFlagSet("flash-info", flag.ExitOnError)
	registerGlobalFlags(flashInfoCmd)

	backupCmd := flag.NewFlagSet("backup", flag.ExitOnError)
	backupPartition := backupCmd.String("partition", "", "Back up a single named partition instead of the whole flash")
	registerGlobalFlags(backupCmd)

	backupPartitionCmd := flag.NewFlagSet("backup-partition", flag.ExitOnError)
	registerGlobalFlags(backupPartitionCmd)

	restoreCmd := flag.NewFlagSet("restore", flag.ExitOnError)
	restoreForce := restoreCmd.Bool("force", false, "Proceed on chip ID mismatch (downgrades the error to a warning)")
	restoreYes := restoreCmd.Bool("yes", false, "Skip the interactive confirmation")
	registerGlobalFlags(restoreCmd)

	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	registerGlobalFlags(listCmd)

	deleteCmd := flag.NewFlagSet("delete", flag.ExitOnError)
	registerGlobalFlags(deleteCmd)

	eraseCmd := flag.NewFlagSet("erase", flag.ExitOnError)
	eraseYes := eraseCmd.Bool("yes", false, "Skip the interactive confirmation")
	registerGlobalFlags(eraseCmd)

	auditCmd := flag.NewFlagSet("audit", flag.ExitOnError)
	registerGlobalFlags(auditCmd)

	if len(os.Args) < 2 {
		log.WithField("args", os.Args).Fatal("Expected a subcommand")
	}
	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "init":
		initCmd.Parse(args)
		setLogLevel(*logLevel)
		cfg := config.NewEmptyConfig(*configFile)
		run(commands.RunInit(ctx, cfg))
	case "chip-info":
		chipInfoCmd.Parse(args)
		setLogLevel(*logLevel)
		run(commands.RunChipInfo(ctx, loadConfig(*configFile, *port)))
	case "flash-info":
		flashInfoCmd.Parse(args)
		setLogLevel(*logLevel)
		run(commands.RunFlashInfo(ctx, loadConfig(*configFile, *port)))
	case "backup":
		backupCmd.Parse(args)
		setLogLevel(*logLevel)
		run(commands.RunBackup(ctx, loadConfig(*configFile, *port), *backupPartition))
	case "backup-partition":
		backupPartitionCmd.Parse(args)
		if backupPartitionCmd.NArg() != 3 {
			log.Fatal("Usage: backup-partition NAME OFFSET LENGTH")
		}
		setLogLevel(*logLevel)
		cfg := loadConfig(*configFile, *port)
		run(commands.RunBackupRange(ctx, cfg, backupPartitionCmd.Arg(0), backupPartitionCmd.Arg(1), backupPartitionCmd.Arg(2)))
	case "restore":
		restoreCmd.Parse(args)
		if restoreCmd.NArg() != 1 {
			log.Fatal("Usage: restore BACKUP_ID [-force] [-yes]")
		}
		setLogLevel(*logLevel)
		run(commands.RunRestore(ctx, loadConfig(*configFile, *port), restoreCmd.Arg(0), *restoreForce, *restoreYes))
	case "list":
		listCmd.Parse(args)
		setLogLevel(*logLevel)
		run(commands.RunList(ctx, loadConfig(*configFile, *port)))
	case "delete":
		deleteCmd.Parse(args)
		if deleteCmd.NArg() != 1 {
			log.Fatal("Usage: delete BACKUP_ID")
		}
		setLogLevel(*logLevel)
		run(commands.RunDelete(ctx, loadConfig(*configFile, *port), deleteCmd.Arg(0)))
	case "erase":
		eraseCmd.Parse(args)
		setLogLevel(*logLevel)
		run(commands.RunErase(ctx, loadConfig(*configFile, *port), *eraseYes))
	case "audit":
		auditCmd.Parse(args)
		setLogLevel(*logLevel)
		run(commands.RunAudit(ctx, loadConfig(*configFile, *port)))
	default:
		log.Fatalf("Invalid subcommand '%s'", os.Args[1])
	}
}
