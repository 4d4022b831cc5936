// Package main содержит административную утилиту менеджера бонусов:
// создание организаций, назначение пользователей и выдачу прав администратора.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mmeshcher/bonus-manager/internal/config"
	"github.com/mmeshcher/bonus-manager/internal/repository"
)

const usage = `usage: bonusadmin [-d dsn] <command> [flags]

commands:
  create-org -name NAME          create organization
  assign -user USERNAME -org ID  attach user to organization
  privileged -user USERNAME      grant administrator rights (-revoke to take them back)
`

var errUsage = errors.New("invalid usage")

// adminRepository описывает операции хранилища, доступные утилите.
type adminRepository interface {
	CreateOrganization(ctx context.Context, name string) (int64, error)
	AssignOrganization(ctx context.Context, username string, orgID int64) error
	SetPrivileged(ctx context.Context, username string, privileged bool) error
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.ParseAdmin(os.Args[1:])
	if err != nil {
		fmt.Fprint(os.Stderr, usage)
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, repo, cfg.Command, cfg.Args, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		sugar.Errorw("command failed", "command", cfg.Command, "error", err)
		stop()
		repo.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, repo adminRepository, command string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	switch command {
	case "create-org":
		name := fs.String("name", "", "organization name")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		if *name == "" {
			return fmt.Errorf("%w: -name is required", errUsage)
		}

		id, err := repo.CreateOrganization(ctx, *name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "organization %q created with id %d\n", *name, id)

	case "assign":
		username := fs.String("user", "", "username")
		orgID := fs.Int64("org", 0, "organization id")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		if *username == "" || *orgID <= 0 {
			return fmt.Errorf("%w: -user and -org are required", errUsage)
		}

		if err := repo.AssignOrganization(ctx, *username, *orgID); err != nil {
			return err
		}
		fmt.Fprintf(out, "user %q assigned to organization %d\n", *username, *orgID)

	case "privileged":
		username := fs.String("user", "", "username")
		revoke := fs.Bool("revoke", false, "revoke administrator rights")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		if *username == "" {
			return fmt.Errorf("%w: -user is required", errUsage)
		}

		if err := repo.SetPrivileged(ctx, *username, !*revoke); err != nil {
			return err
		}
		fmt.Fprintf(out, "user %q privileged=%t\n", *username, !*revoke)

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	return nil
}
