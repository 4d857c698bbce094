package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/viewsync/internal/formatter"
	"github.com/desertthunder/viewsync/internal/models"
	"github.com/desertthunder/viewsync/internal/repositories"
	"github.com/desertthunder/viewsync/internal/server"
	"github.com/desertthunder/viewsync/internal/shared"
)

// Serve runs the development record service until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	dbConfig := r.config.Database
	if path := cmd.String("db"); path != "" {
		dbConfig.Path = path
	}
	addr := r.config.Server.Addr()
	if a := cmd.String("addr"); a != "" {
		addr = a
	}

	db, err := r.migratedDatabase(dbConfig)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := server.NewService(db, r.logger, server.ServiceOptions{AutoSession: cmd.Bool("auto-session")})
	return server.Serve(ctx, addr, handler, r.logger)
}

// SessionAdd maps a ks to a user in the development service database.
func (r *Runner) SessionAdd(ctx context.Context, cmd *cli.Command) error {
	ks, userID := cmd.StringArg("ks"), cmd.StringArg("user")
	if ks == "" || userID == "" {
		return fmt.Errorf("%w: ks and user are required", shared.ErrMissingArgument)
	}

	db, err := r.migratedDatabase(r.config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repositories.NewSessionRepository(db).Create(ks, userID, cmd.Duration("ttl")); err != nil {
		return err
	}
	return r.writePlain("✓ Session %s belongs to %s\n", ks, userID)
}

// SessionRemove deletes a session.
func (r *Runner) SessionRemove(ctx context.Context, cmd *cli.Command) error {
	ks := cmd.StringArg("ks")
	if ks == "" {
		return fmt.Errorf("%w: ks is required", shared.ErrMissingArgument)
	}

	db, err := r.migratedDatabase(r.config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repositories.NewSessionRepository(db).Delete(ks); err != nil {
		return err
	}
	return r.writePlain("✓ Session %s removed\n", ks)
}

// Export writes the stored records, filtered by --user and --entry, to a file or stdout.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	db, err := r.migratedDatabase(r.config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	criteria := map[string]any{}
	if u := cmd.String("user"); u != "" {
		criteria["user_id"] = u
	}
	if e := cmd.String("entry"); e != "" {
		criteria["entry_id"] = e
	}

	found, err := repositories.NewUserEntryRepository(db).List(criteria)
	if err != nil {
		return err
	}
	records := make([]models.Record, 0, len(found))
	for _, rec := range found {
		records = append(records, *rec)
	}

	if output := cmd.String("output"); output != "" {
		format, err := formatter.WriteRecords(records, output)
		if err != nil {
			return err
		}
		r.logger.Info("exported records", "count", len(records), "format", format, "path", output)
		return r.writePlain("✓ Exported %d record(s) to %s\n", len(records), output)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	data, err := formatter.Records(records, format, true)
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}

// migratedDatabase opens the database and brings its schema up to date.
func (r *Runner) migratedDatabase(c shared.DatabaseConfig) (*sql.DB, error) {
	db, err := openDatabase(c)
	if err != nil {
		return nil, err
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}
