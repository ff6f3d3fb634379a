package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"satchel/internal/auth"
	"satchel/internal/ingest"
	"satchel/internal/note"
	"satchel/internal/task"
	"satchel/internal/userfile"
	"satchel/internal/website"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&note.Note{},
		&website.Website{},
		&userfile.File{},
		&task.Task{},
		&task.OperationLogEntry{},
		&ingest.Job{},
		&auth.User{},
	); err != nil {
		return err
	}

	// At most one live instance per (template, deadline): the last line of
	// defense against duplicate-instance races on repeat completion.
	if err := gdb.Exec(`
create unique index if not exists uq_tasks_template_deadline
on tasks(repeat_template_id, deadline)
where repeat_template_id is not null and deleted_at is null;
`).Error; err != nil {
		return err
	}

	stmts := []string{
		`create index if not exists idx_jobs_claim on processing_jobs(status, available_at);`,
		`create index if not exists idx_jobs_lease on processing_jobs(status, lease_expires_at);`,
		`create index if not exists idx_jobs_file on processing_jobs(file_id, id desc);`,
		`create index if not exists idx_notes_user_updated on notes(user_id, updated_at desc);`,
		`create index if not exists idx_notes_pin on notes(user_id, pinned_order) where pinned_order is not null;`,
		`create index if not exists idx_websites_user_updated on websites(user_id, updated_at desc);`,
		`create index if not exists idx_files_user_updated on files(user_id, updated_at desc);`,
		`create index if not exists idx_tasks_user_deadline on tasks(user_id, deadline);`,
		`create index if not exists idx_notes_tags on notes using gin (tags);`,
		`create index if not exists idx_websites_tags on websites using gin (tags);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
