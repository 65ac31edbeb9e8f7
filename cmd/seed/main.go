// seed creates the schema and a handful of employees in the local dev
// database, then writes a sample CSV to upload against it.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/hrstream/employee-import/internal/infrastructure/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS employees (
	id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	employee_number TEXT NOT NULL,
	first_name      TEXT NOT NULL,
	last_name       TEXT NOT NULL,
	email           TEXT NOT NULL,
	department      TEXT,
	salary          NUMERIC(12,2),
	currency        TEXT,
	country_code    TEXT,
	start_date      DATE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS employees_number_idx ON employees (employee_number);
CREATE UNIQUE INDEX IF NOT EXISTS employees_email_idx  ON employees (lower(email));

CREATE TABLE IF NOT EXISTS import_jobs (
	id                  UUID PRIMARY KEY,
	filename            TEXT NOT NULL,
	file_path           TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'pending',
	queue               TEXT NOT NULL,
	total_rows          INT  NOT NULL DEFAULT 0,
	processed_rows      INT  NOT NULL DEFAULT 0,
	successful_rows     INT  NOT NULL DEFAULT 0,
	error_rows          INT  NOT NULL DEFAULT 0,
	last_processed_row  INT  NOT NULL DEFAULT 0,
	file_size           BIGINT NOT NULL,
	file_hash           TEXT NOT NULL,
	file_last_modified  TIMESTAMPTZ NOT NULL,
	attempts            INT NOT NULL DEFAULT 0,
	max_attempts        INT NOT NULL DEFAULT 3,
	scheduled_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	retry_until         TIMESTAMPTZ,
	resumption_metadata JSONB NOT NULL DEFAULT '{}',
	claimed_by          TEXT,
	heartbeat_at        TIMESTAMPTZ,
	last_error          TEXT,
	started_at          TIMESTAMPTZ,
	completed_at        TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS import_jobs_claim_idx
	ON import_jobs (status, queue, scheduled_at);
CREATE INDEX IF NOT EXISTS import_jobs_heartbeat_idx
	ON import_jobs (status, heartbeat_at);

CREATE TABLE IF NOT EXISTS import_processed_records (
	id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	job_id          UUID NOT NULL REFERENCES import_jobs (id) ON DELETE CASCADE,
	row_number      INT  NOT NULL,
	employee_number TEXT,
	email           TEXT,
	status          TEXT NOT NULL,
	processed_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS processed_records_row_idx
	ON import_processed_records (job_id, row_number);
CREATE UNIQUE INDEX IF NOT EXISTS processed_records_number_idx
	ON import_processed_records (job_id, employee_number);
CREATE UNIQUE INDEX IF NOT EXISTS processed_records_email_idx
	ON import_processed_records (job_id, email);

CREATE TABLE IF NOT EXISTS import_errors (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	job_id     UUID NOT NULL REFERENCES import_jobs (id) ON DELETE CASCADE,
	row_number INT  NOT NULL,
	error_type TEXT NOT NULL,
	message    TEXT NOT NULL,
	row_data   JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS import_errors_job_idx
	ON import_errors (job_id, row_number);
CREATE INDEX IF NOT EXISTS import_errors_type_idx
	ON import_errors (job_id, error_type);

CREATE TABLE IF NOT EXISTS import_resumption_logs (
	id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	job_id           UUID NOT NULL REFERENCES import_jobs (id) ON DELETE CASCADE,
	event_type       TEXT NOT NULL,
	attempt_number   INT  NOT NULL,
	resumed_from_row INT  NOT NULL,
	details          TEXT NOT NULL,
	metadata         JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS resumption_logs_job_idx
	ON import_resumption_logs (job_id, created_at);
`

type employeeSpec struct {
	number, first, last, email, department, salary, currency, country, startDate string
}

var employees = []employeeSpec{
	{"EMP-001", "Aliya", "Bekova", "aliya.bekova@example.com", "Engineering", "95000.00", "KES", "KE", "2021-03-15"},
	{"EMP-002", "Marco", "Silva", "marco.silva@example.com", "Finance", "72000.00", "ZAR", "ZA", "2019-11-01"},
	{"EMP-003", "Hana", "Sato", "hana.sato@example.com", "Design", "68000.50", "USD", "KE", "2022-06-20"},
	{"EMP-004", "Priya", "Nair", "priya.nair@example.com", "Engineering", "88000.00", "NGN", "NG", "2020-01-07"},
	{"EMP-005", "Tom", "Okafor", "tom.okafor@example.com", "Sales", "54000.00", "GHS", "GH", "2023-02-13"},
}

// sampleCSV exercises the interesting paths: valid rows, a bad salary,
// a missing email, and a duplicate employee_number where the later row wins.
const sampleCSV = `employee_number,first_name,last_name,email,department,salary,currency,country_code,start_date
EMP-101,Jane,Doe,jane.doe@example.com,Engineering,91000.00,KES,KE,2024-01-15
EMP-102,Omar,Haddad,omar.haddad@example.com,Finance,64000,NGN,NG,2023-09-01
EMP-103,Lena,Berg,lena.berg@example.com,Design,70k,ZAR,ZA,2024-03-10
EMP-104,Sam,Lee,,Sales,48000.00,USD,KE,2024-05-20
EMP-101,Jane,Doe-Smith,jane.doe@example.com,Engineering,95000.00,KES,KE,2024-01-15
`

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set — run: direnv allow")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schema); err != nil {
		log.Fatalf("create schema: %v", err)
	}

	var inserted, skipped int
	for _, e := range employees {
		tag, err := pool.Exec(ctx, `
			INSERT INTO employees (
				employee_number, first_name, last_name, email,
				department, salary, currency, country_code, start_date
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (employee_number) DO NOTHING`,
			e.number, e.first, e.last, e.email,
			e.department, e.salary, e.currency, e.country, e.startDate,
		)
		if err != nil {
			log.Fatalf("insert employee %s: %v", e.number, err)
		}
		if tag.RowsAffected() == 0 {
			skipped++
		} else {
			inserted++
		}
	}

	samplePath := filepath.Join(os.TempDir(), "employee-import-sample.csv")
	if err := os.WriteFile(samplePath, []byte(sampleCSV), 0o644); err != nil {
		log.Fatalf("write sample csv: %v", err)
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Schema:             created (idempotent)\n")
	fmt.Printf("  Employees created:  %d  (skipped %d already existing)\n", inserted, skipped)
	fmt.Printf("  Sample upload file: %s\n", samplePath)
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Step 1 — upload the sample file:")
	fmt.Println()
	fmt.Printf("    curl -s -X POST http://localhost:8080/employee-import/upload \\\n")
	fmt.Printf("      -F 'file=@%s'\n", samplePath)
	fmt.Println("    # → {\"success\":true,\"data\":{\"import_job_id\":\"...\",...}}")
	fmt.Println()
	fmt.Println("  Step 2 — start the worker (go run ./cmd/worker) and watch progress:")
	fmt.Println()
	fmt.Println("    export JOB_ID=...")
	fmt.Println("    curl -s http://localhost:8080/employee-import/$JOB_ID/progress")
	fmt.Println()
	fmt.Println("  Step 3 — inspect errors and the final summary:")
	fmt.Println()
	fmt.Println("    curl -s 'http://localhost:8080/employee-import/$JOB_ID/errors?error_type=validation'")
	fmt.Println("    curl -s http://localhost:8080/employee-import/$JOB_ID/summary")
	fmt.Println()
	fmt.Println("  What to expect:")
	fmt.Println("    rows 1, 2, 5  →  imported (row 5 supersedes row 1, same employee_number)")
	fmt.Println("    row 3         →  validation error (salary \"70k\")")
	fmt.Println("    row 4         →  validation error (missing email)")
	fmt.Println()
	fmt.Println("    Row 1 ends up skipped in the ledger; EMP-101 keeps the row-5 values.")
}
