package storage

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"showtime-scraper/models"
)

// Config locates the persistence sinks. An empty DBHost disables the
// Postgres sink and keeps the CSV export only.
type Config struct {
	OutputFile string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
}

// SaveShowings writes discovered showings to the CSV export and, when
// configured, upserts them into Postgres keyed by ticket URL.
func SaveShowings(showings []models.Showing, date string, cfg Config) error {
	if len(showings) == 0 {
		return errors.New("no showings to save")
	}
	if cfg.OutputFile != "" {
		if err := showingsToCSV(showings, date, cfg.OutputFile); err != nil {
			return err
		}
	}
	if strings.TrimSpace(cfg.DBHost) != "" {
		if err := showingsToDB(showings, date, cfg); err != nil {
			return err
		}
	}
	return nil
}

// SaveLineItems appends harvested ticket line items to the sinks. Line
// items are insert-only: each run contributes a fresh observation.
func SaveLineItems(items []models.TicketLineItem, date string, cfg Config) error {
	if len(items) == 0 {
		return errors.New("no line items to save")
	}
	if cfg.OutputFile != "" {
		if err := lineItemsToCSV(items, date, cfg.OutputFile); err != nil {
			return err
		}
	}
	if strings.TrimSpace(cfg.DBHost) != "" {
		if err := lineItemsToDB(items, date, cfg); err != nil {
			return err
		}
	}
	return nil
}

func showingsToCSV(showings []models.Showing, date, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output csv: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"theater", "film", "show_date", "showtime", "daypart", "formats", "is_plf", "ticket_url"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, s := range showings {
		row := []string{
			s.TheaterID,
			s.FilmTitle,
			date,
			s.Showtime,
			string(s.Daypart),
			strings.Join(s.FormatTags, "|"),
			strconv.FormatBool(s.IsPLF),
			s.TicketURL,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", s.TicketURL, err)
		}
	}
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func lineItemsToCSV(items []models.TicketLineItem, date, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output csv: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"theater", "film", "show_date", "showtime", "base_type", "amenities", "price", "capacity"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, item := range items {
		row := []string{
			item.TheaterID,
			item.FilmTitle,
			date,
			item.Showtime,
			item.BaseType,
			strings.Join(item.Amenities, "|"),
			strconv.FormatFloat(item.Price, 'f', 2, 64),
			string(item.Capacity),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func openDB(cfg Config) (*sql.DB, error) {
	if err := ensureDatabaseExists(cfg); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode,
	)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pingPostgresWithRetry(db, 10, time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func showingsToDB(showings []models.Showing, date string, cfg Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	schema := `
CREATE TABLE IF NOT EXISTS showings (
	id BIGSERIAL PRIMARY KEY,
	theater TEXT NOT NULL,
	film TEXT NOT NULL,
	show_date DATE NOT NULL,
	showtime TEXT NOT NULL,
	daypart TEXT NOT NULL,
	formats TEXT NOT NULL DEFAULT '',
	is_plf BOOLEAN NOT NULL DEFAULT FALSE,
	ticket_url TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create showings table: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
INSERT INTO showings (theater, film, show_date, showtime, daypart, formats, is_plf, ticket_url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (ticket_url) DO UPDATE
SET theater = EXCLUDED.theater,
	film = EXCLUDED.film,
	show_date = EXCLUDED.show_date,
	showtime = EXCLUDED.showtime,
	daypart = EXCLUDED.daypart,
	formats = EXCLUDED.formats,
	is_plf = EXCLUDED.is_plf,
	updated_at = NOW();
`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range showings {
		if _, err := stmt.Exec(
			s.TheaterID, s.FilmTitle, date, s.Showtime,
			string(s.Daypart), strings.Join(s.FormatTags, "|"), s.IsPLF, s.TicketURL,
		); err != nil {
			return fmt.Errorf("upsert showing %s: %w", s.TicketURL, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func lineItemsToDB(items []models.TicketLineItem, date string, cfg Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	schema := `
CREATE TABLE IF NOT EXISTS ticket_line_items (
	id BIGSERIAL PRIMARY KEY,
	theater TEXT NOT NULL,
	film TEXT NOT NULL,
	show_date DATE NOT NULL,
	showtime TEXT NOT NULL,
	base_type TEXT NOT NULL,
	amenities TEXT NOT NULL DEFAULT '',
	price NUMERIC(8,2) NOT NULL,
	capacity TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create ticket_line_items table: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
INSERT INTO ticket_line_items (theater, film, show_date, showtime, base_type, amenities, price, capacity)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.Exec(
			item.TheaterID, item.FilmTitle, date, item.Showtime,
			item.BaseType, strings.Join(item.Amenities, "|"), item.Price, string(item.Capacity),
		); err != nil {
			return fmt.Errorf("insert line item %s %s: %w", item.FilmTitle, item.Showtime, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func pingPostgresWithRetry(db *sql.DB, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		lastErr = db.Ping()
		if lastErr == nil {
			return nil
		}
		time.Sleep(delay)
	}
	return lastErr
}

func ensureDatabaseExists(cfg Config) error {
	adminDSN := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=postgres sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBSSLMode,
	)

	adminDB, err := sql.Open("postgres", adminDSN)
	if err != nil {
		return fmt.Errorf("open postgres admin db: %w", err)
	}
	defer adminDB.Close()

	if err := adminDB.Ping(); err != nil {
		return fmt.Errorf("ping postgres admin db: %w", err)
	}

	dbName := strings.TrimSpace(cfg.DBName)
	if dbName == "" {
		return errors.New("database name is empty")
	}

	var exists int
	if err := adminDB.QueryRow(`SELECT 1 FROM pg_database WHERE datname = $1`, dbName).Scan(&exists); err == nil && exists == 1 {
		return nil
	}

	escaped := strings.ReplaceAll(dbName, `"`, `""`)
	if _, err := adminDB.Exec(fmt.Sprintf(`CREATE DATABASE "%s"`, escaped)); err != nil {
		return fmt.Errorf("create database %q: %w", dbName, err)
	}
	return nil
}
