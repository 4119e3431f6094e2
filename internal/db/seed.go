package db

import (
	"fmt"

	"gorm.io/gorm"
)

// seedStatements load the demo marketplace used for local development.
// The profiles table must be empty; otherwise seeding is skipped.
var seedStatements = []string{
	`INSERT INTO profiles (id, first_name, last_name, profession, balance, type) VALUES
		(1, 'Harry', 'Potter', 'Wizard', 1150, 'client'),
		(2, 'Mr', 'Robot', 'Hacker', 231.11, 'client'),
		(3, 'John', 'Snow', 'Knows nothing', 451.3, 'client'),
		(4, 'Ash', 'Kethcum', 'Pokemon master', 1.3, 'client'),
		(5, 'John', 'Lenon', 'Musician', 64, 'contractor'),
		(6, 'Linus', 'Torvalds', 'Programmer', 1214, 'contractor'),
		(7, 'Alan', 'Turing', 'Programmer', 22, 'contractor'),
		(8, 'Aragorn', 'II Elessar Telcontarvalds', 'Fighter', 314, 'contractor'),
		(9, 'Site', 'Admin', '', 0, 'admin')`,
	`INSERT INTO contracts (id, terms, status, client_id, contractor_id) VALUES
		(1, 'bla bla bla', 'terminated', 1, 5),
		(2, 'bla bla bla', 'in_progress', 1, 6),
		(3, 'bla bla bla', 'in_progress', 2, 6),
		(4, 'bla bla bla', 'in_progress', 2, 7),
		(5, 'bla bla bla', 'new', 3, 8),
		(6, 'bla bla bla', 'in_progress', 3, 7),
		(7, 'bla bla bla', 'in_progress', 4, 7),
		(8, 'bla bla bla', 'in_progress', 4, 6),
		(9, 'bla bla bla', 'in_progress', 4, 8)`,
	`INSERT INTO jobs (description, price, paid, payment_date, contract_id) VALUES
		('work', 200, NULL, NULL, 1),
		('work', 201, NULL, NULL, 2),
		('work', 202, NULL, NULL, 3),
		('work', 200, NULL, NULL, 4),
		('work', 200, NULL, NULL, 7),
		('work', 2020, TRUE, '2020-08-15T19:11:26.737Z', 7),
		('work', 200, TRUE, '2020-08-15T19:11:26.737Z', 2),
		('work', 200, TRUE, '2020-08-16T19:11:26.737Z', 3),
		('work', 200, TRUE, '2020-08-17T19:11:26.737Z', 1),
		('work', 200, TRUE, '2020-08-17T19:11:26.737Z', 5),
		('work', 21, TRUE, '2020-08-10T19:11:26.737Z', 1),
		('work', 21, TRUE, '2020-08-15T19:11:26.737Z', 2),
		('work', 121, TRUE, '2020-08-15T19:11:26.737Z', 3),
		('work', 121, TRUE, '2020-08-14T23:11:26.737Z', 3)`,
	`SELECT setval(pg_get_serial_sequence('profiles', 'id'), (SELECT MAX(id) FROM profiles))`,
	`SELECT setval(pg_get_serial_sequence('contracts', 'id'), (SELECT MAX(id) FROM contracts))`,
}

func runSeed(db *gorm.DB) error {
	var existing int64
	if err := db.Raw(`SELECT COUNT(*) FROM profiles`).Scan(&existing).Error; err != nil {
		return fmt.Errorf("seed check failed: %w", err)
	}
	if existing > 0 {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		for i, stmt := range seedStatements {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("seed statement %d failed: %w", i+1, err)
			}
		}
		return nil
	})
}
