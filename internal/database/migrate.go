package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order; every statement is idempotent.
//
// bookings.confirmed_seat_id is NULL unless the booking is CONFIRMED, so its
// unique index allows any number of cancelled bookings per seat but only
// one confirmed one.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS flights (
        id             BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
        flight_number  VARCHAR(16)  NOT NULL,
        departure_time DATETIME(3)  NOT NULL,
        arrival_time   DATETIME(3)  NOT NULL,
        aircraft_type  VARCHAR(64)  NOT NULL DEFAULT '',
        created_at     DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
        UNIQUE KEY uq_flights_number (flight_number)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS seats (
        id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
        flight_id   BIGINT UNSIGNED NOT NULL,
        seat_number VARCHAR(5)   NOT NULL,
        seat_class  ENUM('ECONOMY','BUSINESS','FIRST') NOT NULL,
        status      ENUM('AVAILABLE','HELD','CONFIRMED') NOT NULL DEFAULT 'AVAILABLE',
        version     BIGINT UNSIGNED NOT NULL DEFAULT 0,
        updated_at  DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
        UNIQUE KEY uq_seats_flight_number (flight_id, seat_number),
        KEY idx_seats_status_updated (status, updated_at),
        CONSTRAINT fk_seats_flight FOREIGN KEY (flight_id) REFERENCES flights (id)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS passengers (
        id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
        email      VARCHAR(255) NOT NULL,
        first_name VARCHAR(100) NOT NULL,
        last_name  VARCHAR(100) NOT NULL,
        created_at DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
        UNIQUE KEY uq_passengers_email (email)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS bookings (
        id                BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
        booking_reference VARCHAR(16)  NOT NULL,
        flight_id         BIGINT UNSIGNED NOT NULL,
        seat_id           BIGINT UNSIGNED NOT NULL,
        passenger_id      BIGINT UNSIGNED NOT NULL,
        status            ENUM('CONFIRMED','CANCELLED') NOT NULL,
        created_at        DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
        confirmed_seat_id BIGINT UNSIGNED AS (IF(status = 'CONFIRMED', seat_id, NULL)) STORED,
        UNIQUE KEY uq_bookings_reference (booking_reference),
        UNIQUE KEY uq_bookings_confirmed_seat (confirmed_seat_id),
        CONSTRAINT fk_bookings_flight FOREIGN KEY (flight_id) REFERENCES flights (id),
        CONSTRAINT fk_bookings_seat FOREIGN KEY (seat_id) REFERENCES seats (id),
        CONSTRAINT fk_bookings_passenger FOREIGN KEY (passenger_id) REFERENCES passengers (id)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the reservation tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
