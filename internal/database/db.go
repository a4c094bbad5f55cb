// Package database opens the MySQL pool of the development backend and
// creates its tables.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps check-in times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(16) NOT NULL,
		docente_id VARCHAR(32) NULL,
		alumno_id VARCHAR(32) NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		KEY idx_refresh_user (user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS sesiones_clase (
		int_idSesionClase BIGINT NOT NULL PRIMARY KEY,
		int_idSeccion BIGINT NOT NULL,
		str_tema VARCHAR(255) NOT NULL,
		dt_fecha DATE NOT NULL,
		KEY idx_sesion_seccion (int_idSeccion)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS alumnos_secciones (
		int_idAlumnoSeccion BIGINT NOT NULL PRIMARY KEY,
		int_idSeccion BIGINT NOT NULL,
		str_idAlumno VARCHAR(32) NOT NULL,
		str_nombres VARCHAR(128) NOT NULL,
		str_apellidos VARCHAR(128) NOT NULL,
		UNIQUE KEY uq_alumno_seccion (int_idSeccion, str_idAlumno)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS asistencias (
		int_idAsistencia BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		int_idSesionClase BIGINT NOT NULL,
		str_idAlumno VARCHAR(32) NOT NULL,
		str_estado CHAR(1) NOT NULL,
		dt_fecha DATE NOT NULL,
		dt_hora TIME NOT NULL,
		UNIQUE KEY uq_asistencia (int_idSesionClase, str_idAlumno)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates missing tables.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
