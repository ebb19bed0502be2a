package database

import (
	"database/sql"
)

type PgGameRoomRepository struct {
	conn *sql.DB
}

func NewPgGameRoomRepository(dsn string) (*PgGameRoomRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgGameRoomRepository{conn: db}, nil
}

func (db *PgGameRoomRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgGameRoomRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
