package db

import (
	"database/sql"
	"time"
)

func AddFolder(db *sql.DB, path string, nowUnix int64) error {
	_, err := db.Exec(
		"INSERT INTO folders(path, added_at) VALUES(?, ?) ON CONFLICT(path) DO NOTHING",
		path,
		nowUnix,
	)
	return err
}

func RemoveFolder(db *sql.DB, path string) error {
	_, err := db.Exec("DELETE FROM folders WHERE path = ?", path)
	return err
}

func ListFolders(db *sql.DB) ([]string, error) {
	rows, err := db.Query("SELECT path FROM folders ORDER BY added_at ASC, path ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	folders := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		folders = append(folders, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return folders, nil
}

// FolderStore adapts the folder table to the allowed-folder capability used
// by the path guard, the retrieval store and the UI.
type FolderStore struct {
	DB *sql.DB
}

func (s FolderStore) ListFolders() ([]string, error) { return ListFolders(s.DB) }

func (s FolderStore) AddFolder(path string) error {
	return AddFolder(s.DB, path, time.Now().Unix())
}

func (s FolderStore) RemoveFolder(path string) error { return RemoveFolder(s.DB, path) }
