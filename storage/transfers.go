package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const transferColumns = `
	transfer_id,
	direction,
	file_name,
	source_locator,
	announcement,
	stored_path,
	filesize,
	checksum,
	transfer_status,
	status_message,
	created_at,
	updated_at`

// SaveTransfer inserts a new transfer row.
func (s *Store) SaveTransfer(transfer Transfer) error {
	if transfer.TransferID == "" {
		return errors.New("transfer_id is required")
	}
	if transfer.FileName == "" {
		return errors.New("file_name is required")
	}
	if err := validateDirection(transfer.Direction); err != nil {
		return err
	}
	if transfer.Status == "" {
		transfer.Status = StatusPending
	}
	if err := validateTransferStatus(transfer.Status); err != nil {
		return err
	}
	if transfer.CreatedAt == 0 {
		transfer.CreatedAt = nowUnixMilli()
	}
	if transfer.UpdatedAt == 0 {
		transfer.UpdatedAt = transfer.CreatedAt
	}

	_, err := s.db.Exec(
		`INSERT INTO transfers (`+transferColumns+`
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		transfer.TransferID,
		transfer.Direction,
		transfer.FileName,
		transfer.SourceLocator,
		transfer.Announcement,
		transfer.StoredPath,
		transfer.Filesize,
		transfer.Checksum,
		transfer.Status,
		transfer.StatusMessage,
		transfer.CreatedAt,
		transfer.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transfer %q: %w", transfer.TransferID, err)
	}

	return nil
}

// UpdateTransferStatus sets transfer_status and status_message for a row.
func (s *Store) UpdateTransferStatus(transferID, status, message string) error {
	if transferID == "" {
		return errors.New("transfer_id is required")
	}
	if err := validateTransferStatus(status); err != nil {
		return err
	}

	res, err := s.db.Exec(
		`UPDATE transfers
		SET transfer_status = ?, status_message = ?, updated_at = ?
		WHERE transfer_id = ?`,
		status,
		message,
		nowUnixMilli(),
		transferID,
	)
	if err != nil {
		return fmt.Errorf("update transfer status %q: %w", transferID, err)
	}

	return requireRowsAffected(res, transferID)
}

// CompleteTransfer records where the bytes landed and marks the row complete.
func (s *Store) CompleteTransfer(transferID, storedPath string, filesize int64, checksum string) error {
	if transferID == "" {
		return errors.New("transfer_id is required")
	}
	if storedPath == "" {
		return errors.New("stored_path is required")
	}

	res, err := s.db.Exec(
		`UPDATE transfers
		SET stored_path = ?, filesize = ?, checksum = ?, transfer_status = ?, status_message = '', updated_at = ?
		WHERE transfer_id = ?`,
		storedPath,
		filesize,
		checksum,
		StatusComplete,
		nowUnixMilli(),
		transferID,
	)
	if err != nil {
		return fmt.Errorf("complete transfer %q: %w", transferID, err)
	}

	return requireRowsAffected(res, transferID)
}

// GetTransfer fetches one transfer by ID.
func (s *Store) GetTransfer(transferID string) (*Transfer, error) {
	row := s.db.QueryRow(
		`SELECT`+transferColumns+`
		FROM transfers
		WHERE transfer_id = ?`,
		transferID,
	)

	transfer, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get transfer %q: %w", transferID, err)
	}

	return transfer, nil
}

// ListTransfers returns transfers newest first, optionally filtered by direction.
func (s *Store) ListTransfers(direction string, limit, offset int) ([]Transfer, error) {
	query := `SELECT` + transferColumns + `
	FROM transfers`
	args := make([]any, 0, 3)
	if direction != "" {
		if err := validateDirection(direction); err != nil {
			return nil, err
		}
		query += " WHERE direction = ?"
		args = append(args, direction)
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query += " ORDER BY created_at DESC, transfer_id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	transfers := make([]Transfer, 0)
	for rows.Next() {
		transfer, scanErr := scanTransfer(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan transfer row: %w", scanErr)
		}
		transfers = append(transfers, *transfer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer rows: %w", err)
	}
	return transfers, nil
}

// DeleteTransfersByStoredPath removes rows whose stored file was deleted.
func (s *Store) DeleteTransfersByStoredPath(paths []string) (int64, error) {
	filtered := make([]any, 0, len(paths))
	for _, path := range paths {
		if path != "" {
			filtered = append(filtered, path)
		}
	}
	if len(filtered) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filtered)), ",")
	res, err := s.db.Exec(
		`DELETE FROM transfers WHERE stored_path IN (`+placeholders+`)`,
		filtered...,
	)
	if err != nil {
		return 0, fmt.Errorf("delete transfers by stored path: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read rows affected for transfer delete: %w", err)
	}
	return rowsAffected, nil
}

func requireRowsAffected(res sql.Result, transferID string) error {
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected for transfer %q: %w", transferID, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTransfer(row scanner) (*Transfer, error) {
	var transfer Transfer
	if err := row.Scan(
		&transfer.TransferID,
		&transfer.Direction,
		&transfer.FileName,
		&transfer.SourceLocator,
		&transfer.Announcement,
		&transfer.StoredPath,
		&transfer.Filesize,
		&transfer.Checksum,
		&transfer.Status,
		&transfer.StatusMessage,
		&transfer.CreatedAt,
		&transfer.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &transfer, nil
}
