package storage

import (
	"errors"
	"fmt"
)

// InsertSeenAnnouncement records an announcement so repeated broadcasts of the
// same string are handled once.
func (s *Store) InsertSeenAnnouncement(announcement string, receivedAt int64) error {
	if announcement == "" {
		return errors.New("announcement is required")
	}
	if receivedAt == 0 {
		receivedAt = nowUnixMilli()
	}

	_, err := s.db.Exec(
		`INSERT INTO seen_announcements (announcement, received_at)
		VALUES (?, ?)
		ON CONFLICT(announcement) DO UPDATE SET received_at = excluded.received_at`,
		announcement,
		receivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert seen announcement: %w", err)
	}

	return nil
}

// HasSeenAnnouncement returns true if an announcement was already recorded.
func (s *Store) HasSeenAnnouncement(announcement string) (bool, error) {
	if announcement == "" {
		return false, errors.New("announcement is required")
	}

	var exists int
	if err := s.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM seen_announcements WHERE announcement = ?)`,
		announcement,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check seen announcement: %w", err)
	}

	return exists == 1, nil
}

// ForgetSeenAnnouncement removes one announcement so it can be handled again.
func (s *Store) ForgetSeenAnnouncement(announcement string) error {
	if _, err := s.db.Exec(`DELETE FROM seen_announcements WHERE announcement = ?`, announcement); err != nil {
		return fmt.Errorf("forget seen announcement: %w", err)
	}
	return nil
}

// PruneSeenAnnouncements removes rows older than cutoff timestamp.
func (s *Store) PruneSeenAnnouncements(cutoffTimestamp int64) (int64, error) {
	if cutoffTimestamp <= 0 {
		return 0, errors.New("cutoff timestamp must be > 0")
	}

	res, err := s.db.Exec(`DELETE FROM seen_announcements WHERE received_at < ?`, cutoffTimestamp)
	if err != nil {
		return 0, fmt.Errorf("prune seen announcements: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read rows affected for seen announcement prune: %w", err)
	}

	return rowsAffected, nil
}
