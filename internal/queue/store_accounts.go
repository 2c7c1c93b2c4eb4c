package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const accountColumns = "id, country, auth_file, credential_present, created_at"

// CreateAccount inserts a new account record. Fails with ErrAccountExists
// when the identifier is taken.
func (s *Store) CreateAccount(ctx context.Context, account *Account) error {
	if account == nil || account.ID == "" {
		return errors.New("account id is required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO accounts (id, country, auth_file, credential_present, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		account.ID, account.Country, account.AuthFile,
		boolToInt(account.CredentialPresent), timestamp(time.Now()),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAccountExists
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// GetAccount fetches an account by identifier. Returns nil when absent.
func (s *Store) GetAccount(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// ListAccounts returns all accounts ordered by creation time.
func (s *Store) ListAccounts(ctx context.Context) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// SetCredentialPresent records whether a usable auth file exists for the
// account.
func (s *Store) SetCredentialPresent(ctx context.Context, id string, present bool) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE accounts SET credential_present = ? WHERE id = ?`,
		boolToInt(present), id,
	)
	if err != nil {
		return fmt.Errorf("set credential present: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("account %q: %w", id, ErrNotFound)
	}
	return nil
}

// RemoveAccount deletes an account. Items and their jobs cascade.
func (s *Store) RemoveAccount(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanAccount(scanner interface{ Scan(dest ...any) error }) (*Account, error) {
	var (
		account    Account
		present    int
		createdRaw string
	)
	if err := scanner.Scan(&account.ID, &account.Country, &account.AuthFile, &present, &createdRaw); err != nil {
		return nil, err
	}
	account.CredentialPresent = present != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		account.CreatedAt = created
	}
	return &account, nil
}
