package database

import (
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var _ TxBeginner = (pgxmock.PgxPoolIface)(nil)

// NewMockPool returns a pgxmock pool usable wherever a TxBeginner is.
// Tests still call ExpectationsWereMet themselves.
func NewMockPool() (pgxmock.PgxPoolIface, error) {
	return pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
}
