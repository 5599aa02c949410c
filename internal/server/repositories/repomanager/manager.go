package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/songletters/internal/dbx"
	"github.com/dmitrijs2005/songletters/internal/server/repositories/letters"
	"github.com/dmitrijs2005/songletters/internal/server/repositories/merges"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Letters(db dbx.DBTX) letters.Repository
	Merges(db dbx.DBTX) merges.Repository
}
