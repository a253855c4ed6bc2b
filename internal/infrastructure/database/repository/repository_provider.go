package repository

import (
	"github.com/google/wire"

	"jan-server/services/envchat-api/internal/domain/environment"
	"jan-server/services/envchat-api/internal/infrastructure/database/repository/environmentrepo"
	"jan-server/services/envchat-api/internal/infrastructure/database/transaction"
)

var RepositoryProvider = wire.NewSet(
	ProvideEnvironmentRepository,
)

// ProvideEnvironmentRepository returns nil when no environment store is configured.
func ProvideEnvironmentRepository(db *transaction.Database) environment.Repository {
	if db == nil {
		return nil
	}
	return environmentrepo.NewEnvironmentGormRepository(db)
}
