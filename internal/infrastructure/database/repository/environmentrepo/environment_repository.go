package environmentrepo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"jan-server/services/envchat-api/internal/domain/environment"
	"jan-server/services/envchat-api/internal/infrastructure/database/dbschema"
	"jan-server/services/envchat-api/internal/infrastructure/database/transaction"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

// EnvironmentGormRepository implements environment.Repository using GORM.
type EnvironmentGormRepository struct {
	db *transaction.Database
}

var _ environment.Repository = (*EnvironmentGormRepository)(nil)

// NewEnvironmentGormRepository constructs a new repository.
func NewEnvironmentGormRepository(db *transaction.Database) *EnvironmentGormRepository {
	return &EnvironmentGormRepository{db: db}
}

// FindByScopes returns every row in the given scopes. Reads go to the replica
// when one is configured.
func (repo *EnvironmentGormRepository) FindByScopes(ctx context.Context, scopes []string) ([]*environment.Record, error) {
	var entities []dbschema.Environment
	err := repo.db.GetTx(ctx).
		Where("scope IN ?", scopes).
		Order("scope ASC").
		Order("name ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to list environments", err, "7041a570-f6aa-4708-b37e-784197892ea5")
	}

	records := make([]*environment.Record, 0, len(entities))
	for i := range entities {
		records = append(records, entities[i].EtoD())
	}
	return records, nil
}

// FindByScopeAndID reads from the primary so a write sees its own preceding reads.
func (repo *EnvironmentGormRepository) FindByScopeAndID(ctx context.Context, scope, id string) (*environment.Record, error) {
	var entity dbschema.Environment
	err := repo.db.GetTx(ctx).
		Clauses(dbresolver.Write).
		Where("scope = ? AND id = ?", scope, id).
		First(&entity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to find environment", err, "93c14090-2159-4d49-8c27-1de3252211cb")
	}
	return entity.EtoD(), nil
}

func (repo *EnvironmentGormRepository) Create(ctx context.Context, record *environment.Record) error {
	entity := dbschema.NewSchemaEnvironment(record)
	err := repo.db.GetTx(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entity)
	if err.Error != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to create environment", err.Error, "999d4955-a6f3-4027-ae58-f9776341b801")
	}
	if err.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "an environment with this id already exists", nil, "382baf5f-3a93-466f-992c-b84292e987b2")
	}
	return nil
}

func (repo *EnvironmentGormRepository) Update(ctx context.Context, record *environment.Record) error {
	entity := dbschema.NewSchemaEnvironment(record)
	result := repo.db.GetTx(ctx).
		Model(&dbschema.Environment{}).
		Where("scope = ? AND id = ?", entity.Scope, entity.ID).
		Updates(map[string]any{
			"name":             entity.Name,
			"settings":         entity.Settings,
			"backend_settings": entity.BackendSettings,
			"updated_at":       entity.UpdatedAt,
		})
	if result.Error != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to update environment", result.Error, "e8706b79-ac48-4c61-8c02-5107835f1b77")
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "environment not found", nil, "80c1f94d-747a-4b6c-ad5c-0faadb341545")
	}
	return nil
}

// Delete removes a row and reports whether it existed.
func (repo *EnvironmentGormRepository) Delete(ctx context.Context, scope, id string) (bool, error) {
	result := repo.db.GetTx(ctx).
		Where("scope = ? AND id = ?", scope, id).
		Delete(&dbschema.Environment{})
	if result.Error != nil {
		return false, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "failed to delete environment", result.Error, "35de7d50-1454-4e69-96ff-3f66efa7b38d")
	}
	return result.RowsAffected > 0, nil
}
