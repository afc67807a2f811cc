package repository

import (
	"deploy-console/internal/model"
	pkgErrors "deploy-console/pkg/errors"

	"gorm.io/gorm"
)

type CredentialRepository interface {
	Create(credential *model.Credential) error
	Update(credential *model.Credential) error
	Delete(id int64) error
	FindByID(id int64) (*model.Credential, error)
	FindByType(credType string) ([]*model.Credential, error)
	FindSelected(credType string) (*model.Credential, error)
	// SelectExclusive 将指定凭据置为选中, 同类型其余凭据取消选中
	SelectExclusive(credType string, id int64) error
	ClearSelection(credType string) error
	FindAllSelected() ([]*model.Credential, error)
}

type credentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) Create(credential *model.Credential) error {
	if err := r.db.Create(credential).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "创建凭据失败", err)
	}
	return nil
}

func (r *credentialRepository) Update(credential *model.Credential) error {
	if err := r.db.Save(credential).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "更新凭据失败", err)
	}
	return nil
}

func (r *credentialRepository) Delete(id int64) error {
	if err := r.db.Delete(&model.Credential{}, id).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "删除凭据失败", err)
	}
	return nil
}

func (r *credentialRepository) FindByID(id int64) (*model.Credential, error) {
	var credential model.Credential
	if err := r.db.First(&credential, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgErrors.ErrCredentialNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询凭据失败", err)
	}
	return &credential, nil
}

func (r *credentialRepository) FindByType(credType string) ([]*model.Credential, error) {
	var credentials []*model.Credential
	if err := r.db.Where("type = ?", credType).
		Order("created_at").
		Find(&credentials).Error; err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询凭据列表失败", err)
	}
	return credentials, nil
}

func (r *credentialRepository) FindSelected(credType string) (*model.Credential, error) {
	var credential model.Credential
	err := r.db.Where("type = ? AND selected = ?", credType, true).First(&credential).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgErrors.ErrCredentialNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询选中凭据失败", err)
	}
	return &credential, nil
}

func (r *credentialRepository) SelectExclusive(credType string, id int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var credential model.Credential
		if err := tx.Where("id = ? AND type = ?", id, credType).First(&credential).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgErrors.ErrCredentialNotFound
			}
			return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询凭据失败", err)
		}
		if err := tx.Model(&model.Credential{}).
			Where("type = ? AND selected = ?", credType, true).
			Update("selected", false).Error; err != nil {
			return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "取消原选中凭据失败", err)
		}
		if err := tx.Model(&model.Credential{}).
			Where("id = ?", id).
			Update("selected", true).Error; err != nil {
			return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "选中凭据失败", err)
		}
		return nil
	})
}

func (r *credentialRepository) ClearSelection(credType string) error {
	if err := r.db.Model(&model.Credential{}).
		Where("type = ? AND selected = ?", credType, true).
		Update("selected", false).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "取消选中凭据失败", err)
	}
	return nil
}

func (r *credentialRepository) FindAllSelected() ([]*model.Credential, error) {
	var credentials []*model.Credential
	if err := r.db.Where("selected = ?", true).Find(&credentials).Error; err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询选中凭据失败", err)
	}
	return credentials, nil
}
