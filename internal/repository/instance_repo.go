package repository

import (
	"errors"

	"deploy-console/internal/model"
	pkgErrors "deploy-console/pkg/errors"

	"gorm.io/gorm"
)

type InstanceRepository interface {
	Create(instance *model.DeployInstance) error
	Update(instance *model.DeployInstance) error
	Delete(id int64) error
	FindByID(id int64) (*model.DeployInstance, error)
	FindByInstanceID(instanceID string) (*model.DeployInstance, error)
	FindAll() ([]*model.DeployInstance, error)
	FindByWave(wave int) ([]*model.DeployInstance, error)
	FindByInstanceIDs(instanceIDs []string) ([]*model.DeployInstance, error)
	// UpdateRuntime 在事务内重读实例后应用变更, 避免并发轮询相互覆盖
	UpdateRuntime(id int64, mutate func(*model.DeployInstance)) error
	// UpdateStatusIf 带状态前置条件的更新, 状态已被他人推进时不生效
	UpdateStatusIf(id int64, fromStatus string, updates map[string]interface{}) (bool, error)
}

type instanceRepository struct {
	db *gorm.DB
}

func NewInstanceRepository(db *gorm.DB) InstanceRepository {
	return &instanceRepository{db: db}
}

func (r *instanceRepository) Create(instance *model.DeployInstance) error {
	var count int64
	if err := r.db.Model(&model.DeployInstance{}).
		Where("instance_id = ?", instance.InstanceID).
		Count(&count).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询实例失败", err)
	}
	if count > 0 {
		return pkgErrors.ErrInstanceIDExists
	}
	if err := r.db.Create(instance).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "创建部署实例失败", err)
	}
	return nil
}

func (r *instanceRepository) Update(instance *model.DeployInstance) error {
	if err := r.db.Save(instance).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "更新部署实例失败", err)
	}
	return nil
}

func (r *instanceRepository) Delete(id int64) error {
	if err := r.db.Delete(&model.DeployInstance{}, id).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "删除部署实例失败", err)
	}
	return nil
}

func (r *instanceRepository) FindByID(id int64) (*model.DeployInstance, error) {
	var instance model.DeployInstance
	if err := r.db.First(&instance, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgErrors.ErrInstanceNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询部署实例失败", err)
	}
	return &instance, nil
}

func (r *instanceRepository) FindByInstanceID(instanceID string) (*model.DeployInstance, error) {
	var instance model.DeployInstance
	if err := r.db.Where("instance_id = ?", instanceID).First(&instance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgErrors.ErrInstanceNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询部署实例失败", err)
	}
	return &instance, nil
}

func (r *instanceRepository) FindAll() ([]*model.DeployInstance, error) {
	var instances []*model.DeployInstance
	if err := r.db.Order("wave, instance_id").Find(&instances).Error; err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询部署实例列表失败", err)
	}
	return instances, nil
}

func (r *instanceRepository) FindByWave(wave int) ([]*model.DeployInstance, error) {
	var instances []*model.DeployInstance
	if err := r.db.Where("wave = ?", wave).
		Order("instance_id").
		Find(&instances).Error; err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询波次实例失败", err)
	}
	return instances, nil
}

func (r *instanceRepository) FindByInstanceIDs(instanceIDs []string) ([]*model.DeployInstance, error) {
	if len(instanceIDs) == 0 {
		return nil, nil
	}
	var instances []*model.DeployInstance
	if err := r.db.Where("instance_id IN ?", instanceIDs).
		Order("wave, instance_id").
		Find(&instances).Error; err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询部署实例失败", err)
	}
	return instances, nil
}

func (r *instanceRepository) UpdateRuntime(id int64, mutate func(*model.DeployInstance)) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var instance model.DeployInstance
		if err := tx.First(&instance, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgErrors.ErrInstanceNotFound
			}
			return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询部署实例失败", err)
		}
		mutate(&instance)
		if err := tx.Save(&instance).Error; err != nil {
			return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "更新部署实例失败", err)
		}
		return nil
	})
}

func (r *instanceRepository) UpdateStatusIf(id int64, fromStatus string, updates map[string]interface{}) (bool, error) {
	result := r.db.Model(&model.DeployInstance{}).
		Where("id = ? AND deployment_status = ?", id, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return false, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "更新部署状态失败", result.Error)
	}
	return result.RowsAffected > 0, nil
}
