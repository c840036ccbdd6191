package repository

import (
	"github.com/JonasBergmann/CompanionDeck/app/models"
	"gorm.io/gorm"
)

// assistantRepository implements the AssistantRepository interface
type assistantRepository struct {
	db *gorm.DB
}

// NewAssistantRepository creates a new assistant repository instance
func NewAssistantRepository(db *gorm.DB) AssistantRepository {
	return &assistantRepository{db: db}
}

func (r *assistantRepository) Create(assistant *models.Assistant) error {
	return r.db.Create(assistant).Error
}

// CreateBatch inserts a selection of assistants in one statement.
func (r *assistantRepository) CreateBatch(assistants []models.Assistant) error {
	if len(assistants) == 0 {
		return nil
	}
	return r.db.Create(&assistants).Error
}

func (r *assistantRepository) GetByID(id uint) (*models.Assistant, error) {
	var assistant models.Assistant
	err := r.db.First(&assistant, id).Error
	if err != nil {
		return nil, err
	}
	return &assistant, nil
}

func (r *assistantRepository) GetByUserID(userID uint) ([]models.Assistant, error) {
	var assistants []models.Assistant
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&assistants).Error
	return assistants, err
}

func (r *assistantRepository) Update(assistant *models.Assistant) error {
	return r.db.Save(assistant).Error
}

func (r *assistantRepository) Delete(id uint) error {
	return r.db.Delete(&models.Assistant{}, id).Error
}

func (r *assistantRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Assistant{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
