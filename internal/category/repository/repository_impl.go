package repository

import (
	"github.com/smallbiznis/procura/internal/category/domain"
	"github.com/smallbiznis/procura/pkg/repository"
	"gorm.io/gorm"
)

func Provide(db *gorm.DB) repository.Repository[domain.Category] {
	return repository.ProvideStore[domain.Category](db)
}
