package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Category is a static reference row offers point at.
type Category struct {
	ID   uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name string    `gorm:"column:name;type:text;not null;uniqueIndex"`
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
