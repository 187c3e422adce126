package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// gormDatabase implements Database on top of any gorm dialector
type gormDatabase struct {
	db *gorm.DB
}

func newGormDatabase(dialector gorm.Dialector) (*gormDatabase, error) {
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &gormDatabase{db: db}, nil
}

// Close closes the database connection
func (g *gormDatabase) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (g *gormDatabase) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(withTx(ctx, tx))
	})
}

func (g *gormDatabase) CreateUser(ctx context.Context, user *User) error {
	return conn(ctx, g.db).Create(user).Error
}

func (g *gormDatabase) UpdateUser(ctx context.Context, user *User) error {
	return conn(ctx, g.db).Save(user).Error
}

func (g *gormDatabase) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := conn(ctx, g.db).Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (g *gormDatabase) GetUserByID(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := conn(ctx, g.db).First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (g *gormDatabase) CreateContact(ctx context.Context, contact *Contact) error {
	return conn(ctx, g.db).Create(contact).Error
}

func (g *gormDatabase) CreateOffer(ctx context.Context, offer *Offer) error {
	return conn(ctx, g.db).Create(offer).Error
}

func (g *gormDatabase) UpsertContent(ctx context.Context, content *Content) (bool, error) {
	existed := false
	err := g.Transaction(ctx, func(ctx context.Context) error {
		tx := conn(ctx, g.db)
		var current Content
		err := tx.Where(&Content{Key: content.Key}).First(&current).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(content).Error
		case err != nil:
			return err
		}
		existed = true
		content.ID = current.ID
		content.CreatedAt = current.CreatedAt
		return tx.Model(&current).Updates(map[string]any{
			"title":      content.Title,
			"body":       content.Body,
			"updated_by": content.UpdatedBy,
		}).Error
	})
	return existed, err
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
