package main

import (
	"encoding/json"
	"errors"

	auth "github.com/valunds/valunds-auth-golang"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Profile is the single-row advisory copy of the signed-in identity.
// Credentials never land in this table.
type Profile struct {
	ID   uint
	Data string
}

// GormProfileStore backs auth.ProfileStore with sqlite so a restarted
// demo process can show a provisional profile while me/ re-confirms it.
type GormProfileStore struct {
	db *gorm.DB
}

func (s *GormProfileStore) Save(user auth.User) error {
	b, err := json.Marshal(user)
	if err != nil {
		return err
	}

	profile := &Profile{ID: 1, Data: string(b)}

	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(profile).Error
}

func (s *GormProfileStore) Load() (*auth.User, error) {
	var profile Profile
	if err := s.db.First(&profile, 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var user auth.User
	if err := json.Unmarshal([]byte(profile.Data), &user); err != nil {
		return nil, nil
	}

	return &user, nil
}

func (s *GormProfileStore) Clear() error {
	return s.db.Delete(&Profile{}, 1).Error
}
