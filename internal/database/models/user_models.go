package models

import "time"

type Employee struct {
	ID        int64      `gorm:"primaryKey;autoIncrement"`
	FirstName string     `gorm:"size:64;not null"`
	LastName  string     `gorm:"size:64;not null"`
	Position  string     `gorm:"size:64"`
	IsActive  bool       `gorm:"default:true"`
	CreatedAt *time.Time `gorm:"autoCreateTime"`
	UpdatedAt *time.Time `gorm:"autoUpdateTime"`
}

func (e Employee) FullName() string {
	if e.LastName == "" {
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

type Customer struct {
	ID        int64      `gorm:"primaryKey;autoIncrement"`
	Name      string     `gorm:"size:128;not null"`
	Phone     string     `gorm:"size:32"`
	CreatedAt *time.Time `gorm:"autoCreateTime"`
}
