package models

// Setting is one persisted key-value pair
type Setting struct {
	Key       string `gorm:"primaryKey;type:varchar(255)" json:"key"`
	Value     string `gorm:"type:text" json:"value"`
	UpdatedAt int64  `gorm:"autoUpdateTime" json:"updated_at"`
}
