package models

type FeatureBanner struct {
	BaseModel
	Image     string `gorm:"not null" json:"image"`
	Title     string `json:"title"`
	Link      string `json:"link"`
	SortOrder int    `json:"sortOrder"`
}
