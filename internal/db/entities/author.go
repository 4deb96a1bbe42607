package entities

// Author is the gorm model of the authors table. Email is NULL for authors
// created from a display name only, so the unique index never collides on
// them.
type Author struct {
	ID    int64   `gorm:"primaryKey;autoIncrement"`
	Name  *string `gorm:"type:text"`
	Email *string `gorm:"type:text;uniqueIndex:idx_authors_email"`
}

func (Author) TableName() string {
	return "authors"
}
