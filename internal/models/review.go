package models

// Причина скрытия, которую выставляет только гейт видимости.
const HiddenReasonEnrollmentInactive = "enrollment_inactive"

type Review struct {
	BaseModel
	EnrollmentID string `gorm:"type:uuid;not null;uniqueIndex" json:"enrollment_id"`
	StudentID    string `gorm:"type:uuid;not null;index:idx_reviews_student_course" json:"student_id"`
	CourseID     string `gorm:"type:uuid;not null;index:idx_reviews_student_course" json:"course_id"`
	Rating       int    `gorm:"not null;check:rating >= 1 AND rating <= 5" json:"rating"`
	Comment      string `json:"comment"`

	// Производное состояние: автор его не меняет.
	IsVisible    bool   `gorm:"not null" json:"is_visible"`
	HiddenReason string `gorm:"type:varchar(40)" json:"-"`

	Replies []ReviewReply `gorm:"foreignKey:ReviewID" json:"replies,omitempty"`
}

type ReviewReply struct {
	BaseModel
	ReviewID string `gorm:"type:uuid;not null;index" json:"review_id"`
	AuthorID string `gorm:"type:uuid;not null" json:"author_id"`
	Text     string `gorm:"not null" json:"text"`
}
