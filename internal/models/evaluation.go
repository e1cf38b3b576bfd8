package models

import (
	"time"

	"gorm.io/datatypes"
)

// Evaluation states.
const (
	EvaluationStatusCompleted = "completed"
	EvaluationStatusRejected  = "rejected"
	EvaluationStatusFailed    = "failed"
)

// Evaluation stores one graded Musicode submission and its rubric.
type Evaluation struct {
	ID              uint               `gorm:"primaryKey" json:"id"`
	Reference       string             `gorm:"size:36;uniqueIndex;not null" json:"reference"`
	StudentID       uint               `gorm:"index" json:"student_id"`
	Assignment      string             `gorm:"size:128" json:"assignment"`
	Language        string             `gorm:"size:32;not null" json:"language"`
	Source          string             `gorm:"type:text" json:"source"`
	Status          string             `gorm:"size:32;index;not null" json:"status"`
	HasSongList     int                `json:"has_song_list"`
	SongsValid      int                `json:"songs_valid"`
	RandomWorks     int                `json:"random_works"`
	SongLengths     string             `gorm:"size:128" json:"song_lengths"`
	HandlesBadInput int                `json:"handles_bad_input"`
	Complexity80    int                `gorm:"column:complexity80" json:"complexity80"`
	ComplexityTotal float64            `json:"complexity_total"`
	Retried         bool               `json:"retried"`
	BadInputConsole string             `gorm:"type:text" json:"bad_input_console"`
	Error           string             `gorm:"type:text" json:"error"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	Reports         []EvaluationReport `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"reports"`
}

// EvaluationReport is a payload delivered to the grading sink during an evaluation.
type EvaluationReport struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	EvaluationID uint           `gorm:"index;not null" json:"evaluation_id"`
	Category     string         `gorm:"size:64;not null" json:"category"`
	Payload      datatypes.JSON `json:"payload"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Score is the number of rubric points earned, with songs_valid counting per song.
func (e Evaluation) Score() int {
	return e.HasSongList + e.SongsValid + e.RandomWorks + e.HandlesBadInput + e.Complexity80
}
