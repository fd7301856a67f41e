package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dbehnke/convfec/pkg/harness"
)

// Run records the summary of one trial batch
type Run struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	RunID     string `gorm:"uniqueIndex;size:36;not null" json:"run_id"`
	Code      string `gorm:"index;size:32;not null" json:"code"`
	Decoder   string `gorm:"index;size:16;not null" json:"decoder"`
	FrameBits int    `gorm:"not null" json:"frame_bits"`
	Seed      int64  `json:"seed"`

	EbN0  float64 `gorm:"column:ebn0;not null" json:"ebn0"`
	Noise float64 `json:"noise"`

	Frames           int     `gorm:"not null" json:"frames"`
	Good             int     `json:"good"`
	Failed           int     `json:"failed"`
	Undetected       int     `json:"undetected"`
	FanoTimeouts     int     `json:"fano_timeouts"`
	ViterbiFallbacks int     `json:"viterbi_fallbacks"`
	BitErrors        int64   `json:"bit_errors"`
	BER              float64 `json:"ber"`
	FER              float64 `json:"fer"`
	CyclesPerBit     float64 `json:"cycles_per_bit"`
	Elapsed          float64 `json:"elapsed"` // seconds

	StartTime time.Time `gorm:"index;not null" json:"start_time"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for Run
func (Run) TableName() string {
	return "runs"
}

// BeforeCreate hook assigns a run id and fills missing timestamps
func (r *Run) BeforeCreate(tx *gorm.DB) error {
	if r.RunID == "" {
		r.RunID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.StartTime.IsZero() {
		r.StartTime = r.CreatedAt
	}
	return nil
}

// RunFromSummary builds a record from a finished batch
func RunFromSummary(s *harness.Summary, started time.Time) *Run {
	return &Run{
		Code:             s.Code,
		Decoder:          string(s.Decoder),
		FrameBits:        s.FrameBits,
		Seed:             s.Seed,
		EbN0:             s.EbN0,
		Noise:            s.Noise,
		Frames:           s.Frames,
		Good:             s.Good,
		Failed:           s.Failed,
		Undetected:       s.Undetected,
		FanoTimeouts:     s.FanoTimeouts,
		ViterbiFallbacks: s.ViterbiFallbacks,
		BitErrors:        s.BitErrors,
		BER:              s.BER,
		FER:              s.FER,
		CyclesPerBit:     s.CyclesPerBit,
		Elapsed:          s.Elapsed.Seconds(),
		StartTime:        started,
	}
}
