package podcast

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/suPer8Hu/ai-podcaster/internal/audio"
	"github.com/suPer8Hu/ai-podcaster/internal/script"
)

// GenerationJob is one attempt to turn one article into one episode.
type GenerationJob struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID

	SourceArticleID *uint64 `gorm:"index" json:"source_article_id,omitempty"`
	Title           string  `gorm:"type:varchar(255)" json:"title"`
	// Inline article body for manual submissions without an article id.
	SourceText string `gorm:"type:text" json:"-"`

	IdempotencyKey *string `gorm:"type:varchar(128);uniqueIndex" json:"-"`

	Status   Status   `gorm:"type:varchar(32);index;not null" json:"status"`
	Settings Settings `gorm:"type:text;not null" json:"settings"`

	// Filled as stages succeed
	ScriptData  *ScriptData `gorm:"type:text" json:"script_data,omitempty"`
	AudioChunks AudioChunks `gorm:"type:text" json:"audio_chunks,omitempty"`
	FinalAudio  *AudioRef   `gorm:"type:text" json:"final_audio,omitempty"`
	Summary     string      `gorm:"type:text" json:"summary,omitempty"`
	EpisodeID   *uint64     `gorm:"index" json:"episode_id,omitempty"`

	// Filled when failed
	ErrorLog *string `gorm:"type:text" json:"error_log,omitempty"`

	Attempts  int       `gorm:"not null;default:0" json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (GenerationJob) TableName() string { return "generation_jobs" }

// ScriptData is the parsed script stored on the job.
type ScriptData script.Script

func (ScriptData) GormDataType() string { return "text" }

func (d ScriptData) Value() (driver.Value, error) { return jsonValue(d) }

func (d *ScriptData) Scan(src any) error { return scanJSON(src, d) }

// AudioChunks is the ordered chunk list; its order is the merge order.
type AudioChunks []audio.Chunk

func (AudioChunks) GormDataType() string { return "text" }

func (c AudioChunks) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return jsonValue([]audio.Chunk(c))
}

func (c *AudioChunks) Scan(src any) error { return scanJSON(src, c) }

// AudioRef points at the merged episode file.
type AudioRef audio.FileRef

func (AudioRef) GormDataType() string { return "text" }

func (r AudioRef) Value() (driver.Value, error) { return jsonValue(r) }

func (r *AudioRef) Scan(src any) error { return scanJSON(src, r) }

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSON(src any, dst any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into %T", src, dst)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}
