package batch

import (
	"time"

	"gorm.io/datatypes"
)

// OutputContent is the body a client uploads once it has processed an input.
type OutputContent struct {
	ContainerID   string    `json:"containerid"`
	ClientVersion string    `json:"clientversion"`
	TICID         string    `json:"ticid"`
	Sector        int       `json:"sector"`
	Camera        int       `json:"camera"`
	CCD           int       `json:"ccd"`
	RA            float64   `json:"ra"`
	Dec           float64   `json:"dec"`
	TMag          float64   `json:"tmag"`
	LC            string    `json:"lc"`
	IsPlanet      float64   `json:"isplanet"`
	IsNotPlanet   float64   `json:"isnotplanet"`
	Frequencies   []float64 `json:"frequencies"`
}

// TotalScore is the composite score shipped with result notifications.
func (o OutputContent) TotalScore() int {
	return int(o.IsPlanet*1000) + int(o.IsNotPlanet*100)
}

// Result is the recorded outcome for exactly one Input.
type Result struct {
	ID      int64 `gorm:"primaryKey;autoIncrement;column:id" json:"outputId"`
	InputID int64 `gorm:"uniqueIndex;not null;column:input_id" json:"inputId"`

	// ResultKey is the blob key of the uploaded light curve (the "lc" field).
	ResultKey     string  `gorm:"size:1024;column:result" json:"result"`
	ContainerID   string  `gorm:"size:256;column:container_id" json:"containerId"`
	ClientVersion string  `gorm:"size:25;column:client_version" json:"clientVersion"`
	TICID         string  `gorm:"size:20;column:tic_id" json:"ticId"`
	Sector        int     `gorm:"column:sector" json:"sector"`
	Camera        int     `gorm:"column:camera" json:"camera"`
	CCD           int     `gorm:"column:ccd" json:"ccd"`
	RA            float64 `gorm:"column:ra" json:"ra"`
	Dec           float64 `gorm:"column:dec" json:"dec"`
	TMag          float64 `gorm:"column:tmag" json:"tmag"`
	IsPlanet      float64 `gorm:"column:is_planet" json:"isPlanet"`
	IsNotPlanet   float64 `gorm:"column:is_not_planet" json:"isNotPlanet"`

	Frequencies datatypes.JSONSlice[float64] `gorm:"column:frequencies" json:"frequencies"`

	CreatedAt time.Time `gorm:"not null;column:created_on" json:"createdOn"`
	UpdatedAt time.Time `gorm:"not null;column:modified_on" json:"modifiedOn"`
}

func (Result) TableName() string { return "results" }

// Apply overwrites every payload field of r from content (last write wins).
func (r *Result) Apply(content OutputContent) {
	r.ResultKey = content.LC
	r.ContainerID = content.ContainerID
	r.ClientVersion = content.ClientVersion
	r.TICID = content.TICID
	r.Sector = content.Sector
	r.Camera = content.Camera
	r.CCD = content.CCD
	r.RA = content.RA
	r.Dec = content.Dec
	r.TMag = content.TMag
	r.IsPlanet = content.IsPlanet
	r.IsNotPlanet = content.IsNotPlanet
	freqs := make([]float64, len(content.Frequencies))
	copy(freqs, content.Frequencies)
	r.Frequencies = datatypes.JSONSlice[float64](freqs)
}
